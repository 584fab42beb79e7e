// Package main is the entry point for mixd.
// mixd scans local song libraries, finds the most energetic beat-aligned
// segments of each song and sequences them into DJ-style mixes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/logging"
	"github.com/austinkregel/local-media/mixd/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

// Options holds global command line options
type Options struct {
	ConfigDir string
	Verbose   bool
	Command   string
	Args      []string
}

// app carries what every subcommand needs
type app struct {
	cfg    *config.Config
	store  *store.Store
	logger zerolog.Logger
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, opts.Verbose)
	logger.Debug().Str("version", Version).Msg("mixd starting")

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	if err := run(ctx, opts, logger); err != nil {
		var invalid *config.InvalidConfigurationError
		if errors.As(err, &invalid) {
			logger.Error().Str("field", invalid.Field).Str("reason", invalid.Reason).Msg("Invalid configuration")
		} else {
			logger.Error().Err(err).Msg("Fatal error")
		}
		os.Exit(1)
	}
}

func parseFlags(args []string) (*Options, error) {
	opts := &Options{}

	fs := flag.NewFlagSet("mixd", flag.ContinueOnError)
	fs.Usage = usage
	fs.StringVar(&opts.ConfigDir, "config", "", "Configuration directory (default: ~/.config/mixd)")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() == 0 {
		return nil, errors.New("missing command")
	}
	opts.Command = fs.Arg(0)
	opts.Args = fs.Args()[1:]

	if opts.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		opts.ConfigDir = filepath.Join(homeDir, ".config", "mixd")
	}

	return opts, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mixd [-config dir] [-v] <command> [flags]

Commands:
  analyze [-workers n] [-force] [dirs...]   scan libraries and select segments
  mix [-name s] [-all-segments] [-target sec] [-out file]
                                            sequence analyzed segments into a mix
  suggest -segment id [-n count]            rank segments that could follow one
  preview -segment id                       play a segment
`)
}

func run(ctx context.Context, opts *Options, logger zerolog.Logger) error {
	configMgr := config.NewManager(opts.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	db, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	a := &app{cfg: cfg, store: db, logger: logger}

	switch opts.Command {
	case "analyze":
		return a.analyze(ctx, configMgr, opts.Args)
	case "mix":
		return a.mix(ctx, opts.Args)
	case "suggest":
		return a.suggest(ctx, opts.Args)
	case "preview":
		return a.preview(ctx, opts.Args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}
