// Package config handles mixd configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Config represents the mixd configuration
type Config struct {
	// LibraryPaths is a list of directories containing downloaded songs
	LibraryPaths []string `json:"libraryPaths"`

	// DataDir is where to store data files (database, plans, etc.)
	DataDir string `json:"dataDir"`

	// Analysis policy for segment selection
	Analysis AnalysisConfig `json:"analysis"`

	// Mix ordering policy
	Mix MixConfig `json:"mix"`

	// Worker pool settings
	Worker WorkerConfig `json:"worker"`

	// Store settings
	Store StoreConfig `json:"store"`

	// Export settings
	Export ExportConfig `json:"export"`
}

// Weights are the energy curve feature weights
type Weights struct {
	Volume     float64 `json:"volume"`
	Brightness float64 `json:"brightness"`
	Punch      float64 `json:"punch"`
}

// DurationBand maps a peak score to a segment duration range.
// A band applies when the song's peak score is strictly above MinScore.
type DurationBand struct {
	MinScore   float64 `json:"minScore"`
	MinSeconds float64 `json:"minSeconds"`
	MaxSeconds float64 `json:"maxSeconds"`
}

// AnalysisConfig contains per-song analysis settings
type AnalysisConfig struct {
	// SampleRate of decoded waveforms (default: 22050)
	SampleRate int `json:"sampleRate"`

	// HopLength in samples between frames (default: 512)
	HopLength int `json:"hopLength"`

	// FrameLength in samples of each analysis window (default: 2048)
	FrameLength int `json:"frameLength"`

	// Weights for volume/brightness/punch (default: 0.4/0.3/0.3)
	Weights Weights `json:"weights"`

	// SmoothingSeconds is the moving average width (default: 1.0)
	SmoothingSeconds float64 `json:"smoothingSeconds"`

	// HorizonSeconds limits the hybrid decision and heatmap search (default: 180)
	HorizonSeconds float64 `json:"horizonSeconds"`

	// DurationBands ordered by descending MinScore, last one at 0
	// (default: >0.8 45-55s, >0.5 55-70s, else 70-90s)
	DurationBands []DurationBand `json:"durationBands"`

	// WindowStepSeconds between candidate window lengths (default: 5)
	WindowStepSeconds float64 `json:"windowStepSeconds"`

	// MaxSegments per song (default: 3)
	MaxSegments int `json:"maxSegments"`

	// MinGapSeconds between segments of one song, edge to edge (default: 30)
	MinGapSeconds float64 `json:"minGapSeconds"`

	// HeatmapRelativeThreshold against max audio energy (default: 0.5)
	HeatmapRelativeThreshold float64 `json:"heatmapRelativeThreshold"`

	// HeatmapAbsoluteThreshold on heatmap peak (default: 0.7)
	HeatmapAbsoluteThreshold float64 `json:"heatmapAbsoluteThreshold"`

	// MinBPM and MaxBPM bound tempo detection (default: 60-200)
	MinBPM float64 `json:"minBpm"`
	MaxBPM float64 `json:"maxBpm"`

	// BeatSearchRadiusSeconds for beat snapping (default: 5)
	BeatSearchRadiusSeconds float64 `json:"beatSearchRadiusSeconds"`

	// PhraseThreshold relative to the volume range (default: 0.3)
	PhraseThreshold float64 `json:"phraseThreshold"`

	// PhraseToleranceSeconds before a phrase boundary overrides a beat (default: 0.5)
	PhraseToleranceSeconds float64 `json:"phraseToleranceSeconds"`

	// MinPhraseSpacingSeconds merges nearby phrase boundaries (default: 2)
	MinPhraseSpacingSeconds float64 `json:"minPhraseSpacingSeconds"`
}

// FramesPerSecond returns the analysis frame rate
func (a AnalysisConfig) FramesPerSecond() float64 {
	return float64(a.SampleRate) / float64(a.HopLength)
}

// Arc shapes for mix ordering
const (
	ArcPeakMiddle = "peak_middle"
	ArcAscending  = "ascending"
	ArcDescending = "descending"
	ArcWave       = "wave"
)

// MixConfig contains mix ordering settings
type MixConfig struct {
	// ArcShape of the energy over the mix (default: peak_middle)
	ArcShape string `json:"arcShape"`

	// MaxSameLanguageRun is the longest allowed same-language run (default: 2)
	MaxSameLanguageRun int `json:"maxSameLanguageRun"`

	// BPMTieTolerance treats BPM distances this close as equal (default: 4)
	BPMTieTolerance float64 `json:"bpmTieTolerance"`

	// CrossfadeSeconds between items of an exported mix (default: 2.0)
	CrossfadeSeconds float64 `json:"crossfadeSeconds"`

	// TargetDurationSeconds of an exported mix (default: 2700)
	TargetDurationSeconds float64 `json:"targetDurationSeconds"`
}

// WorkerConfig contains analysis worker settings
type WorkerConfig struct {
	// MaxWorkers analyzing songs at once (default: NumCPU-1)
	MaxWorkers int `json:"maxWorkers"`
}

// StoreConfig contains persistence settings
type StoreConfig struct {
	// DatabaseFile name inside DataDir (default: mixd.db)
	DatabaseFile string `json:"databaseFile"`
}

// ExportConfig contains export settings
type ExportConfig struct {
	// OutputDir for render plans, relative to DataDir when not absolute (default: plans)
	OutputDir string `json:"outputDir"`
}

// DefaultAnalysisConfig returns the default analysis policy
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		SampleRate:       22050,
		HopLength:        512,
		FrameLength:      2048,
		Weights:          Weights{Volume: 0.4, Brightness: 0.3, Punch: 0.3},
		SmoothingSeconds: 1.0,
		HorizonSeconds:   180,
		DurationBands: []DurationBand{
			{MinScore: 0.8, MinSeconds: 45, MaxSeconds: 55},
			{MinScore: 0.5, MinSeconds: 55, MaxSeconds: 70},
			{MinScore: 0, MinSeconds: 70, MaxSeconds: 90},
		},
		WindowStepSeconds:        5,
		MaxSegments:              3,
		MinGapSeconds:            30,
		HeatmapRelativeThreshold: 0.5,
		HeatmapAbsoluteThreshold: 0.7,
		MinBPM:                   60,
		MaxBPM:                   200,
		BeatSearchRadiusSeconds:  5,
		PhraseThreshold:          0.3,
		PhraseToleranceSeconds:   0.5,
		MinPhraseSpacingSeconds:  2,
	}
}

// DefaultMixConfig returns the default mix policy
func DefaultMixConfig() MixConfig {
	return MixConfig{
		ArcShape:              ArcPeakMiddle,
		MaxSameLanguageRun:    2,
		BPMTieTolerance:       4,
		CrossfadeSeconds:      2.0,
		TargetDurationSeconds: 2700,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}

	return &Config{
		LibraryPaths: []string{},
		Analysis:     DefaultAnalysisConfig(),
		Mix:          DefaultMixConfig(),
		Worker: WorkerConfig{
			MaxWorkers: workers,
		},
		Store: StoreConfig{
			DatabaseFile: "mixd.db",
		},
		Export: ExportConfig{
			OutputDir: "plans",
		},
	}
}

// DatabasePath returns the full path of the database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.Store.DatabaseFile)
}

// PlanDir returns the directory render plans are written to
func (c *Config) PlanDir() string {
	if filepath.IsAbs(c.Export.OutputDir) {
		return c.Export.OutputDir
	}
	return filepath.Join(c.DataDir, c.Export.OutputDir)
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	cfg := DefaultConfig()
	cfg.DataDir = configDir
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     cfg,
	}
}

// Load reads the configuration from disk and validates it.
// A missing file is created from defaults.
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		m.config.DataDir = m.configDir
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	config.DataDir = m.configDir
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update validates and saves a new configuration
func (m *Manager) Update(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.config = config
	return m.Save()
}

// AddLibraryPath adds a library path
func (m *Manager) AddLibraryPath(path string) error {
	for _, p := range m.config.LibraryPaths {
		if p == path {
			return nil // Already exists
		}
	}

	m.config.LibraryPaths = append(m.config.LibraryPaths, path)
	return m.Save()
}
