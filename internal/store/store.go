// Package store persists songs, their analyzed segments and saved mixes in
// a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/austinkregel/local-media/mixd/internal/analysis"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

// ErrNotFound is returned when a song, segment or playlist does not exist
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	duration REAL NOT NULL DEFAULT 0,
	source_path TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	info_path TEXT NOT NULL DEFAULT '',
	bpm REAL,
	energy_score REAL,
	analysis_status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
	id TEXT PRIMARY KEY,
	song_id TEXT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	duration REAL NOT NULL,
	energy_score REAL NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT 0,
	label TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_song ON segments(song_id);
CREATE TABLE IF NOT EXISTS playlists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	target_duration REAL NOT NULL,
	quality_score REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS playlist_items (
	id TEXT PRIMARY KEY,
	playlist_id TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	segment_id TEXT NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	crossfade_duration REAL NOT NULL DEFAULT 2.0
);
CREATE INDEX IF NOT EXISTS idx_playlist_items_playlist ON playlist_items(playlist_id, position);
`

// Song is a stored song with its analysis summary
type Song struct {
	types.SongInfo
	BPM          float64              `json:"bpm"`
	EnergyScore  float64              `json:"energyScore"`
	Status       types.AnalysisStatus `json:"status"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
}

// MixCandidate is a segment ready to be sequenced, with what is needed to
// render it
type MixCandidate struct {
	Item    types.MixItem
	Segment types.Segment
	Song    types.SongInfo
}

// Playlist is a saved mix
type Playlist struct {
	ID             string
	Name           string
	TargetDuration float64
	QualityScore   float64
	CreatedAt      time.Time
	SegmentIDs     []string
}

// Store wraps the database with higher-level methods
type Store struct {
	db         *sql.DB
	path       string
	maxRetries uint64
	logger     zerolog.Logger
}

// Open opens or creates the database at path
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{
		db:         db,
		path:       path,
		maxRetries: 5,
		logger:     logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// retry runs op again while SQLite reports the database as busy
func (s *Store) retry(ctx context.Context, op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Database busy, retrying")
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// inTx runs fn inside a transaction, retrying the whole transaction when busy
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// UpsertSong inserts a song or refreshes its library metadata. Analysis
// results of an existing song are kept.
func (s *Store) UpsertSong(ctx context.Context, song types.SongInfo) error {
	now := time.Now().Unix()
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO songs (id, title, artist, language, duration, source_path, source_url, info_path, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				artist = excluded.artist,
				language = excluded.language,
				duration = excluded.duration,
				source_path = excluded.source_path,
				source_url = excluded.source_url,
				info_path = excluded.info_path,
				updated_at = excluded.updated_at`,
			song.ID, song.Title, song.Artist, song.Language, song.Duration,
			song.SourcePath, song.SourceURL, song.InfoPath, now, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert song %s: %w", song.ID, err)
	}
	return nil
}

// Song returns a stored song
func (s *Store) Song(ctx context.Context, id string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, artist, language, duration, source_path, source_url, info_path,
			bpm, energy_score, analysis_status, error_message
		FROM songs WHERE id = ?`, id)

	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read song %s: %w", id, err)
	}
	return song, nil
}

// SongsByStatus returns songs in the given analysis state, ordered by id
func (s *Store) SongsByStatus(ctx context.Context, status types.AnalysisStatus) ([]*Song, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, artist, language, duration, source_path, source_url, info_path,
			bpm, energy_score, analysis_status, error_message
		FROM songs WHERE analysis_status = ? ORDER BY id`, status.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer rows.Close()

	var songs []*Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSong(row scanner) (*Song, error) {
	var (
		song   Song
		bpm    sql.NullFloat64
		energy sql.NullFloat64
		status string
	)
	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Language, &song.Duration,
		&song.SourcePath, &song.SourceURL, &song.InfoPath, &bpm, &energy, &status, &song.ErrorMessage)
	if err != nil {
		return nil, err
	}
	song.BPM = bpm.Float64
	song.EnergyScore = energy.Float64
	song.Status = types.ParseAnalysisStatus(status)
	return &song, nil
}

// SetSongStatus records a lifecycle change, typically analyzing or failed
func (s *Store) SetSongStatus(ctx context.Context, id string, status types.AnalysisStatus, message string) error {
	err := s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE songs SET analysis_status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			status.String(), message, time.Now().Unix(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set status of %s: %w", id, err)
	}
	return nil
}

// SaveAnalysis stores an analysis result, replacing any earlier segments of
// the song. The stored segments are returned with their new IDs.
func (s *Store) SaveAnalysis(ctx context.Context, a *analysis.SongAnalysis) ([]types.Segment, error) {
	var saved []types.Segment

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		res, err := tx.ExecContext(ctx, `
			UPDATE songs SET bpm = ?, energy_score = ?, analysis_status = ?, error_message = '', updated_at = ?
			WHERE id = ?`,
			a.TempoBPM, a.OverallEnergy, a.Status.String(), now, a.SongID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE song_id = ?`, a.SongID); err != nil {
			return err
		}

		saved = make([]types.Segment, 0, len(a.Segments))
		for _, seg := range a.Segments {
			seg.ID = uuid.NewString()
			seg.SongID = a.SongID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO segments (id, song_id, start_time, end_time, duration, energy_score, is_primary, label, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				seg.ID, seg.SongID, seg.StartTime, seg.EndTime, seg.DurationSeconds,
				seg.EnergyScore, seg.IsPrimary, seg.Label, now)
			if err != nil {
				return err
			}
			saved = append(saved, seg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis of %s: %w", a.SongID, err)
	}

	s.logger.Debug().Str("song", a.SongID).Int("segments", len(saved)).Msg("Saved analysis")
	return saved, nil
}

const segmentColumns = `segments.id, segments.song_id, segments.start_time, segments.end_time,
	segments.duration, segments.energy_score, segments.is_primary, segments.label`

func scanSegment(row scanner, extra ...any) (types.Segment, error) {
	var seg types.Segment
	dest := append([]any{&seg.ID, &seg.SongID, &seg.StartTime, &seg.EndTime,
		&seg.DurationSeconds, &seg.EnergyScore, &seg.IsPrimary, &seg.Label}, extra...)
	err := row.Scan(dest...)
	return seg, err
}

// Segments returns the segments of a song ordered by start time
func (s *Store) Segments(ctx context.Context, songID string) ([]types.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE song_id = ? ORDER BY start_time`, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments of %s: %w", songID, err)
	}
	defer rows.Close()

	var segs []types.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// Segment returns one segment by ID
func (s *Store) Segment(ctx context.Context, id string) (*types.Segment, error) {
	seg, err := scanSegment(s.db.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read segment %s: %w", id, err)
	}
	return &seg, nil
}

// MixCandidates returns segments of analyzed songs, ordered by song and
// start time. With primaryOnly only each song's primary segment is returned.
func (s *Store) MixCandidates(ctx context.Context, primaryOnly bool) ([]MixCandidate, error) {
	query := `SELECT ` + segmentColumns + `,
			songs.title, songs.artist, songs.language, songs.duration, songs.source_path,
			songs.source_url, songs.info_path, songs.bpm
		FROM segments JOIN songs ON songs.id = segments.song_id
		WHERE songs.analysis_status = ?`
	if primaryOnly {
		query += ` AND segments.is_primary = 1`
	}
	query += ` ORDER BY songs.id, segments.start_time`

	rows, err := s.db.QueryContext(ctx, query, types.StatusComplete.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list mix candidates: %w", err)
	}
	defer rows.Close()

	var out []MixCandidate
	for rows.Next() {
		var (
			song types.SongInfo
			bpm  sql.NullFloat64
		)
		seg, err := scanSegment(rows, &song.Title, &song.Artist, &song.Language, &song.Duration,
			&song.SourcePath, &song.SourceURL, &song.InfoPath, &bpm)
		if err != nil {
			return nil, fmt.Errorf("failed to read mix candidate: %w", err)
		}
		song.ID = seg.SongID

		out = append(out, MixCandidate{
			Item: types.MixItem{
				SegmentID:   seg.ID,
				SongID:      seg.SongID,
				BPM:         bpm.Float64,
				EnergyScore: seg.EnergyScore,
				Language:    song.Language,
			},
			Segment: seg,
			Song:    song,
		})
	}
	return out, rows.Err()
}

// CreatePlaylist saves an ordered mix and returns its ID
func (s *Store) CreatePlaylist(ctx context.Context, name string, target, quality, crossfade float64, segmentIDs []string) (string, error) {
	id := uuid.NewString()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO playlists (id, name, target_duration, quality_score, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, name, target, quality, time.Now().Unix())
		if err != nil {
			return err
		}
		for pos, segID := range segmentIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO playlist_items (id, playlist_id, segment_id, position, crossfade_duration)
				VALUES (?, ?, ?, ?, ?)`,
				uuid.NewString(), id, segID, pos, crossfade)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create playlist %q: %w", name, err)
	}

	s.logger.Info().Str("playlist", id).Str("name", name).Int("items", len(segmentIDs)).Msg("Created playlist")
	return id, nil
}

// Playlist returns a saved mix with its segment IDs in order
func (s *Store) Playlist(ctx context.Context, id string) (*Playlist, error) {
	var (
		p       Playlist
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, target_duration, quality_score, created_at FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.TargetDuration, &p.QualityScore, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist %s: %w", id, err)
	}
	p.CreatedAt = time.Unix(created, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id FROM playlist_items WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segID string
		if err := rows.Scan(&segID); err != nil {
			return nil, fmt.Errorf("failed to read playlist item: %w", err)
		}
		p.SegmentIDs = append(p.SegmentIDs, segID)
	}
	return &p, rows.Err()
}
