package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/analysis"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "mixd.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSong(id, lang string) types.SongInfo {
	return types.SongInfo{
		ID:         id,
		Title:      "Title " + id,
		Artist:     "Artist",
		Language:   lang,
		SourcePath: "/music/" + id + ".opus",
		Duration:   200,
	}
}

func testAnalysis(songID string, bpm float64) *analysis.SongAnalysis {
	return &analysis.SongAnalysis{
		SongID:        songID,
		Status:        types.StatusComplete,
		TempoBPM:      bpm,
		OverallEnergy: 61.5,
		Segments: []types.Segment{
			{StartTime: 10, EndTime: 60, DurationSeconds: 50, EnergyScore: 70, Label: "segment_1"},
			{StartTime: 90, EndTime: 140, DurationSeconds: 50, EnergyScore: 88.2, IsPrimary: true, Label: "segment_2"},
		},
	}
}

func TestUpsertSongKeepsAnalysis(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertSong(ctx, testSong("a", "ko")); err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}
	if _, err := s.SaveAnalysis(ctx, testAnalysis("a", 124)); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	renamed := testSong("a", "ko")
	renamed.Title = "Renamed"
	if err := s.UpsertSong(ctx, renamed); err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}

	song, err := s.Song(ctx, "a")
	if err != nil {
		t.Fatalf("Song failed: %v", err)
	}
	if song.Title != "Renamed" {
		t.Errorf("Expected title Renamed, got %s", song.Title)
	}
	if song.Status != types.StatusComplete || song.BPM != 124 || song.EnergyScore != 61.5 {
		t.Errorf("Expected analysis to survive upsert, got %s %v %v", song.Status, song.BPM, song.EnergyScore)
	}
}

func TestSongNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Song(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.Segment(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.SetSongStatus(context.Background(), "missing", types.StatusFailed, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveAnalysisReplacesSegments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertSong(ctx, testSong("a", "ko")); err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}

	first, err := s.SaveAnalysis(ctx, testAnalysis("a", 120))
	if err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if len(first) != 2 || first[0].ID == "" || first[0].ID == first[1].ID {
		t.Fatalf("Expected two segments with distinct IDs, got %+v", first)
	}

	again := testAnalysis("a", 120)
	again.Segments = again.Segments[1:]
	if _, err := s.SaveAnalysis(ctx, again); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	segs, err := s.Segments(ctx, "a")
	if err != nil {
		t.Fatalf("Segments failed: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("Expected 1 segment after re-analysis, got %d", len(segs))
	}
	if !segs[0].IsPrimary || segs[0].StartTime != 90 || segs[0].Label != "segment_2" {
		t.Errorf("Unexpected segment %+v", segs[0])
	}

	if _, err := s.Segment(ctx, first[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old segment to be gone, got %v", err)
	}
	if _, err := s.SaveAnalysis(ctx, testAnalysis("missing", 120)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown song, got %v", err)
	}
}

func TestSetSongStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		if err := s.UpsertSong(ctx, testSong(id, "en")); err != nil {
			t.Fatalf("UpsertSong failed: %v", err)
		}
	}

	if err := s.SetSongStatus(ctx, "b", types.StatusFailed, "decode failed"); err != nil {
		t.Fatalf("SetSongStatus failed: %v", err)
	}

	song, err := s.Song(ctx, "b")
	if err != nil {
		t.Fatalf("Song failed: %v", err)
	}
	if song.Status != types.StatusFailed || song.ErrorMessage != "decode failed" {
		t.Errorf("Expected failed with message, got %s %q", song.Status, song.ErrorMessage)
	}

	pending, err := s.SongsByStatus(ctx, types.StatusPending)
	if err != nil {
		t.Fatalf("SongsByStatus failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "a" || pending[1].ID != "c" {
		t.Errorf("Expected pending songs a and c, got %d", len(pending))
	}
}

func TestMixCandidates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, song := range []types.SongInfo{testSong("b", "en"), testSong("a", "ko"), testSong("c", "ja")} {
		if err := s.UpsertSong(ctx, song); err != nil {
			t.Fatalf("UpsertSong failed: %v", err)
		}
	}
	for _, id := range []string{"a", "b"} {
		if _, err := s.SaveAnalysis(ctx, testAnalysis(id, 118)); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}
	}

	all, err := s.MixCandidates(ctx, false)
	if err != nil {
		t.Fatalf("MixCandidates failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 candidates from analyzed songs, got %d", len(all))
	}
	if all[0].Song.ID != "a" || all[0].Segment.StartTime != 10 || all[2].Song.ID != "b" {
		t.Errorf("Expected candidates ordered by song then start")
	}

	primary, err := s.MixCandidates(ctx, true)
	if err != nil {
		t.Fatalf("MixCandidates failed: %v", err)
	}
	if len(primary) != 2 {
		t.Fatalf("Expected 2 primary candidates, got %d", len(primary))
	}
	c := primary[0]
	if c.Item.BPM != 118 || c.Item.EnergyScore != 88.2 || c.Item.Language != "ko" {
		t.Errorf("Unexpected mix item %+v", c.Item)
	}
	if c.Item.SegmentID != c.Segment.ID || c.Song.SourcePath != "/music/a.opus" {
		t.Errorf("Expected candidate to carry its segment and source, got %+v", c)
	}
}

func TestCreatePlaylist(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertSong(ctx, testSong("a", "ko")); err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}
	segs, err := s.SaveAnalysis(ctx, testAnalysis("a", 120))
	if err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	ids := []string{segs[1].ID, segs[0].ID}
	playlistID, err := s.CreatePlaylist(ctx, "party", 2700, 91.5, 2, ids)
	if err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}

	p, err := s.Playlist(ctx, playlistID)
	if err != nil {
		t.Fatalf("Playlist failed: %v", err)
	}
	if p.Name != "party" || p.TargetDuration != 2700 || p.QualityScore != 91.5 {
		t.Errorf("Unexpected playlist %+v", p)
	}
	if len(p.SegmentIDs) != 2 || p.SegmentIDs[0] != ids[0] || p.SegmentIDs[1] != ids[1] {
		t.Errorf("Expected segment order %v, got %v", ids, p.SegmentIDs)
	}

	if _, err := s.CreatePlaylist(ctx, "broken", 60, 0, 2, []string{"no-such-segment"}); err == nil {
		t.Error("Expected foreign key failure for unknown segment")
	}
	if _, err := s.Playlist(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
