// Package types provides shared type definitions used across mixd.
package types

// SongInfo describes a song discovered in a library
type SongInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist,omitempty"`
	Language   string  `json:"language,omitempty"`
	SourcePath string  `json:"sourcePath"`
	SourceURL  string  `json:"sourceUrl,omitempty"`
	InfoPath   string  `json:"infoPath,omitempty"` // yt-dlp .info.json sidecar
	Duration   float64 `json:"duration,omitempty"` // seconds
}

// Segment is a selected window of a song
type Segment struct {
	ID              string  `json:"id,omitempty"`
	SongID          string  `json:"songId"`
	StartTime       float64 `json:"startTime"`
	EndTime         float64 `json:"endTime"`
	DurationSeconds float64 `json:"durationSeconds"`
	EnergyScore     float64 `json:"energyScore"` // 0-100
	IsPrimary       bool    `json:"isPrimary"`
	Label           string  `json:"label"`
}

// MixItem is one segment as seen by the mix sequencer
type MixItem struct {
	SegmentID   string  `json:"segmentId"`
	SongID      string  `json:"songId"`
	BPM         float64 `json:"bpm"`
	EnergyScore float64 `json:"energyScore"` // 0-100
	Language    string  `json:"language"`
}

// AnalysisStatus represents where a song is in the analysis lifecycle
type AnalysisStatus int

const (
	StatusPending AnalysisStatus = iota
	StatusAnalyzing
	StatusComplete
	StatusNoSegments
	StatusFailed
)

// String returns the string representation of the status
func (s AnalysisStatus) String() string {
	switch s {
	case StatusAnalyzing:
		return "analyzing"
	case StatusComplete:
		return "complete"
	case StatusNoSegments:
		return "no_segments_found"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ParseAnalysisStatus parses a string into an AnalysisStatus
func ParseAnalysisStatus(s string) AnalysisStatus {
	switch s {
	case "analyzing":
		return StatusAnalyzing
	case "complete":
		return StatusComplete
	case "no_segments_found":
		return StatusNoSegments
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}
