package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/austinkregel/local-media/mixd/internal/analysis"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

// InfoJSON is the subset of a yt-dlp .info.json file that mixd reads
type InfoJSON struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	Creator    string         `json:"creator"`
	Uploader   string         `json:"uploader"`
	Channel    string         `json:"channel"`
	Duration   float64        `json:"duration"`
	Language   string         `json:"language"`
	WebpageURL string         `json:"webpage_url"`
	Heatmap    []HeatmapEntry `json:"heatmap"`
}

// HeatmapEntry is one bucket of the "most replayed" graph
type HeatmapEntry struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Value     float64 `json:"value"`
}

// ReadInfoJSON parses an info file
func ReadInfoJSON(path string) (*InfoJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var info InfoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &info, nil
}

// ArtistName returns the best available artist credit
func (i *InfoJSON) ArtistName() string {
	for _, name := range []string{i.Artist, i.Creator, i.Uploader, i.Channel} {
		if name != "" {
			return name
		}
	}
	return ""
}

// HeatmapSamples returns one sample per bucket, placed at its midpoint
func (i *InfoJSON) HeatmapSamples() []analysis.HeatmapSample {
	if len(i.Heatmap) == 0 {
		return nil
	}

	samples := make([]analysis.HeatmapSample, 0, len(i.Heatmap))
	for _, e := range i.Heatmap {
		if e.EndTime < e.StartTime {
			continue
		}
		samples = append(samples, analysis.HeatmapSample{
			TimeSeconds: (e.StartTime + e.EndTime) / 2,
			Intensity:   e.Value,
		})
	}
	return samples
}

// InfoJSONHeatmaps reads replay heatmaps from the sidecars found by a scan
type InfoJSONHeatmaps struct{}

// LoadHeatmap returns the song's heatmap, or nil when it has none
func (InfoJSONHeatmaps) LoadHeatmap(_ context.Context, song types.SongInfo) ([]analysis.HeatmapSample, error) {
	if song.InfoPath == "" {
		return nil, nil
	}

	info, err := ReadInfoJSON(song.InfoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return info.HeatmapSamples(), nil
}

var _ analysis.HeatmapSource = InfoJSONHeatmaps{}
