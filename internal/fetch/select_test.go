package fetch

import (
	"testing"

	"github.com/ytget/mediaporter/internal/model"
)

func sampleStreams() []model.Stream {
	return []model.Stream{
		{ID: "v1080", Kind: model.StreamVideo, Height: 1080, Bitrate: 2500, IsDefault: true},
		{ID: "v720", Kind: model.StreamVideo, Height: 720, Bitrate: 1200},
		{ID: "m480", Kind: model.StreamMuxed, Height: 480, Bitrate: 700},
		{ID: "m360", Kind: model.StreamMuxed, Height: 360, Bitrate: 400},
		{ID: "a192", Kind: model.StreamAudio, Bitrate: 192},
		{ID: "a64", Kind: model.StreamAudio, Bitrate: 64},
	}
}

func ids(sel Selection) []string {
	out := make([]string, 0, len(sel.Streams))
	for _, s := range sel.Streams {
		out = append(out, s.ID)
	}
	return out
}

func TestSelectStreams(t *testing.T) {
	tests := []struct {
		name     string
		mode     model.Mode
		quality  model.Quality
		canMerge bool
		want     []string
	}{
		{"auto picks default", model.ModeVideo, model.QualityAuto, true, []string{"v1080", "a192"}},
		{"exact height", model.ModeVideo, model.Quality720p, true, []string{"v720", "a192"}},
		{"exact muxed height", model.ModeVideo, model.Quality480p, true, []string{"m480"}},
		{"no merge keeps muxed", model.ModeVideo, model.Quality1080p, false, []string{"m480"}},
		{"no merge exact", model.ModeVideo, model.Quality480p, false, []string{"m480"}},
		{"audio prefers audio only", model.ModeAudio, model.QualityAuto, true, []string{"a192"}},
		{"audio ignores quality", model.ModeAudio, model.Quality480p, false, []string{"a192"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectStreams(sampleStreams(), tt.mode, tt.quality, tt.canMerge)
			if err != nil {
				t.Fatalf("SelectStreams() error = %v", err)
			}
			got := ids(sel)
			if len(got) != len(tt.want) {
				t.Fatalf("SelectStreams() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SelectStreams() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSelectStreams_NextLowerHeight(t *testing.T) {
	streams := []model.Stream{
		{ID: "m1080", Kind: model.StreamMuxed, Height: 1080, IsDefault: true},
		{ID: "m480", Kind: model.StreamMuxed, Height: 480},
		{ID: "m360", Kind: model.StreamMuxed, Height: 360},
	}
	sel, err := SelectStreams(streams, model.ModeVideo, model.Quality720p, false)
	if err != nil {
		t.Fatalf("SelectStreams() error = %v", err)
	}
	if got := ids(sel); len(got) != 1 || got[0] != "m480" {
		t.Errorf("SelectStreams() = %v, want [m480]", got)
	}

	// Nothing at or below the request falls back to the default.
	streams = []model.Stream{
		{ID: "m1080", Kind: model.StreamMuxed, Height: 1080},
		{ID: "m720", Kind: model.StreamMuxed, Height: 720, IsDefault: true},
	}
	sel, err = SelectStreams(streams, model.ModeVideo, model.Quality480p, false)
	if err != nil {
		t.Fatalf("SelectStreams() error = %v", err)
	}
	if got := ids(sel); got[0] != "m720" {
		t.Errorf("SelectStreams() = %v, want [m720]", got)
	}
}

func TestSelectStreams_Unavailable(t *testing.T) {
	splitOnly := []model.Stream{
		{ID: "v", Kind: model.StreamVideo, Height: 720},
		{ID: "a", Kind: model.StreamAudio, Bitrate: 128},
	}
	tests := []struct {
		name     string
		streams  []model.Stream
		mode     model.Mode
		canMerge bool
	}{
		{"split without merge", splitOnly, model.ModeVideo, false},
		{"video without audio pair", splitOnly[:1], model.ModeVideo, true},
		{"audio from video only", splitOnly[:1], model.ModeAudio, true},
		{"empty", nil, model.ModeVideo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SelectStreams(tt.streams, tt.mode, model.QualityAuto, tt.canMerge)
			if kind := model.KindOf(err); kind != model.ErrorFormatUnavailable {
				t.Errorf("SelectStreams() kind = %v, want %v", kind, model.ErrorFormatUnavailable)
			}
		})
	}
}

func TestSelectStreams_AudioFallsBackToMuxed(t *testing.T) {
	streams := []model.Stream{
		{ID: "m720", Kind: model.StreamMuxed, Height: 720},
		{ID: "m480", Kind: model.StreamMuxed, Height: 480, IsDefault: true},
	}
	sel, err := SelectStreams(streams, model.ModeAudio, model.QualityAuto, false)
	if err != nil {
		t.Fatalf("SelectStreams() error = %v", err)
	}
	if got := ids(sel); got[0] != "m480" {
		t.Errorf("SelectStreams() = %v, want [m480]", got)
	}
}
