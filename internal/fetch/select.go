package fetch

import (
	"sort"

	"github.com/ytget/mediaporter/internal/model"
)

// Selection is the set of streams one attempt downloads. Two streams mean a
// split video and audio pair that has to be merged.
type Selection struct {
	Streams []model.Stream
}

// Split reports whether the selection needs a merge
func (s Selection) Split() bool {
	return len(s.Streams) > 1
}

// SelectStreams picks the streams for mode and quality. Video quality
// resolves to the exact height, else the next lower one, else the platform
// default. Without merge support only muxed streams qualify for video.
func SelectStreams(streams []model.Stream, mode model.Mode, quality model.Quality, canMerge bool) (Selection, error) {
	if mode == model.ModeAudio {
		return selectAudio(streams)
	}

	var candidates []model.Stream
	for _, s := range streams {
		switch {
		case s.Kind == model.StreamMuxed:
			candidates = append(candidates, s)
		case s.Kind == model.StreamVideo && canMerge:
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		if !canMerge && hasKind(streams, model.StreamVideo) {
			return Selection{}, model.NewError(model.ErrorFormatUnavailable, "only split video/audio streams are offered, install ffmpeg to merge them")
		}
		return Selection{}, model.NewError(model.ErrorFormatUnavailable, "no video streams available")
	}

	video := pickHeight(candidates, quality.Height())
	if video.Kind == model.StreamMuxed {
		return Selection{Streams: []model.Stream{video}}, nil
	}
	audio, ok := bestAudio(streams)
	if !ok {
		muxed := filterKind(candidates, model.StreamMuxed)
		if len(muxed) == 0 {
			return Selection{}, model.NewError(model.ErrorFormatUnavailable, "no audio stream to pair with %s", video.ID)
		}
		return Selection{Streams: []model.Stream{pickHeight(muxed, quality.Height())}}, nil
	}
	return Selection{Streams: []model.Stream{video, audio}}, nil
}

func selectAudio(streams []model.Stream) (Selection, error) {
	if audio, ok := bestAudio(streams); ok {
		return Selection{Streams: []model.Stream{audio}}, nil
	}
	muxed := filterKind(streams, model.StreamMuxed)
	if len(muxed) == 0 {
		return Selection{}, model.NewError(model.ErrorFormatUnavailable, "no stream carries audio")
	}
	return Selection{Streams: []model.Stream{pickHeight(muxed, 0)}}, nil
}

// pickHeight returns the best stream at height, else the tallest below it,
// else the default. Height 0 means default.
func pickHeight(candidates []model.Stream, height int) model.Stream {
	sorted := append([]model.Stream(nil), candidates...)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Height != sorted[b].Height {
			return sorted[a].Height > sorted[b].Height
		}
		return sorted[a].Bitrate > sorted[b].Bitrate
	})

	if height > 0 {
		for _, s := range sorted {
			if s.Height == height {
				return s
			}
		}
		for _, s := range sorted {
			if s.Height > 0 && s.Height < height {
				return s
			}
		}
	}
	for _, s := range candidates {
		if s.IsDefault {
			return s
		}
	}
	return sorted[0]
}

func bestAudio(streams []model.Stream) (model.Stream, bool) {
	var best model.Stream
	found := false
	for _, s := range streams {
		if s.Kind != model.StreamAudio {
			continue
		}
		if !found || s.Bitrate > best.Bitrate {
			best, found = s, true
		}
	}
	return best, found
}

func filterKind(streams []model.Stream, kind model.StreamKind) []model.Stream {
	var out []model.Stream
	for _, s := range streams {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func hasKind(streams []model.Stream, kind model.StreamKind) bool {
	for _, s := range streams {
		if s.Kind == kind {
			return true
		}
	}
	return false
}
