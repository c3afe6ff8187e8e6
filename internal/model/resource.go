package model

import (
	"fmt"
	"strings"
)

// ResourceKind is the shape of a recognized source URL
type ResourceKind string

const (
	ResourceVideo     ResourceKind = "video"
	ResourceBangumi   ResourceKind = "bangumi"
	ResourceMovie     ResourceKind = "movie"
	ResourceShortLink ResourceKind = "shortlink"
)

// Resource identifies a fetchable item. ShortLink resources are replaced by
// the target resource once the redirect is followed.
type Resource struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
	URL  string       `json:"url"`
}

// String returns "kind:id"
func (r Resource) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// FallbackName is the file name used when neither a custom name nor a title is known.
func (r Resource) FallbackName() string {
	id := strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == ':' {
			return '_'
		}
		return c
	}, r.ID)
	return string(r.Kind) + "_" + id
}

// Mode selects what the pipeline produces
type Mode string

const (
	ModeAudio Mode = "audio"
	ModeVideo Mode = "video"
)

// ParseMode converts user input into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAudio:
		return ModeAudio, nil
	case ModeVideo, "":
		return ModeVideo, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Quality is the requested video height
type Quality string

const (
	QualityAuto  Quality = "auto"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
)

// ParseQuality converts user input into a Quality
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	switch q {
	case "":
		return QualityAuto, nil
	case QualityAuto, Quality1080p, Quality720p, Quality480p:
		return q, nil
	}
	return "", fmt.Errorf("unknown quality %q", s)
}

// Height returns the pixel height for the preset, 0 for Auto
func (q Quality) Height() int {
	switch q {
	case Quality1080p:
		return 1080
	case Quality720p:
		return 720
	case Quality480p:
		return 480
	}
	return 0
}

// Access is the entitlement a resource requires
type Access string

const (
	AccessPublic        Access = "public"
	AccessLoginRequired Access = "login"
	AccessVipRequired   Access = "vip"
)

// StreamKind tells whether a stream carries audio, video, or both
type StreamKind string

const (
	StreamAudio StreamKind = "audio"
	StreamVideo StreamKind = "video"
	StreamMuxed StreamKind = "muxed"
)

// Stream describes one downloadable media stream
type Stream struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Kind      StreamKind        `json:"kind"`
	Ext       string            `json:"ext"`
	Height    int               `json:"height,omitempty"`
	Bitrate   float64           `json:"bitrate,omitempty"` // kbit/s
	Size      int64             `json:"size,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	IsDefault bool              `json:"is_default,omitempty"`
}

// HasAudio reports whether the stream contains an audio track
func (s Stream) HasAudio() bool {
	return s.Kind == StreamAudio || s.Kind == StreamMuxed
}

// HasVideo reports whether the stream contains a video track
func (s Stream) HasVideo() bool {
	return s.Kind == StreamVideo || s.Kind == StreamMuxed
}

// MediaInfo is the metadata the backend reports for a resource
type MediaInfo struct {
	Title  string `json:"title"`
	Access Access `json:"access"`
}

// ParsedTask is one accepted input line. It carries no identity, so resolving
// the same line twice yields equal values.
type ParsedTask struct {
	SourceLine string   `json:"source_line"`
	LineNo     int      `json:"line_no"`
	Resource   Resource `json:"resource"`
	CustomName string   `json:"custom_name,omitempty"`
}

// Rejection is an input line that matched no accepted URL shape
type Rejection struct {
	LineNo int    `json:"line_no"`
	Line   string `json:"line"`
	Reason string `json:"reason"`
}
