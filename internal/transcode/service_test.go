package transcode

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ytget/mediaporter/internal/model"
)

func newTestService(lookPath func(string) (string, error)) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewService(log)
	s.lookPath = lookPath
	return s
}

func TestProbe_RunsOnce(t *testing.T) {
	calls := 0
	s := newTestService(func(name string) (string, error) {
		calls++
		return "/usr/bin/" + name, nil
	})

	if !s.Probe() || !s.Probe() {
		t.Fatal("Probe() = false, expected true")
	}
	if calls != 2 {
		t.Errorf("lookPath called %d times, expected 2 (ffmpeg and ffprobe once)", calls)
	}
	if s.ffprobePath != "/usr/bin/ffprobe" {
		t.Errorf("ffprobePath = %s", s.ffprobePath)
	}
}

func TestProbe_MissingFFprobe(t *testing.T) {
	s := newTestService(func(name string) (string, error) {
		if name == FFprobeCommand {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	})

	if s.Probe() {
		t.Error("Probe() = true without ffprobe")
	}
}

func TestConvert_Unavailable(t *testing.T) {
	s := newTestService(func(string) (string, error) { return "", errors.New("not found") })

	err := s.Convert(context.Background(), Request{Inputs: []string{"a.m4a"}, Output: "a.mp3", Format: FormatMP3})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Convert() = %v, expected ErrUnavailable", err)
	}
}

func TestConvert_MissingInput(t *testing.T) {
	s := newTestService(func(name string) (string, error) { return "/usr/bin/" + name, nil })

	err := s.Convert(context.Background(), Request{Inputs: []string{"/nonexistent/in.m4a"}, Output: "out.mp3", Format: FormatMP3})
	if model.KindOf(err) != model.ErrorTranscode {
		t.Errorf("Convert() kind = %s, expected TranscodeFailure", model.KindOf(err))
	}
}

func TestBuildFFmpegArgs_Audio(t *testing.T) {
	args, err := BuildFFmpegArgs(Request{Inputs: []string{"/in.m4a"}, Output: "/out.mp3", Format: FormatMP3})
	if err != nil {
		t.Fatalf("BuildFFmpegArgs error: %v", err)
	}

	expectedArgs := []string{
		"-y", "-hide_banner",
		"-i", "/in.m4a",
		"-vn",
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-progress", "pipe:2",
		"-nostats",
		"/out.mp3",
	}
	if strings.Join(args, " ") != strings.Join(expectedArgs, " ") {
		t.Errorf("args = %v\nexpected %v", args, expectedArgs)
	}
	if AudioBitrate != "192k" {
		t.Errorf("AudioBitrate = %s, expected 192k", AudioBitrate)
	}
}

func TestBuildFFmpegArgs_Merge(t *testing.T) {
	args, err := BuildFFmpegArgs(Request{Inputs: []string{"/v.m4s", "/a.m4s"}, Output: "/out.mp4", Format: FormatMP4})
	if err != nil {
		t.Fatalf("BuildFFmpegArgs error: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{"-i /v.m4s -i /a.m4s", "-map 0 -map 1", "-c copy", "-movflags +faststart"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "/out.mp4" {
		t.Errorf("last arg = %s, expected output path", args[len(args)-1])
	}

	if _, err := BuildFFmpegArgs(Request{Inputs: []string{"/x"}, Format: Format("avi")}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration(" 12.5\n")
	if err != nil || d != 12.5 {
		t.Errorf("parseDuration = %v, %v", d, err)
	}
	if _, err := parseDuration("N/A"); err == nil {
		t.Error("expected error for N/A")
	}
}

func TestMonitorProgress(t *testing.T) {
	stderr := strings.NewReader(strings.Join([]string{
		"Input #0, mov,mp4,m4a",
		"out_time_us=2500000",
		"progress=continue",
		"out_time_us=bogus",
		"out_time_us=12000000",
		"Conversion failed!",
	}, "\n"))

	var got []float64
	tail := monitorProgress(stderr, 10, func(p float64) { got = append(got, p) })

	if len(got) != 2 || got[0] != 0.25 || got[1] != 1 {
		t.Errorf("progress = %v, expected [0.25 1]", got)
	}
	if len(tail) != 2 || tail[1] != "Conversion failed!" {
		t.Errorf("tail = %v", tail)
	}
}

func TestFormat_Ext(t *testing.T) {
	if FormatMP3.Ext() != ".mp3" || FormatMP4.Ext() != ".mp4" {
		t.Error("unexpected extensions")
	}
}
