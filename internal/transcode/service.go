// Package transcode drives FFmpeg out of process: audio extraction to mp3 and
// remuxing split video/audio streams into one file, with progress parsed from
// FFmpeg's -progress output.
package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ytget/mediaporter/internal/model"
)

// FFmpeg constants
const (
	// Audio extraction settings
	AudioCodec   = "libmp3lame"
	AudioBitrate = "192k"

	// Remux settings
	CopyCodec     = "copy"
	FastStartFlag = "+faststart"

	// Executable and I/O constants
	FFmpegCommand       = "ffmpeg"
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
	ProgressPipeTarget  = "pipe:2"
	ProgressTimePrefix  = "out_time_us="
	stderrTailLines     = 8
)

// Format is the target container
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
)

// Ext returns the file extension including the dot
func (f Format) Ext() string {
	return "." + string(f)
}

// Request describes one conversion. Audio targets use the first input;
// video targets merge all inputs.
type Request struct {
	Inputs     []string
	Output     string
	Format     Format
	OnProgress func(float64)
}

// ErrUnavailable is returned by Convert when FFmpeg is not installed
var ErrUnavailable = errors.New("ffmpeg/ffprobe not found on PATH")

// Service runs ffmpeg and ffprobe
type Service struct {
	ffmpegPath  string
	ffprobePath string
	lookPath    func(string) (string, error)
	log         logrus.FieldLogger

	probeOnce sync.Once
	available bool
}

// NewService creates a transcoder that looks tools up on PATH
func NewService(log logrus.FieldLogger) *Service {
	return &Service{
		lookPath: exec.LookPath,
		log:      log,
	}
}

// Probe reports whether both ffmpeg and ffprobe are present
func (s *Service) Probe() bool {
	s.probeOnce.Do(func() {
		ffmpeg, err := s.lookPath(FFmpegCommand)
		if err != nil {
			s.log.WithError(err).Warn("ffmpeg not found, keeping source formats")
			return
		}
		ffprobe, err := s.lookPath(FFprobeCommand)
		if err != nil {
			s.log.WithError(err).Warn("ffprobe not found, keeping source formats")
			return
		}
		s.ffmpegPath, s.ffprobePath = ffmpeg, ffprobe
		s.available = true
		s.log.WithField("ffmpeg", ffmpeg).Debug("Transcoder available")
	})
	return s.available
}

// Convert runs ffmpeg for req. A failed or cancelled run leaves no output file.
func (s *Service) Convert(ctx context.Context, req Request) error {
	if !s.Probe() {
		return ErrUnavailable
	}
	if len(req.Inputs) == 0 {
		return model.NewError(model.ErrorTranscode, "no input files")
	}
	for _, in := range req.Inputs {
		if _, err := os.Stat(in); err != nil {
			return model.WrapError(model.ErrorTranscode, err, "input file missing")
		}
	}

	// Duration is only needed for progress; a probe failure is not fatal.
	duration, err := s.getDuration(ctx, req.Inputs[0])
	if err != nil {
		s.log.WithError(err).WithField("input", req.Inputs[0]).Debug("Duration probe failed")
	}

	args, err := BuildFFmpegArgs(req)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return model.WrapError(model.ErrorTranscode, err, "failed to create stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return model.WrapError(model.ErrorTranscode, err, "failed to start ffmpeg")
	}

	tail := make(chan []string, 1)
	go func() {
		tail <- monitorProgress(stderr, duration, req.OnProgress)
	}()
	waitErr := cmd.Wait()
	lines := <-tail

	if ctx.Err() != nil {
		_ = os.Remove(req.Output)
		return ctx.Err()
	}
	if waitErr != nil {
		_ = os.Remove(req.Output)
		return model.WrapError(model.ErrorTranscode, waitErr, strings.Join(lines, "; "))
	}
	if req.OnProgress != nil {
		req.OnProgress(1)
	}
	return nil
}

// BuildFFmpegArgs builds the ffmpeg command arguments for req
func BuildFFmpegArgs(req Request) ([]string, error) {
	args := []string{"-y", "-hide_banner"}
	switch req.Format {
	case FormatMP3:
		args = append(args,
			"-i", req.Inputs[0],
			"-vn",                // Drop video
			"-c:a", AudioCodec, // Audio codec
			"-b:a", AudioBitrate, // Audio bitrate
		)
	case FormatMP4:
		for _, in := range req.Inputs {
			args = append(args, "-i", in)
		}
		for i := range req.Inputs {
			args = append(args, "-map", strconv.Itoa(i))
		}
		args = append(args,
			"-c", CopyCodec, // Stream copy
			"-movflags", FastStartFlag, // MP4 optimization
		)
	default:
		return nil, model.NewError(model.ErrorTranscode, "unsupported target format %q", req.Format)
	}
	return append(args,
		"-progress", ProgressPipeTarget, // Progress to stderr
		"-nostats",
		req.Output,
	), nil
}

// getDuration gets the duration of a media file using ffprobe
func (s *Service) getDuration(ctx context.Context, filePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.ffprobePath, "-v", FFprobeLogLevel, "-show_entries", FFprobeShowEntries, "-of", FFprobeOutputFormat, filePath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

func parseDuration(out string) (float64, error) {
	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// monitorProgress reads ffmpeg's stderr, reports progress, and returns the
// last non-progress lines for error messages.
func monitorProgress(stderr io.Reader, totalDuration float64, onProgress func(float64)) []string {
	scanner := bufio.NewScanner(stderr)
	var tail []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// out_time_us=123456
		if strings.HasPrefix(line, ProgressTimePrefix) {
			if onProgress == nil || totalDuration <= 0 {
				continue
			}
			us, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
			if err != nil {
				continue
			}
			progress := float64(us) / 1e6 / totalDuration
			onProgress(min(max(progress, 0), 1))
			continue
		}
		if line == "" || strings.Contains(line, "=") {
			continue
		}
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	return tail
}
