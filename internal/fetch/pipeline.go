package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/platform"
	"github.com/ytget/mediaporter/internal/transcode"
)

// Progress split between download and transcode
const (
	DownloadShareWithTranscode = 0.9
)

// ErrAbortedBeforeCommit is returned when cancellation is observed after the
// media was produced but before it was moved to its final name.
var ErrAbortedBeforeCommit = errors.New("attempt aborted before commit")

// Options configures a pipeline
type Options struct {
	Backend     MediaBackend
	Gate        Gate
	Transcoder  transcode.Transcoder
	Downloader  *Downloader
	DownloadDir string
}

// Pipeline runs single task attempts
type Pipeline struct {
	backend     MediaBackend
	gate        Gate
	transcoder  transcode.Transcoder
	downloader  *Downloader
	downloadDir string
	log         logrus.FieldLogger

	probeOnce    sync.Once
	canTranscode bool
}

// NewPipeline creates a pipeline. Transcoder may be nil.
func NewPipeline(opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.Downloader == nil {
		opts.Downloader = NewDownloader(nil)
	}
	return &Pipeline{
		backend:     opts.Backend,
		gate:        opts.Gate,
		transcoder:  opts.Transcoder,
		downloader:  opts.Downloader,
		downloadDir: opts.DownloadDir,
		log:         log,
	}
}

// TranscoderAvailable probes the transcoder once per pipeline
func (p *Pipeline) TranscoderAvailable() bool {
	p.probeOnce.Do(func() {
		p.canTranscode = p.transcoder != nil && p.transcoder.Probe()
	})
	return p.canTranscode
}

// ExecuteAttempt runs one attempt of task and returns the committed output
// path. progress receives a clamped, non-decreasing fraction.
func (p *Pipeline) ExecuteAttempt(ctx context.Context, task model.Task, progress func(float64)) (string, error) {
	log := p.log.WithFields(logrus.Fields{"task_id": task.ID, "attempt": task.Attempt})
	report := newProgressReporter(progress)
	ctx = model.WithAttempt(ctx, task.ID, task.Attempt)
	if scoped, ok := p.backend.(AttemptScoped); ok {
		defer scoped.EndAttempt(ctx)
	}

	res := task.Resource
	if res.Kind == model.ResourceShortLink {
		resolved, err := p.backend.ResolveShortLink(ctx, res.URL)
		if err != nil {
			return "", asRetryableResolution(ctx, err)
		}
		log.WithField("resource", resolved.String()).Debug("Short link resolved")
		res = resolved
	}

	info, err := p.backend.Describe(ctx, res)
	if err != nil {
		return "", err
	}
	if err := p.gate.Check(info.Access); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	streams, err := p.backend.ListStreams(ctx, res, task.Mode, task.Quality)
	if err != nil {
		return "", err
	}
	canTranscode := p.TranscoderAvailable()
	sel, err := SelectStreams(streams, task.Mode, task.Quality, canTranscode)
	if err != nil {
		return "", err
	}
	target := targetFormat(task.Mode, sel, canTranscode)

	tmpDir, err := platform.AttemptTempDir(p.downloadDir, task.ID, task.Attempt)
	if err != nil {
		return "", model.WrapError(model.ErrorDisk, err, "create temp dir")
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.WithError(err).Warn("Failed to remove temp dir")
		}
	}()

	span := 1.0
	if target != "" {
		span = DownloadShareWithTranscode
	}
	inputs := make([]string, 0, len(sel.Streams))
	for i, s := range sel.Streams {
		path := filepath.Join(tmpDir, fmt.Sprintf("%d-%s%s", i, s.Kind, extOf(s)))
		base := span * float64(i) / float64(len(sel.Streams))
		share := span / float64(len(sel.Streams))
		err := p.downloader.Fetch(ctx, s, path, func(done, total int64) {
			if total > 0 {
				report(base + share*float64(done)/float64(total))
			}
		})
		if err != nil {
			return "", err
		}
		report(base + share)
		inputs = append(inputs, path)
	}
	log.WithField("streams", len(inputs)).Debug("Streams downloaded")
	if err := ctx.Err(); err != nil {
		return "", err
	}

	produced, ext := inputs[0], extOf(sel.Streams[0])
	if target != "" {
		produced = filepath.Join(tmpDir, "out"+target.Ext())
		err := p.transcoder.Convert(ctx, transcode.Request{
			Inputs: inputs,
			Output: produced,
			Format: target,
			OnProgress: func(f float64) {
				report(span + (1-span)*f)
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, transcode.ErrUnavailable) {
				return "", model.WrapError(model.ErrorFormatUnavailable, err, "transcoder disappeared")
			}
			if model.KindOf(err) != model.ErrorTranscode {
				err = model.WrapError(model.ErrorTranscode, err, "transcode failed")
			}
			return "", err
		}
		ext = target.Ext()
	}

	// Last point where cancellation can still prevent a visible file.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAbortedBeforeCommit, err)
	}

	out, err := platform.CommitFile(produced, p.downloadDir, outputName(task, info), ext)
	if err != nil {
		return "", model.WrapError(model.ErrorDisk, err, "commit output")
	}
	report(1)
	log.WithField("output", out).Info("Task output committed")
	return out, nil
}

// targetFormat returns the conversion to run, or "" to keep the source.
func targetFormat(mode model.Mode, sel Selection, canTranscode bool) transcode.Format {
	switch {
	case !canTranscode:
		return ""
	case mode == model.ModeAudio:
		return transcode.FormatMP3
	case sel.Split():
		return transcode.FormatMP4
	}
	return ""
}

// outputName picks the custom name, else the sanitized title, else the
// resource fallback.
func outputName(task model.Task, info model.MediaInfo) string {
	if task.CustomName != "" {
		return task.CustomName
	}
	if name := platform.SanitizeFileName(info.Title); name != "" {
		return name
	}
	return task.Resource.FallbackName()
}

func extOf(s model.Stream) string {
	ext := strings.TrimPrefix(strings.TrimSpace(s.Ext), ".")
	if ext == "" {
		switch s.Kind {
		case model.StreamAudio:
			ext = "m4a"
		default:
			ext = "mp4"
		}
	}
	return "." + ext
}

// asRetryableResolution keeps cancellation as is and classifies any other
// short-link failure as a resolution failure.
func asRetryableResolution(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if kind := model.KindOf(err); kind == model.ErrorResolution || kind == model.ErrorRateLimited {
		return err
	}
	return model.WrapError(model.ErrorResolution, err, "short link resolution failed")
}

func newProgressReporter(cb func(float64)) func(float64) {
	var last float64
	return func(f float64) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		if f <= last {
			return
		}
		last = f
		if cb != nil {
			cb(f)
		}
	}
}
