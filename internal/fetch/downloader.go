package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/ytget/mediaporter/internal/model"
)

const (
	copyBufferSize   = 256 * 1024
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Downloader streams media URLs to local files
type Downloader struct {
	client *resty.Client
}

// NewDownloader creates a downloader. A nil client gets a default one with no
// overall timeout, since media streams can run for a long time.
func NewDownloader(client *resty.Client) *Downloader {
	if client == nil {
		client = resty.New().
			SetHeader("User-Agent", defaultUserAgent)
	}
	return &Downloader{client: client}
}

// Fetch downloads stream into path. onProgress receives bytes written and the
// expected total (0 when unknown).
func (d *Downloader) Fetch(ctx context.Context, stream model.Stream, path string, onProgress func(done, total int64)) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(stream.Headers).
		Get(stream.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.WrapError(model.ErrorNetwork, err, "stream request failed")
	}
	body := resp.RawBody()
	defer body.Close()

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests || code == http.StatusPreconditionFailed:
		return model.NewError(model.ErrorRateLimited, "stream %s: %s", stream.ID, resp.Status())
	case code == http.StatusNotFound || code == http.StatusGone:
		return model.NewError(model.ErrorResolution, "stream %s expired: %s", stream.ID, resp.Status())
	case code >= 400:
		return model.NewError(model.ErrorNetwork, "stream %s: %s", stream.ID, resp.Status())
	}

	total := stream.Size
	if resp.RawResponse != nil && resp.RawResponse.ContentLength > 0 {
		total = resp.RawResponse.ContentLength
	}

	f, err := os.Create(path)
	if err != nil {
		return model.WrapError(model.ErrorDisk, err, "create temp file")
	}
	w := &progressWriter{dst: f, total: total, onProgress: onProgress}
	_, copyErr := io.CopyBuffer(w, body, make([]byte, copyBufferSize))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var we *writeError
		if errors.As(copyErr, &we) {
			return model.WrapError(model.ErrorDisk, we.err, "write temp file")
		}
		return model.WrapError(model.ErrorNetwork, copyErr, "stream interrupted")
	case closeErr != nil:
		return model.WrapError(model.ErrorDisk, closeErr, "close temp file")
	case total > 0 && w.done < total:
		return model.NewError(model.ErrorNetwork, "stream %s truncated at %d of %d bytes", stream.ID, w.done, total)
	}
	return nil
}

// writeError marks a failure on the local side of the copy
type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }

type progressWriter struct {
	dst        io.Writer
	done       int64
	total      int64
	onProgress func(done, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.done += int64(n)
	if w.onProgress != nil {
		w.onProgress(w.done, w.total)
	}
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}
