package extractor

import (
	"context"
	"errors"
	"os/exec"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/mediaporter/internal/model"
)

// Runner produces yt-dlp's single-JSON info document for a URL
type Runner interface {
	DumpJSON(ctx context.Context, rawURL, cookieFile string) ([]byte, error)
}

// YTDLPRunner runs the yt-dlp executable found on PATH
type YTDLPRunner struct{}

// DumpJSON runs yt-dlp without downloading and returns its JSON output
func (YTDLPRunner) DumpJSON(ctx context.Context, rawURL, cookieFile string) ([]byte, error) {
	dl := ytdlp.New().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist().
		NoWarnings()
	if cookieFile != "" {
		dl = dl.Cookies(cookieFile)
	}

	result, err := dl.Run(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, model.WrapError(model.ErrorFormatUnavailable, err, "yt-dlp is not installed")
		}
		output := err.Error()
		if result != nil && result.Stderr != "" {
			output = result.Stderr
		}
		return nil, ClassifyOutput(output, err)
	}
	return []byte(result.Stdout), nil
}
