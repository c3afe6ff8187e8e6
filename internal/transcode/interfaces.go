package transcode

import (
	"context"
)

// Transcoder converts downloaded streams into the delivered container.
type Transcoder interface {
	// Probe reports whether the external tools are installed. The result is
	// computed once per process.
	Probe() bool
	Convert(ctx context.Context, req Request) error
}
