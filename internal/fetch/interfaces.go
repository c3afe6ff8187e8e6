package fetch

import (
	"context"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/session"
)

// MediaBackend is the platform-facing side of the pipeline.
type MediaBackend interface {
	ResolveShortLink(ctx context.Context, rawURL string) (model.Resource, error)
	Describe(ctx context.Context, res model.Resource) (model.MediaInfo, error)
	ListStreams(ctx context.Context, res model.Resource, mode model.Mode, quality model.Quality) ([]model.Stream, error)
	CheckLoginAndVip(ctx context.Context, sess session.Session) (session.Status, error)
}

// Gate decides whether the current session may fetch a resource.
type Gate interface {
	Check(access model.Access) error
}

// AttemptScoped is implemented by backends that keep per-attempt state. The
// pipeline calls EndAttempt with the attempt context once the attempt is over.
type AttemptScoped interface {
	EndAttempt(ctx context.Context)
}
