package download

import (
	"context"

	"github.com/ytget/mediaporter/internal/model"
)

// Executor runs one attempt of a task and returns the committed output path.
// progress may be called from the executing goroutine at any rate.
type Executor interface {
	ExecuteAttempt(ctx context.Context, task model.Task, progress func(float64)) (string, error)
}
