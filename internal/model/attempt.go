package model

import (
	"context"
	"strconv"
)

type attemptCtxKey struct{}

// WithAttempt tags ctx with the task attempt it serves
func WithAttempt(ctx context.Context, taskID string, attempt int) context.Context {
	return context.WithValue(ctx, attemptCtxKey{}, taskID+"#"+strconv.Itoa(attempt))
}

// AttemptFrom returns the attempt tag of ctx, or "" outside an attempt
func AttemptFrom(ctx context.Context) string {
	tag, _ := ctx.Value(attemptCtxKey{}).(string)
	return tag
}
