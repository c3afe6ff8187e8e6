package model

import (
	"fmt"
	"strings"
	"time"
)

// AttemptError records why one attempt failed
type AttemptError struct {
	Attempt int       `json:"attempt"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Task is one accepted input line tracked through the batch
type Task struct {
	ID           string
	SourceLine   string
	LineNo       int
	Resource     Resource
	CustomName   string
	Mode         Mode
	Quality      Quality
	Status       TaskStatus
	Attempt      int     // number of attempts started
	Progress     float64 // 0.0 to 1.0 within the current attempt
	ErrorHistory []AttemptError
	OutputPath   string // set only on success
	NeedsLogin   bool   // last failure was auth-class
	Title        string
	CreatedAt    time.Time
	StartedAt    time.Time // first attempt start
	FinishedAt   time.Time
}

// NewTask creates a pending task for a parsed input line
func NewTask(id string, parsed ParsedTask, mode Mode, quality Quality) *Task {
	return &Task{
		ID:         id,
		SourceLine: parsed.SourceLine,
		LineNo:     parsed.LineNo,
		Resource:   parsed.Resource,
		CustomName: parsed.CustomName,
		Mode:       mode,
		Quality:    quality,
		Status:     TaskStatusPending,
		CreatedAt:  time.Now(),
	}
}

func (t *Task) transition(next TaskStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, t.Status, next, t.ID)
	}
	t.Status = next
	return nil
}

// Start begins a new attempt and resets progress
func (t *Task) Start() error {
	if err := t.transition(TaskStatusRunning); err != nil {
		return err
	}
	t.Attempt++
	t.Progress = 0
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	return nil
}

// SetProgress records attempt progress. Values are clamped to [0,1] and never
// decrease within an attempt. It returns true if the stored value changed.
func (t *Task) SetProgress(p float64) bool {
	if t.Status != TaskStatusRunning {
		return false
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if p <= t.Progress {
		return false
	}
	t.Progress = p
	return true
}

// Succeed completes the task with its committed output file
func (t *Task) Succeed(outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("%w: success without output (task %s)", ErrInvalidTransition, t.ID)
	}
	if err := t.transition(TaskStatusSuccess); err != nil {
		return err
	}
	t.OutputPath = outputPath
	t.Progress = 1
	t.NeedsLogin = false
	t.FinishedAt = time.Now()
	return nil
}

// Fail records the attempt error and moves the task to AwaitingRetry or Failed
func (t *Task) Fail(err error, retry bool) error {
	next := TaskStatusFailed
	if retry {
		next = TaskStatusAwaitingRetry
	}
	if transErr := t.transition(next); transErr != nil {
		return transErr
	}
	kind := KindOf(err)
	t.ErrorHistory = append(t.ErrorHistory, AttemptError{
		Attempt: t.Attempt,
		Kind:    kind,
		Message: err.Error(),
		At:      time.Now(),
	})
	t.NeedsLogin = kind.IsAuthClass()
	if next == TaskStatusFailed {
		t.FinishedAt = time.Now()
	}
	return nil
}

// Cancel moves a non-terminal task to Cancelled
func (t *Task) Cancel() error {
	if err := t.transition(TaskStatusCancelled); err != nil {
		return err
	}
	t.FinishedAt = time.Now()
	return nil
}

// LastError returns the most recent attempt error, if any
func (t *Task) LastError() (AttemptError, bool) {
	if len(t.ErrorHistory) == 0 {
		return AttemptError{}, false
	}
	return t.ErrorHistory[len(t.ErrorHistory)-1], true
}

// Snapshot returns a deep copy safe to hand to other goroutines
func (t *Task) Snapshot() Task {
	cp := *t
	if t.ErrorHistory != nil {
		cp.ErrorHistory = make([]AttemptError, len(t.ErrorHistory))
		copy(cp.ErrorHistory, t.ErrorHistory)
	}
	return cp
}

// GetDisplayTitle returns custom name, title, filename, or source URL in order of preference
func (t *Task) GetDisplayTitle() string {
	if t.CustomName != "" {
		return t.CustomName
	}
	if t.Title != "" && !strings.HasPrefix(t.Title, "http") {
		return t.Title
	}

	if t.OutputPath != "" {
		parts := strings.FieldsFunc(t.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	if t.Resource.URL != "" {
		return t.Resource.URL
	}
	return t.SourceLine
}
