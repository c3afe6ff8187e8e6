package model

// TaskStatus represents the lifecycle state of a batch task
type TaskStatus string

const (
	// TaskStatusPending means the task is queued and has not run yet
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusRunning means an attempt is in progress
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusAwaitingRetry means the last attempt failed and the task is re-queued
	TaskStatusAwaitingRetry TaskStatus = "AwaitingRetry"

	// TaskStatusSuccess means the output file was committed
	TaskStatusSuccess TaskStatus = "Success"

	// TaskStatusFailed means the task gave up
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCancelled means the batch was cancelled before the task finished
	TaskStatusCancelled TaskStatus = "Cancelled"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true while an attempt is running
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusRunning
}

// IsTerminal returns true for states that are never left (success, failed, cancelled)
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusSuccess || ts == TaskStatusFailed || ts == TaskStatusCancelled
}

// IsRunnable returns true if the scheduler may start an attempt from this state
func (ts TaskStatus) IsRunnable() bool {
	return ts == TaskStatusPending || ts == TaskStatusAwaitingRetry
}

// CanTransition reports whether moving from ts to next is a legal state change.
func (ts TaskStatus) CanTransition(next TaskStatus) bool {
	switch ts {
	case TaskStatusPending, TaskStatusAwaitingRetry:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next == TaskStatusSuccess || next == TaskStatusAwaitingRetry ||
			next == TaskStatusFailed || next == TaskStatusCancelled
	default:
		return false
	}
}
