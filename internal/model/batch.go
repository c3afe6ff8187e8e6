package model

import (
	"time"
)

// BatchStatus represents the current status of a batch run
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// Summary counts tasks by outcome
type Summary struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Running      int `json:"running"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Cancelled    int `json:"cancelled"`
	Rejected     int `json:"rejected"`
	AuthFailures int `json:"auth_failures"`
}

// Done reports whether every task reached a terminal state
func (s Summary) Done() bool {
	return s.Succeeded+s.Failed+s.Cancelled == s.Total
}

// BatchRun groups the tasks created from one submission
type BatchRun struct {
	ID         string      `json:"id"`
	Mode       Mode        `json:"mode"`
	Quality    Quality     `json:"quality"`
	Tasks      []*Task     `json:"tasks"`
	Rejected   []Rejection `json:"rejected,omitempty"`
	Status     BatchStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}

// NewBatchRun creates a running batch
func NewBatchRun(id string, mode Mode, quality Quality) *BatchRun {
	now := time.Now()
	return &BatchRun{
		ID:        id,
		Mode:      mode,
		Quality:   quality,
		Tasks:     make([]*Task, 0),
		Status:    BatchStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTask appends a task in submission order
func (b *BatchRun) AddTask(task *Task) {
	b.Tasks = append(b.Tasks, task)
	b.UpdatedAt = time.Now()
}

// Reject records an input line that produced no task
func (b *BatchRun) Reject(r Rejection) {
	b.Rejected = append(b.Rejected, r)
	b.UpdatedAt = time.Now()
}

// Task returns a task by ID
func (b *BatchRun) Task(id string) (*Task, bool) {
	for _, task := range b.Tasks {
		if task.ID == id {
			return task, true
		}
	}
	return nil, false
}

// Finish marks the batch completed or cancelled
func (b *BatchRun) Finish(status BatchStatus) {
	b.Status = status
	b.FinishedAt = time.Now()
	b.UpdatedAt = b.FinishedAt
}

// Summary recomputes counters from task states
func (b *BatchRun) Summary() Summary {
	s := Summary{Total: len(b.Tasks), Rejected: len(b.Rejected)}
	for _, task := range b.Tasks {
		switch task.Status {
		case TaskStatusPending, TaskStatusAwaitingRetry:
			s.Pending++
		case TaskStatusRunning:
			s.Running++
		case TaskStatusSuccess:
			s.Succeeded++
		case TaskStatusFailed:
			s.Failed++
			if task.NeedsLogin {
				s.AuthFailures++
			}
		case TaskStatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// GetProgress returns overall batch progress as percentage
func (b *BatchRun) GetProgress() float64 {
	if len(b.Tasks) == 0 {
		return 0
	}

	var sum float64
	for _, task := range b.Tasks {
		if task.Status.IsTerminal() {
			sum++
			continue
		}
		sum += task.Progress
	}
	return sum / float64(len(b.Tasks)) * 100
}

// Snapshot returns deep copies of all tasks in submission order
func (b *BatchRun) Snapshot() []Task {
	out := make([]Task, 0, len(b.Tasks))
	for _, task := range b.Tasks {
		out = append(out, task.Snapshot())
	}
	return out
}
