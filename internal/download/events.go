package download

import (
	"time"

	"github.com/ytget/mediaporter/internal/model"
)

// EventType identifies an event on the run's channel
type EventType string

const (
	EventTaskCreated       EventType = "task_created"
	EventTaskProgress      EventType = "task_progress"
	EventTaskStatusChanged EventType = "task_status_changed"
	EventLogLine           EventType = "log_line"
	EventBatchCompleted    EventType = "batch_completed"
)

// Event is a notification for the presentation layer. Task is a deep copy
// taken when the event was produced.
type Event struct {
	Type     EventType
	At       time.Time
	TaskID   string
	Task     model.Task
	Status   model.TaskStatus
	Progress float64
	Text     string
	Summary  model.Summary
}
