package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"

	"github.com/ytget/mediaporter/internal/download"
	"github.com/ytget/mediaporter/internal/history"
	"github.com/ytget/mediaporter/internal/model"
)

// Table layout
const (
	titleColumnWidth  = 48
	errorColumnWidth  = 60
	outputColumnWidth = 60
	timeLayout        = "2006-01-02 15:04"
)

// renderEvent logs one scheduler event
func renderEvent(log logrus.FieldLogger, ev download.Event) {
	switch ev.Type {
	case download.EventTaskCreated:
		log.WithFields(logrus.Fields{"task_id": ev.TaskID, "line": ev.Task.LineNo}).
			Debugf("Queued %s", ev.Task.GetDisplayTitle())
	case download.EventTaskProgress:
		log.WithField("task_id", ev.TaskID).Debugf("%3.0f%%", ev.Progress*100)
	case download.EventTaskStatusChanged:
		entry := log.WithFields(logrus.Fields{"task_id": ev.TaskID, "attempt": ev.Task.Attempt})
		switch ev.Status {
		case model.TaskStatusRunning:
			entry.Infof("Downloading %s", ev.Task.GetDisplayTitle())
		case model.TaskStatusSuccess:
			entry.Infof("Done: %s", ev.Task.OutputPath)
		case model.TaskStatusFailed:
			entry.Errorf("Failed: %s", ev.Task.GetDisplayTitle())
		case model.TaskStatusCancelled:
			entry.Warnf("Cancelled: %s", ev.Task.GetDisplayTitle())
		}
	case download.EventLogLine:
		log.Info(ev.Text)
	case download.EventBatchCompleted:
		log.WithFields(logrus.Fields{
			"succeeded": ev.Summary.Succeeded,
			"failed":    ev.Summary.Failed,
			"cancelled": ev.Summary.Cancelled,
			"rejected":  ev.Summary.Rejected,
		}).Info("Batch finished")
	}
}

// renderSummary prints the per-task outcome table
func renderSummary(w io.Writer, tasks []model.Task, summary model.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: titleColumnWidth},
		{Number: 5, WidthMax: outputColumnWidth},
	})
	t.AppendHeader(table.Row{"Line", "Item", "Status", "Attempts", "Result"})

	for _, task := range tasks {
		t.AppendRow(table.Row{
			task.LineNo,
			task.GetDisplayTitle(),
			statusText(task.Status),
			task.Attempt,
			taskResult(task),
		})
	}

	t.AppendFooter(table.Row{
		"Total", summary.Total,
		fmt.Sprintf("ok %d / failed %d / cancelled %d", summary.Succeeded, summary.Failed, summary.Cancelled),
		"", fmt.Sprintf("rejected lines: %d", summary.Rejected),
	})
	t.Render()
}

func taskResult(task model.Task) string {
	if task.Status == model.TaskStatusSuccess {
		return task.OutputPath
	}
	if last, ok := task.LastError(); ok {
		return text.Trim(fmt.Sprintf("[%s] %s", last.Kind, last.Message), errorColumnWidth)
	}
	return ""
}

func statusText(s model.TaskStatus) string {
	switch s {
	case model.TaskStatusSuccess:
		return text.FgGreen.Sprint(s)
	case model.TaskStatusFailed:
		return text.FgRed.Sprint(s)
	case model.TaskStatusCancelled:
		return text.FgYellow.Sprint(s)
	}
	return s.String()
}

// renderHistory prints the batch list
func renderHistory(w io.Writer, runs []history.BatchRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Batch", "Started", "Mode", "Status", "Total", "OK", "Failed", "Cancelled", "Rejected"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID, formatTime(r.CreatedAt), r.Mode, r.Status,
			r.Total, r.Succeeded, r.Failed, r.Cancelled, r.Rejected,
		})
	}
	t.AppendFooter(table.Row{"Batches", len(runs)})
	t.Render()
}

// renderHistoryTasks prints the tasks of one archived batch
func renderHistoryTasks(w io.Writer, run history.BatchRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: titleColumnWidth},
		{Number: 5, WidthMax: outputColumnWidth},
	})
	t.AppendHeader(table.Row{"Line", "Item", "Status", "Attempts", "Result"})
	for _, task := range run.Tasks {
		item := task.CustomName
		if item == "" {
			item = task.Title
		}
		if item == "" {
			item = task.SourceLine
		}
		result := task.OutputPath
		if result == "" {
			result = text.Trim(task.LastError, errorColumnWidth)
		}
		t.AppendRow(table.Row{task.LineNo, item, task.Status, task.Attempts, result})
	}
	t.AppendFooter(table.Row{"Batch", run.ID, run.Status, "", formatTime(run.FinishedAt)})
	t.Render()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(timeLayout)
}
