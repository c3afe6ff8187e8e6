package model

import (
	"context"
	"errors"
	"testing"
)

func newTestTask() *Task {
	return NewTask("t1", ParsedTask{
		SourceLine: "https://www.bilibili.com/video/BV1",
		LineNo:     1,
		Resource:   Resource{Kind: ResourceVideo, ID: "BV1", URL: "https://www.bilibili.com/video/BV1"},
	}, ModeAudio, QualityAuto)
}

func TestTask_Lifecycle(t *testing.T) {
	task := newTestTask()

	if task.Status != TaskStatusPending || task.Attempt != 0 {
		t.Fatalf("new task = %s/%d, expected Pending/0", task.Status, task.Attempt)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	task.SetProgress(0.5)
	if err := task.Fail(NewError(ErrorNetwork, "reset"), true); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	if task.Status != TaskStatusAwaitingRetry {
		t.Errorf("status = %s, expected AwaitingRetry", task.Status)
	}

	if err := task.Start(); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if task.Attempt != 2 {
		t.Errorf("Attempt = %d, expected 2", task.Attempt)
	}
	if task.Progress != 0 {
		t.Errorf("Progress = %v, expected reset to 0", task.Progress)
	}
	if err := task.Succeed("/out/a.mp3"); err != nil {
		t.Fatalf("Succeed() error: %v", err)
	}
	if task.Progress != 1 || task.OutputPath != "/out/a.mp3" {
		t.Errorf("success task = %v/%q", task.Progress, task.OutputPath)
	}
	if len(task.ErrorHistory) != 1 || task.ErrorHistory[0].Attempt != 1 {
		t.Errorf("ErrorHistory = %+v", task.ErrorHistory)
	}
}

func TestTask_TerminalStatesAreFinal(t *testing.T) {
	task := newTestTask()
	if err := task.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	if err := task.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start() after cancel = %v, expected ErrInvalidTransition", err)
	}
	if err := task.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Cancel() twice = %v, expected ErrInvalidTransition", err)
	}
}

func TestTask_SucceedRequiresOutput(t *testing.T) {
	task := newTestTask()
	_ = task.Start()

	if err := task.Succeed(""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Succeed(\"\") = %v, expected ErrInvalidTransition", err)
	}
	if task.Status != TaskStatusRunning {
		t.Errorf("status = %s, expected Running", task.Status)
	}
}

func TestTask_SetProgress(t *testing.T) {
	task := newTestTask()
	if task.SetProgress(0.3) {
		t.Error("SetProgress on pending task should be ignored")
	}
	_ = task.Start()

	tests := []struct {
		in       float64
		changed  bool
		expected float64
	}{
		{0.2, true, 0.2},
		{0.1, false, 0.2},
		{0.2, false, 0.2},
		{-1, false, 0.2},
		{0.7, true, 0.7},
		{4, true, 1},
	}
	for _, test := range tests {
		changed := task.SetProgress(test.in)
		if changed != test.changed || task.Progress != test.expected {
			t.Errorf("SetProgress(%v) = %v/%v, expected %v/%v", test.in, changed, task.Progress, test.changed, test.expected)
		}
	}
}

func TestTask_FailFlagsAuth(t *testing.T) {
	task := newTestTask()
	_ = task.Start()
	_ = task.Fail(NewError(ErrorVipRequired, "members only"), false)

	if task.Status != TaskStatusFailed {
		t.Errorf("status = %s, expected Failed", task.Status)
	}
	if !task.NeedsLogin {
		t.Error("NeedsLogin should be set after VipRequired")
	}
	last, ok := task.LastError()
	if !ok || last.Kind != ErrorVipRequired {
		t.Errorf("LastError() = %+v, %v", last, ok)
	}
}

func TestTask_SnapshotIsIndependent(t *testing.T) {
	task := newTestTask()
	_ = task.Start()
	_ = task.Fail(errors.New("boom"), true)

	snap := task.Snapshot()
	snap.ErrorHistory[0].Message = "changed"
	snap.Status = TaskStatusFailed

	if task.ErrorHistory[0].Message != "boom" {
		t.Error("snapshot shares ErrorHistory with task")
	}
	if task.Status != TaskStatusAwaitingRetry {
		t.Error("snapshot shares status with task")
	}
}

func TestTask_GetDisplayTitle(t *testing.T) {
	tests := []struct {
		task     Task
		expected string
	}{
		{Task{CustomName: "MySong", Title: "Title"}, "MySong"},
		{Task{Title: "Video Title"}, "Video Title"},
		{Task{Title: "https://b23.tv/x", OutputPath: "/dl/Song.mp3"}, "Song"},
		{Task{OutputPath: `C:\dl\Clip.mp4`}, "Clip"},
		{Task{Resource: Resource{URL: "https://b23.tv/xyz"}}, "https://b23.tv/xyz"},
		{Task{SourceLine: "raw"}, "raw"},
	}

	for _, test := range tests {
		result := test.task.GetDisplayTitle()
		if result != test.expected {
			t.Errorf("GetDisplayTitle() = %s, expected %s", result, test.expected)
		}
	}
}

func TestResource_FallbackName(t *testing.T) {
	r := Resource{Kind: ResourceBangumi, ID: "ep123"}
	if got := r.FallbackName(); got != "bangumi_ep123" {
		t.Errorf("FallbackName() = %s, expected bangumi_ep123", got)
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		in       string
		expected Quality
		height   int
	}{
		{"", QualityAuto, 0},
		{"AUTO", QualityAuto, 0},
		{"1080p", Quality1080p, 1080},
		{" 720p ", Quality720p, 720},
		{"480P", Quality480p, 480},
	}
	for _, test := range tests {
		q, err := ParseQuality(test.in)
		if err != nil || q != test.expected || q.Height() != test.height {
			t.Errorf("ParseQuality(%q) = %s/%d/%v", test.in, q, q.Height(), err)
		}
	}
	if _, err := ParseQuality("4k"); err == nil {
		t.Error("ParseQuality(4k) should fail")
	}
}

func TestAttemptTag(t *testing.T) {
	ctx := context.Background()
	if got := AttemptFrom(ctx); got != "" {
		t.Errorf("AttemptFrom(background) = %q, expected empty", got)
	}
	first := AttemptFrom(WithAttempt(ctx, "task-1", 1))
	second := AttemptFrom(WithAttempt(ctx, "task-1", 2))
	if first == "" || first == second {
		t.Errorf("attempt tags %q and %q must be distinct and non-empty", first, second)
	}
}
