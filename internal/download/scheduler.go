package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/retry"
)

// Scheduler defaults
const (
	DefaultConcurrency = 3
	MaxConcurrency     = 10
	DefaultEventBuffer = 256
	progressBuffer     = 64
)

// Options configures a scheduler
type Options struct {
	Concurrency int
	Policy      retry.Policy
	// DiscardCancelledOutput removes files committed by attempts that
	// finished after their task was cancelled.
	DiscardCancelledOutput bool
	EventBuffer            int
}

// DefaultOptions returns the scheduler defaults
func DefaultOptions() Options {
	return Options{
		Concurrency:            DefaultConcurrency,
		Policy:                 retry.DefaultPolicy(),
		DiscardCancelledOutput: true,
		EventBuffer:            DefaultEventBuffer,
	}
}

// Batch is one submission of parsed input lines
type Batch struct {
	Tasks    []model.ParsedTask
	Rejected []model.Rejection
	Mode     model.Mode
	Quality  model.Quality
}

// Scheduler starts batch runs against an executor
type Scheduler struct {
	exec Executor
	opts Options
	log  logrus.FieldLogger
}

// NewScheduler creates a scheduler. Concurrency is clamped to 1..MaxConcurrency.
func NewScheduler(exec Executor, opts Options, log logrus.FieldLogger) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Concurrency > MaxConcurrency {
		opts.Concurrency = MaxConcurrency
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Scheduler{exec: exec, opts: opts, log: log}
}

type job struct {
	ctx  context.Context
	task model.Task
}

type result struct {
	taskID  string
	attempt int
	path    string
	err     error
}

type progressMsg struct {
	taskID   string
	attempt  int
	fraction float64
}

// Run is a batch in progress. Events must be drained until the channel closes.
type Run struct {
	exec   Executor
	opts   Options
	log    logrus.FieldLogger
	parent context.Context

	mu    sync.RWMutex
	batch *model.BatchRun

	events   chan Event
	jobs     chan job
	results  chan result
	progress chan progressMsg
	ready    chan string

	cancelOnce sync.Once
	cancelCh   chan struct{}
	stopped    chan struct{}
	done       chan struct{}
	summary    model.Summary

	// Coordinator-owned state
	queue     []*model.Task
	inflight  map[string]context.CancelFunc
	delayed   map[string]*time.Timer
	cancelled bool
}

// Start creates one task per parsed line in submission order and begins
// dispatching. Rejected lines are reported as log lines.
func (s *Scheduler) Start(ctx context.Context, b Batch) *Run {
	batch := model.NewBatchRun(generateTaskID(), b.Mode, b.Quality)
	for _, parsed := range b.Tasks {
		batch.AddTask(model.NewTask(generateTaskID(), parsed, b.Mode, b.Quality))
	}
	for _, rej := range b.Rejected {
		batch.Reject(rej)
	}

	r := &Run{
		exec:     s.exec,
		opts:     s.opts,
		log:      s.log.WithField("batch_id", batch.ID),
		parent:   ctx,
		batch:    batch,
		events:   make(chan Event, s.opts.EventBuffer),
		jobs:     make(chan job, s.opts.Concurrency),
		results:  make(chan result),
		progress: make(chan progressMsg, progressBuffer),
		ready:    make(chan string),
		cancelCh: make(chan struct{}),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		inflight: make(map[string]context.CancelFunc),
		delayed:  make(map[string]*time.Timer),
	}
	r.queue = append(r.queue, batch.Tasks...)

	var workers sync.WaitGroup
	for i := 0; i < s.opts.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			r.worker()
		}()
	}
	go r.coordinate(&workers)
	return r
}

// ID returns the batch id
func (r *Run) ID() string {
	return r.batch.ID
}

// Events returns the event channel. It closes after BatchCompleted.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel stops the batch. Every non-terminal task becomes Cancelled.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// Wait blocks until the batch completes and returns the final summary
func (r *Run) Wait() model.Summary {
	<-r.done
	return r.summary
}

// Done is closed when the batch completes
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Snapshot returns deep copies of all tasks in submission order
func (r *Run) Snapshot() []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batch.Snapshot()
}

// Summary returns the current counters
func (r *Run) Summary() model.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batch.Summary()
}

// Batch returns a deep copy of the batch record
func (r *Run) Batch() model.BatchRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r.batch
	cp.Tasks = make([]*model.Task, 0, len(r.batch.Tasks))
	for _, t := range r.batch.Tasks {
		snap := t.Snapshot()
		cp.Tasks = append(cp.Tasks, &snap)
	}
	cp.Rejected = append([]model.Rejection(nil), r.batch.Rejected...)
	return cp
}

func (r *Run) worker() {
	for j := range r.jobs {
		id, attempt := j.task.ID, j.task.Attempt
		path, err := r.execute(j, func(f float64) {
			select {
			case r.progress <- progressMsg{taskID: id, attempt: attempt, fraction: f}:
			default:
			}
		})
		r.results <- result{taskID: id, attempt: attempt, path: path, err: err}
	}
}

func (r *Run) execute(j job, progress func(float64)) (path string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("attempt panicked: %v", p)
		}
	}()
	return r.exec.ExecuteAttempt(j.ctx, j.task, progress)
}

func (r *Run) coordinate(workers *sync.WaitGroup) {
	for _, rej := range r.batch.Rejected {
		r.logLine(fmt.Sprintf("Line %d rejected: %s (%s)", rej.LineNo, rej.Reason, strings.TrimSpace(rej.Line)))
	}
	for _, t := range r.batch.Tasks {
		r.emit(Event{Type: EventTaskCreated, TaskID: t.ID, Task: t.Snapshot(), Status: t.Status})
	}
	r.log.WithFields(logrus.Fields{
		"tasks":       len(r.batch.Tasks),
		"rejected":    len(r.batch.Rejected),
		"concurrency": r.opts.Concurrency,
	}).Info("Batch started")

	idle := r.opts.Concurrency
	cancelCh, parentDone := r.cancelCh, r.parent.Done()
	for !r.finished() {
		for idle > 0 && len(r.queue) > 0 && !r.cancelled {
			task := r.queue[0]
			r.queue = r.queue[1:]
			if r.dispatch(task) {
				idle--
			}
		}
		if r.finished() {
			break
		}

		select {
		case res := <-r.results:
			idle++
			r.handleResult(res)
		case msg := <-r.progress:
			r.handleProgress(msg)
		case id := <-r.ready:
			r.handleReady(id)
		case <-cancelCh:
			cancelCh, parentDone = nil, nil
			r.cancelAll("batch cancelled")
		case <-parentDone:
			cancelCh, parentDone = nil, nil
			r.cancelAll(r.parent.Err().Error())
		}
	}

	close(r.jobs)
	workers.Wait()
	close(r.stopped)

	status := model.BatchStatusCompleted
	if r.cancelled {
		status = model.BatchStatusCancelled
	}
	r.mu.Lock()
	r.batch.Finish(status)
	r.summary = r.batch.Summary()
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"succeeded": r.summary.Succeeded,
		"failed":    r.summary.Failed,
		"cancelled": r.summary.Cancelled,
		"rejected":  r.summary.Rejected,
	}).Info("Batch completed")
	r.emit(Event{Type: EventBatchCompleted, Summary: r.summary})
	close(r.events)
	close(r.done)
}

func (r *Run) finished() bool {
	if len(r.inflight) > 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.batch.Tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (r *Run) dispatch(task *model.Task) bool {
	r.mu.Lock()
	if !task.Status.IsRunnable() {
		r.mu.Unlock()
		return false
	}
	err := task.Start()
	snap := task.Snapshot()
	r.mu.Unlock()
	if err != nil {
		r.log.WithError(err).WithField("task_id", task.ID).Warn("Skipping task that cannot start")
		return false
	}

	ctx, cancel := context.WithCancel(r.parent)
	r.inflight[task.ID] = cancel
	r.statusChanged(snap)
	r.log.WithFields(logrus.Fields{"task_id": task.ID, "attempt": snap.Attempt}).Debug("Attempt dispatched")
	r.jobs <- job{ctx: ctx, task: snap}
	return true
}

func (r *Run) handleProgress(msg progressMsg) {
	r.mu.Lock()
	task, ok := r.batch.Task(msg.taskID)
	changed := ok && task.Attempt == msg.attempt && task.SetProgress(msg.fraction)
	var fraction float64
	if changed {
		fraction = task.Progress
	}
	r.mu.Unlock()
	if !changed {
		return
	}

	select {
	case r.events <- Event{Type: EventTaskProgress, At: time.Now(), TaskID: msg.taskID, Status: model.TaskStatusRunning, Progress: fraction}:
	default:
	}
}

func (r *Run) handleResult(res result) {
	if cancel, ok := r.inflight[res.taskID]; ok {
		cancel()
		delete(r.inflight, res.taskID)
	}
	log := r.log.WithFields(logrus.Fields{"task_id": res.taskID, "attempt": res.attempt})

	r.mu.Lock()
	task, ok := r.batch.Task(res.taskID)
	if !ok {
		r.mu.Unlock()
		return
	}
	if task.Status == model.TaskStatusCancelled {
		r.mu.Unlock()
		if res.err == nil && res.path != "" && r.opts.DiscardCancelledOutput {
			if err := os.Remove(res.path); err != nil && !os.IsNotExist(err) {
				log.WithError(err).Warn("Failed to discard output of cancelled task")
			} else {
				r.logLine(fmt.Sprintf("Discarded output of cancelled task: %s", res.path))
			}
		}
		return
	}

	err := res.err
	if err == nil && res.path == "" {
		err = model.NewError(model.ErrorDisk, "attempt produced no output")
	}

	if err == nil {
		succeedErr := task.Succeed(res.path)
		if task.Title == "" {
			task.Title = strings.TrimSuffix(filepath.Base(res.path), filepath.Ext(res.path))
		}
		snap := task.Snapshot()
		r.mu.Unlock()
		if succeedErr != nil {
			log.WithError(succeedErr).Error("Invalid success transition")
			return
		}
		log.WithField("output", res.path).Info("Task succeeded")
		r.statusChanged(snap)
		return
	}

	willRetry := !r.cancelled && r.opts.Policy.ShouldRetry(task, err)
	failErr := task.Fail(err, willRetry)
	delay := r.opts.Policy.Delay(task, err)
	snap := task.Snapshot()
	r.mu.Unlock()
	if failErr != nil {
		log.WithError(failErr).Error("Invalid failure transition")
		return
	}

	kind := model.KindOf(err)
	log.WithError(err).WithField("kind", kind).Warn("Attempt failed")
	r.logLine(fmt.Sprintf("[%s] Attempt %d failed: %v", snap.GetDisplayTitle(), snap.Attempt, err))
	r.statusChanged(snap)

	if !willRetry {
		if snap.NeedsLogin {
			r.logLine(fmt.Sprintf("[%s] Login/VIP required, log in and resubmit", snap.GetDisplayTitle()))
		}
		return
	}

	r.logLine(fmt.Sprintf("[%s] Retrying (%d/%d) in %s", snap.GetDisplayTitle(), snap.Attempt, r.opts.Policy.MaxRetries, delay))
	if delay <= 0 {
		r.queue = append(r.queue, task)
		return
	}
	id := task.ID
	r.delayed[id] = time.AfterFunc(delay, func() {
		select {
		case r.ready <- id:
		case <-r.stopped:
		}
	})
}

func (r *Run) handleReady(id string) {
	delete(r.delayed, id)
	r.mu.RLock()
	task, ok := r.batch.Task(id)
	eligible := ok && task.Status == model.TaskStatusAwaitingRetry
	r.mu.RUnlock()
	if eligible && !r.cancelled {
		r.queue = append(r.queue, task)
	}
}

// cancelAll moves every non-terminal task to Cancelled in one step and
// cancels in-flight attempts.
func (r *Run) cancelAll(reason string) {
	if r.cancelled {
		return
	}
	r.cancelled = true
	r.queue = nil
	for id, timer := range r.delayed {
		timer.Stop()
		delete(r.delayed, id)
	}
	for _, cancel := range r.inflight {
		cancel()
	}

	var changed []model.Task
	r.mu.Lock()
	for _, t := range r.batch.Tasks {
		if t.Status.IsTerminal() {
			continue
		}
		if err := t.Cancel(); err == nil {
			changed = append(changed, t.Snapshot())
		}
	}
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"reason": reason, "tasks": len(changed)}).Info("Batch cancelled")
	r.logLine(fmt.Sprintf("Cancelled %d task(s): %s", len(changed), reason))
	for _, snap := range changed {
		r.statusChanged(snap)
	}
}

func (r *Run) statusChanged(snap model.Task) {
	r.emit(Event{Type: EventTaskStatusChanged, TaskID: snap.ID, Task: snap, Status: snap.Status, Progress: snap.Progress})
}

func (r *Run) logLine(text string) {
	r.emit(Event{Type: EventLogLine, Text: text})
}

func (r *Run) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.events <- ev
}

// generateTaskID generates a unique, time-ordered ID
func generateTaskID() string {
	return uuid.Must(uuid.NewV7()).String()
}
