package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goose-run/goose-core/internal/logging"
)

// Scheduler is a priority queue over scheduled tasks, stateless across
// restarts (spec §4.7: "persistence is an external concern"). Safe for
// concurrent use.
type Scheduler struct {
	mu         sync.Mutex
	queue      taskHeap
	byID       map[string]*Task
	history    []Task
	maxHistory int
	now        func() time.Time
}

// New constructs a Scheduler bounding its completed/failed/cancelled
// history to maxHistory entries (oldest evicted first).
func New(maxHistory int) *Scheduler {
	if maxHistory <= 0 {
		maxHistory = 200
	}
	s := &Scheduler{
		byID:       make(map[string]*Task),
		maxHistory: maxHistory,
		now:        time.Now,
	}
	heap.Init(&s.queue)
	return s
}

// AddTask inserts an already-constructed task, clamping its priority.
func (s *Scheduler) AddTask(t Task) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Priority = ClampPriority(t.Priority)
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.NextRun.IsZero() {
		t.NextRun = t.Schedule.computeNextRun(s.now())
	}

	taskCopy := t
	s.byID[taskCopy.ID] = &taskCopy
	heap.Push(&s.queue, &taskCopy)
	logging.Get(logging.CategoryScheduler).Info("scheduled task %s priority=%d next_run=%s", taskCopy.ID, taskCopy.Priority, taskCopy.NextRun)
	return &taskCopy
}

// ScheduleOnce is a convenience wrapper for a one-shot task.
func (s *Scheduler) ScheduleOnce(description, action string, priority int, at time.Time) *Task {
	return s.AddTask(Task{
		Description: description,
		Action:      action,
		Priority:    priority,
		Schedule:    NewOnceSchedule(at),
	})
}

// ScheduleRecurring is a convenience wrapper for a fixed-interval task.
func (s *Scheduler) ScheduleRecurring(description, action string, priority int, intervalSecs int64, start time.Time) *Task {
	return s.AddTask(Task{
		Description: description,
		Action:      action,
		Priority:    priority,
		Schedule:    NewRecurringSchedule(intervalSecs, start),
	})
}

// ScheduleCron is a convenience wrapper for a cron-expression task.
func (s *Scheduler) ScheduleCron(description, action string, priority int, expression string) (*Task, error) {
	sched, err := NewCronSchedule(expression)
	if err != nil {
		return nil, err
	}
	return s.AddTask(Task{
		Description: description,
		Action:      action,
		Priority:    priority,
		Schedule:    sched,
	}), nil
}

// QueueDepth returns the number of tasks currently queued, due or not.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// NextDue peeks the top of the queue, returning it only if due (spec §4.7
// "returns Some only if due").
func (s *Scheduler) NextDue() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return nil, false
	}
	top := s.queue[0]
	if top.NextRun.After(s.now()) {
		return nil, false
	}
	out := *top
	return &out, true
}

// AllDue drains every currently-due task in priority order and reinserts
// the rest (spec §4.7 "all_due").
func (s *Scheduler) AllDue() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []Task
	var notDue []*Task
	for s.queue.Len() > 0 {
		top := heap.Pop(&s.queue).(*Task)
		if top.NextRun.After(now) {
			notDue = append(notDue, top)
			continue
		}
		due = append(due, *top)
	}
	for _, t := range notDue {
		heap.Push(&s.queue, t)
	}
	return due
}

// CompleteTask records a successful execution. For Recurring schedules it
// computes the next run and reinserts; for Once it moves the task to
// history (spec §4.7 "complete_task").
func (s *Scheduler) CompleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.ExecutionCount++

	if t.Schedule.Kind == ScheduleRecurring || t.Schedule.Kind == ScheduleCron {
		t.NextRun = t.Schedule.computeNextRun(s.now())
		t.Status = StatusPending
		s.reinsertLocked(t)
		return nil
	}

	t.Status = StatusCompleted
	s.moveToHistoryLocked(t)
	return nil
}

// FailTask moves the task to history with Failed status and records the
// error (spec §4.7 "fail_task").
func (s *Scheduler) FailTask(id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.Status = StatusFailed
	if cause != nil {
		t.FailureReason = cause.Error()
	}
	s.moveToHistoryLocked(t)
	return nil
}

// CancelTask atomically removes a pending task from the queue and appends
// a Cancelled history record (spec §4.7 "cancel_task").
func (s *Scheduler) CancelTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrTaskNotFound
	}
	s.removeFromQueueLocked(id)
	t.Status = StatusCancelled
	t.CancelledAt = s.now()
	s.moveToHistoryLocked(t)
	return nil
}

// History returns a copy of the bounded completed/failed/cancelled history,
// oldest first.
func (s *Scheduler) History() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Scheduler) reinsertLocked(t *Task) {
	s.removeFromQueueLocked(t.ID)
	heap.Push(&s.queue, t)
}

func (s *Scheduler) removeFromQueueLocked(id string) {
	for i, t := range s.queue {
		if t.ID == id {
			heap.Remove(&s.queue, i)
			return
		}
	}
}

func (s *Scheduler) moveToHistoryLocked(t *Task) {
	s.removeFromQueueLocked(t.ID)
	delete(s.byID, t.ID)
	s.history = append(s.history, *t)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	logging.Get(logging.CategoryScheduler).Info("task %s moved to history with status %s", t.ID, t.Status)
}
