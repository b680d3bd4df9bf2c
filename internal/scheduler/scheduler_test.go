package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, ClampPriority(0))
	assert.Equal(t, 1, ClampPriority(-5))
	assert.Equal(t, 10, ClampPriority(11))
	assert.Equal(t, 5, ClampPriority(5))
}

func TestQueueDepthReflectsPendingTasks(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	assert.Equal(t, 0, s.QueueDepth())
	s.ScheduleOnce("a", "noop", 5, now)
	s.ScheduleOnce("b", "noop", 5, now.Add(time.Hour))
	assert.Equal(t, 2, s.QueueDepth())

	task, ok := s.NextDue()
	require.True(t, ok)
	require.NoError(t, s.CompleteTask(task.ID))
	assert.Equal(t, 1, s.QueueDepth())
}

func TestNextDueReturnsFalseWhenNothingDue(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	s.ScheduleOnce("future task", "noop", 5, now.Add(time.Hour))

	_, ok := s.NextDue()
	assert.False(t, ok)
}

func TestNextDueReturnsTopWhenDue(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	s.ScheduleOnce("ready task", "noop", 5, now.Add(-time.Minute))

	task, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, "ready task", task.Description)
}

func TestPriorityOrderingHighestFirst(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	s.ScheduleOnce("low", "noop", 2, now.Add(-time.Minute))
	s.ScheduleOnce("high", "noop", 9, now.Add(-time.Minute))
	s.ScheduleOnce("mid", "noop", 5, now.Add(-time.Minute))

	due := s.AllDue()
	require.Len(t, due, 3)
	assert.Equal(t, "high", due[0].Description)
	assert.Equal(t, "mid", due[1].Description)
	assert.Equal(t, "low", due[2].Description)
}

func TestPriorityTiesBrokenByEarlierNextRun(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	s.ScheduleOnce("later", "noop", 5, now.Add(-time.Minute))
	s.ScheduleOnce("earlier", "noop", 5, now.Add(-time.Hour))

	due := s.AllDue()
	require.Len(t, due, 2)
	assert.Equal(t, "earlier", due[0].Description)
	assert.Equal(t, "later", due[1].Description)
}

func TestAllDueLeavesNotDueTasksInQueue(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	s.ScheduleOnce("due", "noop", 5, now.Add(-time.Minute))
	s.ScheduleOnce("not due", "noop", 5, now.Add(time.Hour))

	due := s.AllDue()
	assert.Len(t, due, 1)
	assert.Equal(t, "due", due[0].Description)

	_, ok := s.NextDue()
	assert.False(t, ok, "remaining task is not yet due")
}

func TestCompleteTaskOnceMovesToHistory(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	task := s.ScheduleOnce("one-shot", "noop", 5, now.Add(-time.Minute))
	require.NoError(t, s.CompleteTask(task.ID))

	_, ok := s.NextDue()
	assert.False(t, ok)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, StatusCompleted, history[0].Status)
	assert.Equal(t, 1, history[0].ExecutionCount)
}

func TestCompleteTaskRecurringReinsertsWithNextRun(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	task := s.ScheduleRecurring("heartbeat", "ping", 5, 60, now.Add(-time.Minute))
	require.NoError(t, s.CompleteTask(task.ID))

	assert.Empty(t, s.History(), "recurring task should not move to history on completion")

	// advance clock past the newly computed next_run
	s.now = fixedClock(now.Add(2 * time.Minute))
	due, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, 1, due.ExecutionCount)
}

func TestFailTaskRecordsErrorAndMovesToHistory(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	task := s.ScheduleOnce("flaky", "noop", 5, now.Add(-time.Minute))
	require.NoError(t, s.FailTask(task.ID, errors.New("boom")))

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, StatusFailed, history[0].Status)
	assert.Equal(t, "boom", history[0].FailureReason)
}

func TestCancelTaskRemovesFromQueueAtomically(t *testing.T) {
	now := time.Now()
	s := New(10)
	s.now = fixedClock(now)

	task := s.ScheduleOnce("will cancel", "noop", 5, now.Add(-time.Minute))
	require.NoError(t, s.CancelTask(task.ID))

	_, ok := s.NextDue()
	assert.False(t, ok)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, StatusCancelled, history[0].Status)
}

func TestHistoryBoundedByMaxHistoryOldestEvicted(t *testing.T) {
	now := time.Now()
	s := New(2)
	s.now = fixedClock(now)

	var ids []string
	for i := 0; i < 3; i++ {
		task := s.ScheduleOnce("t", "noop", 5, now.Add(-time.Minute))
		require.NoError(t, s.CompleteTask(task.ID))
		ids = append(ids, task.ID)
	}

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0].ID)
	assert.Equal(t, ids[2], history[1].ID)
}

func TestUnknownTaskOperationsReturnErrTaskNotFound(t *testing.T) {
	s := New(10)
	assert.ErrorIs(t, s.CompleteTask("missing"), ErrTaskNotFound)
	assert.ErrorIs(t, s.FailTask("missing", errors.New("x")), ErrTaskNotFound)
	assert.ErrorIs(t, s.CancelTask("missing"), ErrTaskNotFound)
}

func TestScheduleCronRejectsInvalidExpression(t *testing.T) {
	s := New(10)
	_, err := s.ScheduleCron("bad", "noop", 5, "not a cron expression")
	assert.ErrorIs(t, err, ErrInvalidCronExpression)
}

func TestScheduleCronComputesNextRunFromExpression(t *testing.T) {
	s := New(10)
	task, err := s.ScheduleCron("nightly", "build", 5, "0 0 * * *")
	require.NoError(t, err)
	assert.True(t, task.NextRun.After(time.Now()))
}

func TestAddTaskClampsPriority(t *testing.T) {
	s := New(10)
	task := s.AddTask(Task{Description: "x", Priority: 50, Schedule: NewOnceSchedule(time.Now())})
	assert.Equal(t, 10, task.Priority)
}
