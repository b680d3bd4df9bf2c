// Package scheduler implements the Autonomous Task Scheduler: a priority
// queue over scheduled tasks with Once/Recurring/Cron variants, grounded on
// the teacher's eventloop-adjacent timer-heap idiom (container/heap, as used
// in the joeycumines-go-utilpkg eventloop package) rather than a hand-rolled
// sorted slice.
package scheduler

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Status is the lifecycle state of a scheduled task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ScheduleKind identifies which Schedule variant a task carries.
type ScheduleKind string

const (
	ScheduleOnce      ScheduleKind = "once"
	ScheduleRecurring ScheduleKind = "recurring"
	ScheduleCron      ScheduleKind = "cron"
)

// Schedule is a closed sum type over the three scheduling variants (spec §3
// "Scheduled task").
type Schedule struct {
	Kind ScheduleKind

	// Once
	At time.Time

	// Recurring
	IntervalSecs int64
	Start        time.Time

	// Cron
	Expression string
	parsed     cron.Schedule
}

// NewOnceSchedule builds a one-shot schedule firing at at.
func NewOnceSchedule(at time.Time) Schedule {
	return Schedule{Kind: ScheduleOnce, At: at}
}

// NewRecurringSchedule builds a fixed-interval schedule starting at start.
func NewRecurringSchedule(intervalSecs int64, start time.Time) Schedule {
	return Schedule{Kind: ScheduleRecurring, IntervalSecs: intervalSecs, Start: start}
}

// NewCronSchedule parses expression with the standard five-field cron
// parser, resolving spec §9's "compute_next_run is a placeholder" open
// question in favor of a real cron schedule library.
func NewCronSchedule(expression string) (Schedule, error) {
	parsed, err := cron.ParseStandard(expression)
	if err != nil {
		return Schedule{}, ErrInvalidCronExpression
	}
	return Schedule{Kind: ScheduleCron, Expression: expression, parsed: parsed}, nil
}

// computeNextRun returns the next fire time after from for Recurring and Cron
// schedules; a Once schedule always returns its At time, even when that is
// not after from.
func (s Schedule) computeNextRun(from time.Time) time.Time {
	switch s.Kind {
	case ScheduleOnce:
		return s.At
	case ScheduleRecurring:
		if from.Before(s.Start) {
			return s.Start
		}
		return from.Add(time.Duration(s.IntervalSecs) * time.Second)
	case ScheduleCron:
		if s.parsed == nil {
			return from
		}
		return s.parsed.Next(from)
	default:
		return from
	}
}

// Task is a unit of scheduled work (spec §3 "Scheduled task").
type Task struct {
	ID             string
	Description    string
	Priority       int
	Schedule       Schedule
	Action         string
	Status         Status
	NextRun        time.Time
	CreatedAt      time.Time
	ExecutionCount int
	FailureReason  string
	CancelledAt    time.Time
}

// ClampPriority enforces the [1,10] invariant from spec §3.
func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

var (
	ErrInvalidCronExpression = errors.New("scheduler: invalid cron expression")
	ErrTaskNotFound          = errors.New("scheduler: task not found")
)
