package scheduler

import (
	"context"
	"time"

	"dailybot/internal/schedule"
)

// Reschedule reasons. Recorded in snapshots, run history, and logs so an
// operator can reconstruct why the scheduler moved.
const (
	ReasonInitial            = "initial"
	ReasonManual             = "manual"
	ReasonIdleCheck          = "idle-check"
	ReasonScheduleRetry      = "schedule-retry"
	ReasonNonWorkday         = "non-workday"
	ReasonChannelUnavailable = "channel-unavailable"
	ReasonCompleted          = "completed"
	ReasonError              = "error"
	ReasonExternalChange     = "external-change"
)

// Config tunes the run-loop timings. Zero values fall back to the defaults
// the daemon ships with.
type Config struct {
	// RetryInterval is the wait between connectivity probes and between
	// planning retries after a store failure.
	RetryInterval time.Duration

	// MaxRetries bounds the connectivity probes per run.
	MaxRetries int

	// IdleRecheck is the re-plan interval while no run is due within the
	// lookahead horizon (paused with no overrides, or all weekdays off).
	IdleRecheck time.Duration

	// ErrorBackoff is the re-plan delay after an execution failure.
	ErrorBackoff time.Duration

	// PostRunDelay nudges the re-plan reference past the fired target so
	// the same slot cannot trigger twice.
	PostRunDelay time.Duration

	// SweepSpec is the cron spec for the override pruning sweep. "off"
	// disables it.
	SweepSpec string
}

const (
	defaultRetryInterval = 30 * time.Second
	defaultMaxRetries    = 10
	defaultIdleRecheck   = time.Hour
	defaultErrorBackoff  = 15 * time.Minute
	defaultPostRunDelay  = time.Minute
	defaultSweepSpec     = "@hourly"

	historyLimit = 200
)

func (c Config) withDefaults() Config {
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.IdleRecheck <= 0 {
		c.IdleRecheck = defaultIdleRecheck
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaultErrorBackoff
	}
	if c.PostRunDelay <= 0 {
		c.PostRunDelay = defaultPostRunDelay
	}
	if c.SweepSpec == "" {
		c.SweepSpec = defaultSweepSpec
	}
	return c
}

// ScheduleStore is the slice of the schedule store the run loop needs.
type ScheduleStore interface {
	Load(ctx context.Context) (schedule.Document, error)
	ConsumeOverride(ctx context.Context, date string) error
	Compact(ctx context.Context) (int, error)
}

// State is the run loop's coarse position, readable without locking.
type State int32

const (
	StateIdle State = iota
	StatePlanning
	StateArmed
	StateExecuting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateArmed:
		return "armed"
	case StateExecuting:
		return "executing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// planRequest asks the loop to plan anew. A zero ref means "now".
type planRequest struct {
	ref    time.Time
	reason string
}

// pendingRun is an armed target waiting for its timer.
type pendingRun struct {
	target       time.Time
	overrideDate string
	isOverride   bool
}

// RunRecord is one completed (or abandoned) execution attempt.
type RunRecord struct {
	At       time.Time `json:"at"`
	Target   time.Time `json:"target"`
	Reason   string    `json:"reason"`
	Override bool      `json:"override"`
	Success  int       `json:"success,omitempty"`
	Failed   int       `json:"failed,omitempty"`
	Total    int       `json:"total,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of the scheduler for status endpoints.
type Snapshot struct {
	Running        bool      `json:"running"`
	State          string    `json:"state"`
	NextTarget     time.Time `json:"nextTarget,omitzero"`
	NextIsOverride bool      `json:"nextIsOverride"`
	LastReason     string    `json:"lastReason,omitempty"`
	PlannedAt      time.Time `json:"plannedAt,omitzero"`
}
