package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"dailybot/internal/delivery"
	"dailybot/internal/workday"
	"dailybot/pkg/logx"
)

// Service is the recurring-run scheduler. Construct with New, then Start.
type Service struct {
	cfg    Config
	store  ScheduleStore
	oracle workday.Oracle
	log    logx.Logger
	now    func() time.Time

	mu      sync.Mutex
	channel delivery.Channel
	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan planRequest
	sweeper *cron.Cron

	state atomic.Int32

	snapMu  sync.Mutex
	snap    Snapshot
	history []RunRecord
}

func New(cfg Config, store ScheduleStore, oracle workday.Oracle, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		store:  store,
		oracle: oracle,
		log:    log.With(logx.String("component", "scheduler")),
		now:    time.Now,
	}
}

// SetClock replaces the time source. Call before Start.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start launches the run loop against the given delivery channel. Calling
// Start while already running only rebinds the channel; the loop and its
// pending timer are left alone.
func (s *Service) Start(ctx context.Context, ch delivery.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.channel = ch
		s.log.Info("scheduler already active, delivery channel rebound")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.channel = ch
	s.cancel = cancel
	s.done = make(chan struct{})
	s.kick = make(chan planRequest, 1)
	s.startSweeperLocked()

	go s.loop(runCtx, s.done)
	s.log.Info("scheduler started")
}

// Stop halts the run loop and waits for it to drain. Stopping a scheduler
// that is not running is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done, sweeper := s.cancel, s.done, s.sweeper
	s.cancel, s.done, s.sweeper = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		s.log.Debug("stop requested but scheduler is not running")
		return
	}
	cancel()
	<-done
	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
	s.log.Info("scheduler stopped")
}

// ForceReschedule discards the pending timer and plans anew. Non-blocking;
// concurrent requests collapse into one re-plan.
func (s *Service) ForceReschedule(reason string) {
	s.mu.Lock()
	kick := s.kick
	s.mu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- planRequest{reason: reason}:
		s.log.Debug("reschedule requested", logx.String("reason", reason))
	default:
	}
}

// State reports the loop's current position.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Snapshot returns the current plan view plus liveness.
func (s *Service) Snapshot() Snapshot {
	s.snapMu.Lock()
	snap := s.snap
	s.snapMu.Unlock()

	s.mu.Lock()
	snap.Running = s.cancel != nil
	s.mu.Unlock()
	snap.State = s.State().String()
	return snap
}

// History returns recent run records, oldest first.
func (s *Service) History() []RunRecord {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	out := make([]RunRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) record(rec RunRecord) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.history = append(s.history, rec)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

func (s *Service) setPlanned(target time.Time, isOverride bool, reason string) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snap.NextTarget = target
	s.snap.NextIsOverride = isOverride
	s.snap.LastReason = reason
	s.snap.PlannedAt = s.now()
}

// loop is the single goroutine that owns the timer. A fired timer either
// executes a run or re-plans; an incoming kick always wins over a pending
// timer.
func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.state.Store(int32(StateStopped))

	req := planRequest{reason: ReasonInitial}
	for {
		if ctx.Err() != nil {
			return
		}

		s.state.Store(int32(StatePlanning))
		delay, run, fallback := s.plan(ctx, req)

		timer := time.NewTimer(delay)
		s.state.Store(int32(StateArmed))

		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case k := <-s.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			req = k

		case <-timer.C:
			if run == nil {
				req = planRequest{reason: fallback}
				continue
			}
			s.state.Store(int32(StateExecuting))
			req = s.execute(ctx, run)
		}
	}
}
