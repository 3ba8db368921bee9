package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"dailybot/internal/delivery"
	"dailybot/pkg/logx"
)

// execute carries out a fired run and returns the follow-up plan request.
// Panics are converted into an error re-plan so a bad run can never take the
// loop down with it.
func (s *Service) execute(ctx context.Context, run *pendingRun) (next planRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic during run execution",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			s.record(RunRecord{
				At:       s.now(),
				Target:   run.target,
				Reason:   ReasonError,
				Override: run.isOverride,
				Error:    "panic during execution",
			})
			next = planRequest{ref: s.now().Add(s.cfg.ErrorBackoff), reason: ReasonError}
		}
	}()

	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	// Daily slots respect the workday calendar. Overrides were placed
	// deliberately and fire regardless.
	if !run.isOverride && !s.oracle.IsWorkday(run.target) {
		s.log.Info("target falls on a non-workday, skipping",
			logx.Time("target", run.target))
		s.record(RunRecord{At: s.now(), Target: run.target, Reason: ReasonNonWorkday})
		return planRequest{ref: run.target.AddDate(0, 0, 1), reason: ReasonNonWorkday}
	}

	if !s.waitConnected(ctx, ch) {
		if ctx.Err() != nil {
			return planRequest{reason: ReasonError}
		}
		s.log.Warn("delivery channel unavailable, run abandoned",
			logx.Time("target", run.target),
			logx.Int("attempts", s.cfg.MaxRetries))
		s.record(RunRecord{
			At:       s.now(),
			Target:   run.target,
			Reason:   ReasonChannelUnavailable,
			Override: run.isOverride,
		})
		return planRequest{ref: run.target.Add(s.cfg.PostRunDelay), reason: ReasonChannelUnavailable}
	}

	rep, err := ch.SendAll(ctx)
	if err != nil {
		s.log.Error("delivery run failed", logx.Time("target", run.target), logx.Err(err))
		s.record(RunRecord{
			At:       s.now(),
			Target:   run.target,
			Reason:   ReasonError,
			Override: run.isOverride,
			Success:  rep.Success,
			Failed:   rep.Failed,
			Total:    rep.Total,
			Error:    err.Error(),
		})
		return planRequest{ref: s.now().Add(s.cfg.ErrorBackoff), reason: ReasonError}
	}

	if run.isOverride {
		if err := s.store.ConsumeOverride(ctx, run.overrideDate); err != nil {
			s.log.Warn("could not mark override consumed",
				logx.String("date", run.overrideDate),
				logx.Err(err))
		}
	}

	s.log.Info("delivery run completed",
		logx.Time("target", run.target),
		logx.Int("success", rep.Success),
		logx.Int("failed", rep.Failed),
		logx.Int("total", rep.Total))
	s.record(RunRecord{
		At:       s.now(),
		Target:   run.target,
		Reason:   ReasonCompleted,
		Override: run.isOverride,
		Success:  rep.Success,
		Failed:   rep.Failed,
		Total:    rep.Total,
	})
	return planRequest{ref: run.target.Add(s.cfg.PostRunDelay), reason: ReasonCompleted}
}

// waitConnected probes the channel until it reports connected, the retry
// budget runs out, or the context ends. Probe errors count as disconnected.
func (s *Service) waitConnected(ctx context.Context, ch delivery.Channel) bool {
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		state, err := ch.ConnectionState(ctx)
		if err != nil {
			s.log.Debug("connectivity probe failed",
				logx.Int("attempt", attempt), logx.Err(err))
			state = delivery.StateDisconnected
		}
		if state == delivery.StateConnected {
			return true
		}
		if attempt == s.cfg.MaxRetries {
			break
		}
		s.log.Warn("delivery channel not ready",
			logx.String("state", state.String()),
			logx.Int("attempt", attempt),
			logx.Duration("retryIn", s.cfg.RetryInterval))

		timer := time.NewTimer(s.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return false
}
