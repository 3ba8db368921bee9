package scheduler

import (
	"context"
	"time"

	"dailybot/internal/schedule"
	"dailybot/pkg/logx"
)

// plan resolves the next run relative to the request. It returns the timer
// delay, the run to execute when the timer fires (nil when the timer is only
// a re-plan wakeup), and the reason tag for that wakeup.
func (s *Service) plan(ctx context.Context, req planRequest) (time.Duration, *pendingRun, string) {
	ref := req.ref
	if ref.IsZero() {
		ref = s.now()
	}

	doc, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("could not load schedule, retrying shortly",
			logx.String("reason", req.reason),
			logx.Duration("retryIn", s.cfg.RetryInterval),
			logx.Err(err))
		s.setPlanned(time.Time{}, false, req.reason)
		return s.cfg.RetryInterval, nil, ReasonScheduleRetry
	}

	res, err := schedule.Resolve(doc, ref)
	if err != nil {
		s.log.Warn("could not resolve next run, retrying shortly",
			logx.String("reason", req.reason),
			logx.Duration("retryIn", s.cfg.RetryInterval),
			logx.Err(err))
		s.setPlanned(time.Time{}, false, req.reason)
		return s.cfg.RetryInterval, nil, ReasonScheduleRetry
	}

	if res.Kind != schedule.KindTriggered {
		s.log.Info("no run due within horizon",
			logx.String("state", res.Kind.String()),
			logx.String("reason", req.reason),
			logx.Bool("paused", doc.Paused),
			logx.Duration("recheckIn", s.cfg.IdleRecheck))
		s.setPlanned(time.Time{}, false, req.reason)
		return s.cfg.IdleRecheck, nil, ReasonIdleCheck
	}

	run := &pendingRun{target: res.Target}
	source := "daily"
	if res.Override != nil {
		run.isOverride = true
		run.overrideDate = res.Override.Date
		source = "override"
	}

	now := s.now()
	delay := res.Target.Sub(now)
	if delay < 0 {
		delay = 0
	}

	s.log.Info("next run planned",
		logx.Time("target", res.Target),
		logx.String("source", source),
		logx.String("reason", req.reason),
		logx.Duration("in", delay))
	s.setPlanned(res.Target, run.isOverride, req.reason)
	return delay, run, ""
}
