package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dailybot/pkg/logx"
)

const sweepTimeout = 30 * time.Second

// startSweeperLocked schedules the periodic override pruning sweep. The
// store already prunes on every load; the sweep keeps the persisted document
// from accumulating stale entries while the schedule is otherwise untouched.
// Caller holds s.mu.
func (s *Service) startSweeperLocked() {
	spec := s.cfg.SweepSpec
	if strings.EqualFold(spec, "off") {
		s.log.Debug("maintenance sweep disabled")
		return
	}

	c := cron.New()
	_, err := c.AddFunc(spec, s.sweep)
	if err != nil {
		s.log.Warn("invalid sweep spec, maintenance sweep disabled",
			logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.sweeper = c
	s.log.Debug("maintenance sweep scheduled", logx.String("spec", spec))
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	dropped, err := s.store.Compact(ctx)
	if err != nil {
		s.log.Warn("maintenance sweep failed", logx.Err(err))
		return
	}
	if dropped > 0 {
		s.log.Info("maintenance sweep pruned stale overrides",
			logx.Int("dropped", dropped))
	}
}
