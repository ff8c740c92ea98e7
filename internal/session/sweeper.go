package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Sweeper runs Manager.Sweep on a cron schedule.
type Sweeper struct {
	manager *Manager
	cron    string
	log     *slog.Logger
	now     func() time.Time
}

func NewSweeper(manager *Manager, cron string, logger *slog.Logger) (*Sweeper, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cron)
	}
	return &Sweeper{manager: manager, cron: cron, log: logger, now: time.Now}, nil
}

// Next reports the first tick strictly after t.
func (s *Sweeper) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cron, t, false)
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("sweeper_started", "cron", s.cron)
	for {
		next, err := s.Next(s.now().UTC())
		if err != nil {
			s.log.Error("sweeper_nexttick_failed", "cron", s.cron, "error", err)
			next = s.now().Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("sweeper_stopping")
			return
		case <-timer.C:
		}

		n, err := s.manager.Sweep(ctx)
		if err != nil {
			s.log.Error("sweep_failed", "error", err)
			continue
		}
		if n > 0 {
			s.log.Info("sweep_done", "expired", n)
		}
	}
}
