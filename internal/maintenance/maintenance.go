// Package maintenance runs the periodic background jobs: pruning expired
// idempotency records and clearing stale tentative placements left behind by
// a crash between the tentative write and the calendar commit.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"studypilot/internal/eventbus"
	"studypilot/internal/store"
	logx "studypilot/pkg/logx"
)

// Config controls the job schedules. Specs are 5-field cron expressions or
// descriptors like "@every 15m".
type Config struct {
	Enabled    bool
	PruneSpec  string // default "@hourly"
	RepairSpec string // default "@every 15m"

	// RepairAfter is how old a tentative placement must be before it is
	// cleared. Must comfortably exceed the engine's run timeout.
	RepairAfter time.Duration // default 10m
}

func (c Config) withDefaults() Config {
	if c.PruneSpec == "" {
		c.PruneSpec = "@hourly"
	}
	if c.RepairSpec == "" {
		c.RepairSpec = "@every 15m"
	}
	if c.RepairAfter <= 0 {
		c.RepairAfter = 10 * time.Minute
	}
	return c
}

// Service owns the cron runner.
type Service struct {
	cfg Config
	st  store.Store
	bus eventbus.Bus
	log logx.Logger
	c   *cron.Cron
}

func New(cfg Config, st store.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), st: st, bus: bus, log: log.With(logx.String("comp", "maintenance"))}
}

// Start registers the jobs and starts triggering. No-op when disabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.PruneSpec, s.prune); err != nil {
		return err
	}
	if _, err := c.AddFunc(s.cfg.RepairSpec, s.repair); err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("maintenance started",
		logx.String("prune", s.cfg.PruneSpec),
		logx.String("repair", s.cfg.RepairSpec))

	// One repair sweep at boot so restarts converge immediately.
	go s.repair()
	return nil
}

// Stop halts triggering and waits for running jobs.
func (s *Service) Stop(ctx context.Context) {
	c := s.c
	s.c = nil
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("maintenance stopped")
}

func (s *Service) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.st.PruneExpired(ctx); err != nil {
		s.log.Warn("idempotency prune failed", logx.Err(err))
		return
	}
	s.publish("maintenance.prune")
	s.log.Debug("idempotency records pruned")
}

func (s *Service) repair() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.st.RepairTentative(ctx, s.cfg.RepairAfter)
	if err != nil {
		s.log.Warn("tentative repair failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("stale tentative placements cleared", logx.Int("count", n))
	}
	s.publish("maintenance.repair")
}

func (s *Service) publish(topic string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: topic})
}
