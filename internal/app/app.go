// Package app wires the scheduler's components together: config, logging,
// storage, the calendar client, the scheduling engine, the HTTP API, and
// background maintenance.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studypilot/internal/calendar"
	"studypilot/internal/config"
	"studypilot/internal/eventbus"
	"studypilot/internal/httpapi"
	"studypilot/internal/maintenance"
	"studypilot/internal/runtime/supervisor"
	"studypilot/internal/schedule"
	"studypilot/internal/store"
	logx "studypilot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    store.Store
	provider *calendar.Client
	engine   *schedule.Engine
	metrics  *schedule.Collector
	api      *httpapi.Server
	maint    *maintenance.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	bus := eventbus.New()

	stCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	calCfg, err := mapCalendarConfig(cfg)
	if err != nil {
		return nil, err
	}
	provider := calendar.NewClient(calCfg, log.With(logx.String("comp", "calendar")))

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := schedule.New(engCfg, st, provider, bus, log.With(logx.String("comp", "engine")))
	metrics := schedule.NewCollector()

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(apiCfg, eng, metrics, log.With(logx.String("comp", "api")))

	maintCfg, err := mapMaintenanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	maint := maintenance.New(maintCfg, st, bus, log.With(logx.String("comp", "maintenance")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    st,
		provider: provider,
		engine:   eng,
		metrics:  metrics,
		api:      api,
		maint:    maint,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Addr reports the HTTP API bind address once Start has returned.
func (a *App) Addr() string {
	if a.api == nil {
		return ""
	}
	return a.api.Addr()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		if _, err := mapCalendarConfig(cfg); err != nil {
			return err
		}
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapAPIConfig(cfg); err != nil {
			return err
		}
		if _, err := mapMaintenanceConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.cfgm.Get().API.Enabled {
		if err := a.api.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	if err := a.maint.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.GoRestart("metrics.collect", func(c context.Context) error {
		return a.metrics.Run(c, a.bus)
	})

	// Debug trace of bus traffic; components subscribe themselves for real work.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes a validated config into the running components. Storage
// and calendar endpoint changes need a restart; everything else applies live.
func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if s == "storage" || s == "calendar" {
			a.log.Warn("section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	// Engine knobs apply to the next run.
	if engCfg, err := mapEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduling config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(engCfg)
	}

	// API enable/disable and address changes restart the listener.
	oldAPI, _ := mapAPIConfig(oldCfg)
	newAPI, err := mapAPIConfig(newCfg)
	switch {
	case err != nil:
		a.log.Warn("invalid api config; keeping previous", logx.Err(err))
	case oldCfg.API.Enabled && !newCfg.API.Enabled:
		a.log.Info("api disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.api.Stop(stopCtx)
		cancel()
	case !oldCfg.API.Enabled && newCfg.API.Enabled:
		a.log.Info("api enabled via config")
		a.api.Reconfigure(newAPI)
		if err := a.api.Start(ctx); err != nil {
			a.log.Warn("api start failed", logx.Err(err))
		}
	case newCfg.API.Enabled && !sameAPIConfig(oldAPI, newAPI):
		a.log.Info("api config changed, restarting listener", logx.String("addr", newAPI.Addr))
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.api.Stop(stopCtx)
		cancel()
		a.api.Reconfigure(newAPI)
		if err := a.api.Start(ctx); err != nil {
			a.log.Warn("api restart failed", logx.Err(err))
		}
	}

	// Maintenance restarts cheaply: it is just cron registrations.
	if maintCfg, err := mapMaintenanceConfig(newCfg); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	} else if !sameMaintenanceConfig(oldCfg, newCfg) {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.maint.Stop(stopCtx)
		cancel()
		a.maint = maintenance.New(maintCfg, a.store, a.bus, a.log.With(logx.String("comp", "maintenance")))
		if err := a.maint.Start(ctx); err != nil {
			a.log.Warn("maintenance restart failed", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", fields...)
}

func sameAPIConfig(a, b httpapi.Config) bool {
	return a.Addr == b.Addr &&
		strings.Join(a.AllowedOrigins, ",") == strings.Join(b.AllowedOrigins, ",") &&
		a.ReadTimeout == b.ReadTimeout &&
		a.WriteTimeout == b.WriteTimeout &&
		a.IdleTimeout == b.IdleTimeout
}

func sameMaintenanceConfig(a, b *config.Config) bool {
	am, _ := mapMaintenanceConfig(a)
	bm, _ := mapMaintenanceConfig(b)
	return am == bm
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("api", 5*time.Second, func(c context.Context) error { return a.api.Stop(c) })
	step("maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
