package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"studypilot/internal/calendar"
	"studypilot/internal/config"
	"studypilot/internal/httpapi"
	"studypilot/internal/maintenance"
	"studypilot/internal/schedule"
	"studypilot/internal/store"
)

// The map* helpers translate the raw config document into per-component
// configs. Each one validates as it maps, so the config validator can reuse
// them to reject a bad hot-reload before it is committed.

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "sqlite", "sqlite3":
		if path == "" {
			return store.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return store.Config{}, err
		}
		return store.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(sc.DSN) == "" {
			return store.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return store.Config{Driver: driver, DSN: sc.DSN}, nil
	case "memory":
		return store.Config{Driver: "memory"}, nil
	default:
		return store.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapCalendarConfig(cfg *config.Config) (calendar.ClientConfig, error) {
	cc := cfg.Calendar
	base := strings.TrimSpace(cc.BaseURL)
	if base == "" {
		return calendar.ClientConfig{}, fmt.Errorf("calendar.base_url is required")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return calendar.ClientConfig{}, fmt.Errorf("calendar.base_url: invalid URL %q", base)
	}
	timeout, err := config.ParseDurationOrDefault("calendar.timeout", cc.Timeout, 0)
	if err != nil {
		return calendar.ClientConfig{}, err
	}
	if cc.RatePerSec < 0 {
		return calendar.ClientConfig{}, fmt.Errorf("calendar.rate_per_sec must be >= 0")
	}
	return calendar.ClientConfig{
		BaseURL:    base,
		Token:      cc.Token,
		Timeout:    timeout,
		RatePerSec: float64(cc.RatePerSec),
	}, nil
}

func mapEngineConfig(cfg *config.Config) (schedule.Config, error) {
	cacheTTL, err := config.ParseDurationOrDefault("calendar.cache_ttl", cfg.Calendar.CacheTTL, 0)
	if err != nil {
		return schedule.Config{}, err
	}

	out := schedule.Config{CacheTTL: cacheTTL}
	sc := cfg.Scheduling
	if sc == nil {
		return out, nil
	}
	if sc.CommitRetryMax < 0 {
		return schedule.Config{}, fmt.Errorf("scheduling.commit_retry_max must be >= 0")
	}
	if sc.FallbackDays < 0 {
		return schedule.Config{}, fmt.Errorf("scheduling.fallback_days must be >= 0")
	}
	out.RunTimeout, err = config.ParseDurationOrDefault("scheduling.run_timeout", sc.RunTimeout, 0)
	if err != nil {
		return schedule.Config{}, err
	}
	out.CommitRetryMax = sc.CommitRetryMax
	out.FallbackDays = sc.FallbackDays
	out.DefaultWorkDuration = config.MinutesOrDefault(sc.DefaultWorkDuration, 0)
	out.MaxTaskDuration = config.MinutesOrDefault(sc.MaxTaskDuration, 0)
	return out, nil
}

func mapAPIConfig(cfg *config.Config) (httpapi.Config, error) {
	ac := cfg.API
	read, err := config.ParseDurationOrDefault("api.read_timeout", ac.ReadTimeout, 0)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("api.write_timeout", ac.WriteTimeout, 0)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("api.idle_timeout", ac.IdleTimeout, 0)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:           strings.TrimSpace(ac.Addr),
		AllowedOrigins: ac.AllowedOrigins,
		ReadTimeout:    read,
		WriteTimeout:   write,
		IdleTimeout:    idle,
	}, nil
}

func mapMaintenanceConfig(cfg *config.Config) (maintenance.Config, error) {
	out := maintenance.Config{Enabled: true}
	mc := cfg.Maintenance
	if mc == nil {
		return out, nil
	}
	if mc.Enabled != nil {
		out.Enabled = *mc.Enabled
	}
	out.PruneSpec = strings.TrimSpace(mc.PruneSpec)
	out.RepairSpec = strings.TrimSpace(mc.RepairSpec)
	return out, nil
}
