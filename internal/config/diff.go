package config

import (
	"reflect"
	"strings"

	logx "studypilot/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like
// tokens or DSNs).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// API
	if oldCfg.API.Enabled != newCfg.API.Enabled ||
		strings.TrimSpace(oldCfg.API.Addr) != strings.TrimSpace(newCfg.API.Addr) ||
		!reflect.DeepEqual(oldCfg.API.AllowedOrigins, newCfg.API.AllowedOrigins) ||
		strings.TrimSpace(oldCfg.API.ReadTimeout) != strings.TrimSpace(newCfg.API.ReadTimeout) ||
		strings.TrimSpace(oldCfg.API.WriteTimeout) != strings.TrimSpace(newCfg.API.WriteTimeout) ||
		strings.TrimSpace(oldCfg.API.IdleTimeout) != strings.TrimSpace(newCfg.API.IdleTimeout) {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", strings.TrimSpace(newCfg.API.Addr)),
			logx.Int("api.origin_count", len(newCfg.API.AllowedOrigins)),
		)
	}

	// Calendar (never log token)
	if strings.TrimSpace(oldCfg.Calendar.BaseURL) != strings.TrimSpace(newCfg.Calendar.BaseURL) ||
		strings.TrimSpace(oldCfg.Calendar.Timeout) != strings.TrimSpace(newCfg.Calendar.Timeout) ||
		strings.TrimSpace(oldCfg.Calendar.CacheTTL) != strings.TrimSpace(newCfg.Calendar.CacheTTL) ||
		oldCfg.Calendar.RatePerSec != newCfg.Calendar.RatePerSec ||
		(strings.TrimSpace(oldCfg.Calendar.Token) != "") != (strings.TrimSpace(newCfg.Calendar.Token) != "") {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.base_url", strings.TrimSpace(newCfg.Calendar.BaseURL)),
			logx.String("calendar.timeout", strings.TrimSpace(newCfg.Calendar.Timeout)),
			logx.String("calendar.cache_ttl", strings.TrimSpace(newCfg.Calendar.CacheTTL)),
			logx.Int("calendar.rate_per_sec", newCfg.Calendar.RatePerSec),
			logx.Bool("calendar.token_set", strings.TrimSpace(newCfg.Calendar.Token) != ""),
		)
	}

	// Storage (never log DSN)
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) ||
		(strings.TrimSpace(oldCfg.Storage.DSN) != "") != (strings.TrimSpace(newCfg.Storage.DSN) != "") {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	// Scheduling knobs
	oSched := derefScheduling(oldCfg.Scheduling)
	nSched := derefScheduling(newCfg.Scheduling)
	if (oldCfg.Scheduling != nil) != (newCfg.Scheduling != nil) || oSched != nSched {
		changed = append(changed, "scheduling")
		attrs = append(attrs,
			logx.String("scheduling.run_timeout", strings.TrimSpace(nSched.RunTimeout)),
			logx.Int("scheduling.commit_retry_max", nSched.CommitRetryMax),
			logx.Int("scheduling.fallback_days", nSched.FallbackDays),
			logx.Int("scheduling.default_work_duration", nSched.DefaultWorkDuration),
		)
	}

	// Maintenance
	oMaint := derefMaintenance(oldCfg.Maintenance)
	nMaint := derefMaintenance(newCfg.Maintenance)
	if (oldCfg.Maintenance != nil) != (newCfg.Maintenance != nil) || !reflect.DeepEqual(oMaint, nMaint) {
		changed = append(changed, "maintenance")
		enabled := true
		if nMaint.Enabled != nil {
			enabled = *nMaint.Enabled
		}
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", enabled),
			logx.String("maintenance.prune_spec", strings.TrimSpace(nMaint.PruneSpec)),
			logx.String("maintenance.repair_spec", strings.TrimSpace(nMaint.RepairSpec)),
		)
	}

	return changed, attrs
}

func derefScheduling(p *SchedulingConfig) SchedulingConfig {
	if p == nil {
		return SchedulingConfig{}
	}
	return *p
}

func derefMaintenance(p *MaintenanceConfig) MaintenanceConfig {
	if p == nil {
		return MaintenanceConfig{}
	}
	return *p
}
