package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// API controls the HTTP surface (scheduling requests, health, metrics).
	API APIConfig `json:"api"`

	// Calendar configures the external calendar provider client.
	Calendar CalendarConfig `json:"calendar"`

	// Storage configures the task/preference store backend.
	Storage StorageConfig `json:"storage"`

	// Scheduling holds engine knobs. All fields have safe defaults; user-level
	// preferences (windows, buffer, caps) come from the store, not from here.
	Scheduling *SchedulingConfig `json:"scheduling,omitempty"`

	// Maintenance controls periodic background jobs.
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// APIConfig controls the HTTP API server.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8090"

	// AllowedOrigins for CORS. Empty means "*".
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"` // default generous: scheduling runs can take a while
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// CalendarConfig configures the calendar provider HTTP client.
//
// Defaults (when fields are omitted/zero):
//   - timeout: "30s"
//   - cache_ttl: "60s"
//   - rate_per_sec: 5
type CalendarConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"` // bearer token (do not log)

	Timeout    string `json:"timeout,omitempty"`
	CacheTTL   string `json:"cache_ttl,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via DSN
//   - "memory": in-process store (tests, demos)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`         // sqlite file path
	DSN         string `json:"dsn,omitempty"`          // postgres connection string (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulingConfig holds engine-level knobs.
//
// Defaults (when fields are omitted/zero):
//   - run_timeout: "2m"
//   - commit_retry_max: 3
//   - fallback_days: 30
//   - default_work_duration: 50 (minutes; used for the search step size)
//   - max_task_duration: 240 (minutes; durations are clamped upstream to this)
type SchedulingConfig struct {
	RunTimeout          string `json:"run_timeout,omitempty"`
	CommitRetryMax      int    `json:"commit_retry_max,omitempty"`
	FallbackDays        int    `json:"fallback_days,omitempty"`
	DefaultWorkDuration int    `json:"default_work_duration,omitempty"`
	MaxTaskDuration     int    `json:"max_task_duration,omitempty"`
}

// MaintenanceConfig controls periodic background jobs.
//
// Specs are cron expressions (robfig/cron, 5-field) or "@every <duration>".
// If the whole section is omitted, maintenance defaults to enabled with
// hourly prune and a repair sweep every 15 minutes.
type MaintenanceConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	PruneSpec  string `json:"prune_spec,omitempty"`
	RepairSpec string `json:"repair_spec,omitempty"`
}
