package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"api": {"enabled": true, "addr": "127.0.0.1:0"},
		"calendar": {"base_url": "http://cal.local", "cache_ttl": "90s"},
		"storage": {"driver": "memory"},
		"scheduling": {"commit_retry_max": 5}
	}`)

	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Calendar.CacheTTL != "90s" {
		t.Fatalf("Calendar.CacheTTL = %q, want 90s", cfg.Calendar.CacheTTL)
	}
	if cfg.Scheduling == nil || cfg.Scheduling.CommitRetryMax != 5 {
		t.Fatalf("Scheduling.CommitRetryMax not loaded: %+v", cfg.Scheduling)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get() returned a different config than Load()")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, "config.yaml", strings.Join([]string{
		"logging:",
		"  level: info",
		"  console: true",
		"api:",
		"  enabled: true",
		"calendar:",
		"  base_url: http://cal.local",
		"storage:",
		"  driver: sqlite",
		"  path: ./data.db",
	}, "\n"))

	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./data.db" {
		t.Fatalf("Storage = %+v, want sqlite ./data.db", cfg.Storage)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file string
		body string
	}{
		{"unknown field", "config.json", `{"loging": {"level": "info"}}`},
		{"unknown nested field", "config.json", `{"api": {"enabled": true, "port": 8080}}`},
		{"trailing data", "config.json", `{"api": {"enabled": true}} {"extra": 1}`},
		{"broken yaml", "config.yaml", "api: [unclosed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := writeConfig(t, tc.file, tc.body)
			if _, err := NewManager(p).Load(); err == nil {
				t.Fatalf("Load accepted %s", tc.name)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{"-1s", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("x", tc.raw)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseDurationField(%q) err = %v, wantErr %v", tc.raw, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("x", "", 9*time.Second); err != nil || d != 9*time.Second {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v; want 9s", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "3s", 9*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("ParseDurationOrDefault set = %v, %v; want 3s", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Logging.Level = "debug"
	newCfg.Storage.DSN = "postgres://user:secret@db/app"
	newCfg.Calendar.Token = "bearer-secret"
	newCfg.Calendar.BaseURL = "http://cal.local"

	sections, attrs := SummarizeChange(oldCfg, newCfg)

	want := map[string]bool{"logging": true, "storage": true, "calendar": true}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected changed section %q (all: %v)", s, sections)
		}
		delete(want, s)
	}
	if len(want) != 0 {
		t.Fatalf("missing changed sections %v (got %v)", want, sections)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected log attrs for changed sections")
	}

	if s, a := SummarizeChange(newCfg, newCfg); len(s) != 0 || len(a) != 0 {
		t.Fatalf("no-op change reported sections %v", s)
	}
}
