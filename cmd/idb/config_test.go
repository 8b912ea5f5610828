package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := parseConfig([]byte(`
database: users
log_level: debug
watch_interval: 250ms
history:
  enabled: true
  name: Jane
  email: jane@example.com
`))
		if err != nil {
			t.Fatalf("parseConfig() failed: %v", err)
		}
		if cfg.Database != "users" || cfg.LogLevel != "debug" || cfg.WatchInterval != 250*time.Millisecond {
			t.Errorf("config = %+v", cfg)
		}
		if !cfg.History.Enabled || cfg.History.Name != "Jane" || cfg.History.Email != "jane@example.com" {
			t.Errorf("history = %+v", cfg.History)
		}
	})

	t.Run("empty", func(t *testing.T) {
		cfg, err := parseConfig(nil)
		if err != nil {
			t.Fatalf("parseConfig() failed: %v", err)
		}
		if *cfg != (config{}) {
			t.Errorf("config = %+v", cfg)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			data string
			want string
		}{
			{"bad yaml", "database: [", "failed to parse config"},
			{"bad level", "log_level: loud", "unknown log level"},
			{"negative interval", "watch_interval: -1s", "must not be negative"},
			{"author without history", "history:\n  name: x\n", "require history.enabled"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := parseConfig([]byte(tt.data))
				if err == nil || !strings.Contains(err.Error(), tt.want) {
					t.Errorf("parseConfig() = %v, want error containing %q", err, tt.want)
				}
			})
		}
	})
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "idb.yaml")
	if cfg, err := loadConfig(missing, false); err != nil || cfg == nil {
		t.Errorf("loadConfig(missing, optional) = %v, %v", cfg, err)
	}
	if _, err := loadConfig(missing, true); err == nil {
		t.Error("loadConfig(missing, required) should fail")
	}
	if err := os.WriteFile(missing, []byte("database: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(missing, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database != "x" {
		t.Errorf("Database = %q", cfg.Database)
	}
}
