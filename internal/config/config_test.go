package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "emberfell.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c != Default() {
		t.Fatalf("got %+v, want defaults", c)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	p := writeConfig(t, `
store: bolt
save_interval: 5m
log_level: debug
`)
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Store != "bolt" {
		t.Fatalf("store = %q", c.Store)
	}
	if time.Duration(c.SaveInterval) != 5*time.Minute {
		t.Fatalf("save_interval = %v", time.Duration(c.SaveInterval))
	}
	if c.DataDir != "data" {
		t.Fatalf("data_dir = %q, want the default", c.DataDir)
	}
	lvl, err := c.Level()
	if err != nil {
		t.Fatal(err)
	}
	if lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	for name, content := range map[string]string{
		"unknown field": "no_such_option: 1\n",
		"bad backend":   "store: cassandra\n",
		"bad interval":  "save_interval: sometimes\n",
		"zero interval": "save_interval: 0s\n",
		"bad level":     "log_level: loud\n",
		"bad cache":     "cache_size: -1\n",
	} {
		p := writeConfig(t, content)
		if _, err := Load(p); err == nil {
			t.Errorf("%s: Load succeeded, want error", name)
		}
	}
}
