package confloader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server string `koanf:"server"`
	Agent  struct {
		ProbeInterval time.Duration `koanf:"probe_interval"`
		MetricsAddr   string        `koanf:"metrics_addr"`
	} `koanf:"agent"`
	Storage struct {
		DataDir string `koanf:"data_dir"`
	} `koanf:"storage"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FIDLOC_SERVER", "server"},
		{"FIDLOC_AGENT__PROBE_INTERVAL", "agent.probe_interval"},
		{"FIDLOC_SERVER__HTTP__CORS_ALLOWED_ORIGINS", "server.http.cors_allowed_origins"},
		{"FIDLOC_STORAGE__DATA_DIR", "storage.data_dir"},
	}
	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.in); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoader_Priority(t *testing.T) {
	path := writeFile(t, `
server: "http://file:8080"
agent:
  probe_interval: 20s
storage:
  data_dir: /from/file
`)
	t.Setenv("FIDLOC_STORAGE__DATA_DIR", "/from/env")

	l := NewLoader(
		WithConfigFile(path),
		WithDefaults(map[string]any{
			"server":               "http://default:8080",
			"agent.probe_interval": "10s",
			"agent.metrics_addr":   ":9100",
		}),
	)

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server != "http://file:8080" {
		t.Errorf("Server = %q, file should override default", cfg.Server)
	}
	if cfg.Agent.ProbeInterval != 20*time.Second {
		t.Errorf("ProbeInterval = %v, want 20s", cfg.Agent.ProbeInterval)
	}
	if cfg.Agent.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q, default should survive", cfg.Agent.MetricsAddr)
	}
	if cfg.Storage.DataDir != "/from/env" {
		t.Errorf("DataDir = %q, env should override file", cfg.Storage.DataDir)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load")
	}
}

func TestLoader_LoadMapOverrides(t *testing.T) {
	l := NewLoader(WithDefaults(map[string]any{"server": "a"}))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}
	if err := l.LoadMap(map[string]any{"server": "b"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Server != "b" {
		t.Errorf("Server = %q, want b", cfg.Server)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	err := NewLoader(WithConfigFile(missing)).Load(&testConfig{})
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("required file: got %v", err)
	}

	if err := NewLoader(WithOptionalConfigFile(missing)).Load(&testConfig{}); err != nil {
		t.Errorf("optional file: got %v", err)
	}
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "server: [unclosed")
	if err := NewLoader(WithConfigFile(path)).Load(&testConfig{}); err == nil {
		t.Error("expected parse error")
	}
}
