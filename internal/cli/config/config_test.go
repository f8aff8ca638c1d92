package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server != DefaultServer {
		t.Errorf("Server = %q, want %q", cfg.Server, DefaultServer)
	}
	if cfg.Output != "table" {
		t.Errorf("Output = %q, want table", cfg.Output)
	}
	if cfg.Agent.SyncInterval != 0 {
		t.Errorf("SyncInterval = %v, want 0", cfg.Agent.SyncInterval)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !strings.HasSuffix(path, filepath.Join(".fidloc", "config.yaml")) {
		t.Errorf("path = %q, want suffix .fidloc/config.yaml", path)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server: https://fidloc.example.com
org: acme
api_key_id: flak-1
api_key: flk_secret
agent:
  probe_interval: 30s
  sync_interval: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server != "https://fidloc.example.com" || cfg.Org != "acme" {
		t.Errorf("server/org = %q/%q", cfg.Server, cfg.Org)
	}
	if cfg.Agent.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %v, want 30s", cfg.Agent.ProbeInterval)
	}
	if cfg.Agent.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.Agent.SyncInterval)
	}
	// untouched keys keep their defaults
	if cfg.Agent.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("ProbeTimeout = %v, want %v", cfg.Agent.ProbeTimeout, DefaultProbeTimeout)
	}
	if err := RequireRemote(cfg); err != nil {
		t.Errorf("RequireRemote: %v", err)
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("org: acme\noutput: json\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, map[string]any{
		"org":                 "globex",
		"agent.sync_interval": "1m",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Org != "globex" {
		t.Errorf("Org = %q, want globex", cfg.Org)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %q, want json from file", cfg.Output)
	}
	if cfg.Agent.SyncInterval != time.Minute {
		t.Errorf("SyncInterval = %v, want 1m", cfg.Agent.SyncInterval)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("FIDLOC_ORG", "envorg")
	t.Setenv("FIDLOC_AGENT__PROBE_TIMEOUT", "7s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("org: fileorg\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Org != "envorg" {
		t.Errorf("Org = %q, want envorg", cfg.Org)
	}
	if cfg.Agent.ProbeTimeout != 7*time.Second {
		t.Errorf("ProbeTimeout = %v, want 7s", cfg.Agent.ProbeTimeout)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Org = "acme"
	cfg.Agent.SyncInterval = 2 * time.Minute

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Org != "acme" || loaded.Agent.SyncInterval != 2*time.Minute {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad server", func(c *Config) { c.Server = "localhost:5080" }, "server"},
		{"bad org", func(c *Config) { c.Org = "a/b" }, "org"},
		{"half credentials", func(c *Config) { c.APIKeyID = "flak-1" }, "set together"},
		{"bad output", func(c *Config) { c.Output = "xml" }, "output"},
		{"missing ca file", func(c *Config) { c.CAFile = "/nonexistent/ca.pem" }, "ca_file"},
		{"zero probe", func(c *Config) { c.Agent.ProbeInterval = 0 }, "probe_interval"},
		{"negative sync", func(c *Config) { c.Agent.SyncInterval = -time.Second }, "sync_interval"},
		{"bad metrics addr", func(c *Config) { c.Agent.MetricsAddr = "9100" }, "metrics_addr"},
		{"bad control addr", func(c *Config) { c.Agent.ControlAddr = "9200" }, "control_addr"},
		{"public control addr", func(c *Config) { c.Agent.ControlAddr = "0.0.0.0:9200" }, "loopback"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequireRemote(t *testing.T) {
	cfg := Default()
	cfg.Org = "acme"
	if err := RequireRemote(cfg); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("RequireRemote() = %v, want ErrNoCredentials", err)
	}

	cfg.Org = ""
	cfg.APIKeyID, cfg.APIKey = "flak-1", "flk_x"
	if err := RequireRemote(cfg); err == nil || !strings.Contains(err.Error(), "org") {
		t.Errorf("RequireRemote() = %v, want org error", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "flk_abcdefghijklmnop"
	cfg.Queue.Passphrase = "short"

	s := Sanitize(cfg)
	if s.APIKey == cfg.APIKey || !strings.HasPrefix(s.APIKey, "flk_") || strings.Contains(s.APIKey, "abcdefgh") {
		t.Errorf("APIKey not masked: %q", s.APIKey)
	}
	if s.Queue.Passphrase != "****" {
		t.Errorf("Passphrase = %q, want ****", s.Queue.Passphrase)
	}
	if cfg.APIKey != "flk_abcdefghijklmnop" {
		t.Error("Sanitize modified the original")
	}
}
