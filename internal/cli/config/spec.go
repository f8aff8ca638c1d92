package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the client configuration for the fidloc CLI and sync agent.
type Config struct {
	// Server is the base URL of fidloc-server.
	Server string `koanf:"server" json:"server" yaml:"server"`

	// Org is the organization locations are written under.
	Org string `koanf:"org" json:"org" yaml:"org"`

	APIKeyID string `koanf:"api_key_id" json:"api_key_id" yaml:"api_key_id"`
	APIKey   string `koanf:"api_key" json:"api_key" yaml:"api_key"`

	// CAFile adds a PEM CA bundle to the trusted roots for https servers.
	CAFile string `koanf:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`

	// DataDir holds the local pending queue.
	DataDir string `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`

	// Output is the default output format (table, json, yaml).
	Output string `koanf:"output" json:"output" yaml:"output"`

	Queue QueueSection `koanf:"queue" json:"queue" yaml:"queue"`
	Agent AgentSection `koanf:"agent" json:"agent" yaml:"agent"`
	Log   LogSection   `koanf:"log" json:"log" yaml:"log"`
}

// QueueSection configures the local pending queue.
type QueueSection struct {
	// Passphrase enables at-rest encryption of queued records.
	Passphrase string `koanf:"passphrase" json:"passphrase" yaml:"passphrase"`
}

// AgentSection configures the background sync agent.
type AgentSection struct {
	ProbeInterval time.Duration `koanf:"probe_interval" json:"probe_interval" yaml:"probe_interval"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout" json:"probe_timeout" yaml:"probe_timeout"`

	// SyncInterval runs periodic sync passes. Zero syncs only on
	// reconnect or manual trigger.
	SyncInterval time.Duration `koanf:"sync_interval" json:"sync_interval" yaml:"sync_interval"`

	// MetricsAddr serves /metrics when set.
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`

	// ControlAddr is the loopback address the agent serves its queue on
	// so other commands can queue while it runs. Empty disables it.
	ControlAddr string `koanf:"control_addr" json:"control_addr" yaml:"control_addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// Default values.
const (
	DefaultServer        = "http://localhost:5080"
	DefaultOutput        = "table"
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
	DefaultControlAddr   = "127.0.0.1:0"
	DefaultLogLevel      = "warn"
	DefaultLogFormat     = "text"
)

// Default returns the default client configuration.
func Default() *Config {
	return &Config{
		Server:  DefaultServer,
		DataDir: filepath.Join(DefaultDir(), "queue"),
		Output:  DefaultOutput,
		Agent: AgentSection{
			ProbeInterval: DefaultProbeInterval,
			ProbeTimeout:  DefaultProbeTimeout,
			ControlAddr:   DefaultControlAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultDir returns ~/.fidloc, or .fidloc when the home directory is
// unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fidloc"
	}
	return filepath.Join(home, ".fidloc")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}
