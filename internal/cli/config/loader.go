package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fidloc/fidloc-go/internal/infra/confloader"
)

// Load reads the configuration. An empty path uses DefaultConfigPath and
// tolerates its absence; an explicit path must exist. Sources apply in
// order: defaults, file, FIDLOC_ environment, then overrides (flag
// values keyed by dotted config key, e.g. "agent.sync_interval").
func Load(path string, overrides map[string]any) (*Config, error) {
	fileOpt := confloader.WithConfigFile(path)
	if path == "" {
		fileOpt = confloader.WithOptionalConfigFile(DefaultConfigPath())
	}

	loader := confloader.NewLoader(
		fileOpt,
		confloader.WithEnvPrefix(confloader.DefaultEnvPrefix),
		confloader.WithDefaults(defaultsMap()),
	)

	cfg := &Config{}
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory. The file is
// readable only by its owner since it holds the API key.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"server":               d.Server,
		"data_dir":             d.DataDir,
		"output":               d.Output,
		"agent.probe_interval": d.Agent.ProbeInterval.String(),
		"agent.probe_timeout":  d.Agent.ProbeTimeout.String(),
		"agent.sync_interval":  time.Duration(0).String(),
		"agent.control_addr":   d.Agent.ControlAddr,
		"log.level":            d.Log.Level,
		"log.format":           d.Log.Format,
	}
}
