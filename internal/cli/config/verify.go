package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

// ErrNoCredentials is returned by RequireRemote when no API key is
// configured.
var ErrNoCredentials = errors.New("api_key_id and api_key are required (flags, FIDLOC_API_KEY_ID/FIDLOC_API_KEY or config file)")

// Verify validates the configuration. All problems are reported together.
func Verify(cfg *Config) error {
	var errs []error

	if cfg.Server != "" {
		u, err := url.Parse(cfg.Server)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server %q: must be an http(s) URL", cfg.Server))
		}
	}
	if cfg.Org != "" {
		if err := domain.ValidateOrgID(cfg.Org); err != nil {
			errs = append(errs, fmt.Errorf("org: %w", err))
		}
	}
	if (cfg.APIKeyID == "") != (cfg.APIKey == "") {
		errs = append(errs, errors.New("api_key_id and api_key must be set together"))
	}
	if cfg.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			errs = append(errs, fmt.Errorf("ca_file: %w", err))
		}
	}

	switch cfg.Output {
	case "table", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output %q: must be table, json or yaml", cfg.Output))
	}

	errs = append(errs, verifyAgent(&cfg.Agent), verifyLog(&cfg.Log))
	return errors.Join(errs...)
}

func verifyAgent(cfg *AgentSection) error {
	var errs []error
	if cfg.ProbeInterval <= 0 {
		errs = append(errs, errors.New("agent.probe_interval must be positive"))
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("agent.probe_timeout must be positive"))
	}
	if cfg.SyncInterval < 0 {
		errs = append(errs, errors.New("agent.sync_interval must not be negative"))
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("agent.metrics_addr %q: %w", cfg.MetricsAddr, err))
		}
	}
	if cfg.ControlAddr != "" {
		host, _, err := net.SplitHostPort(cfg.ControlAddr)
		if err != nil {
			errs = append(errs, fmt.Errorf("agent.control_addr %q: %w", cfg.ControlAddr, err))
		} else if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			errs = append(errs, fmt.Errorf("agent.control_addr %q: must be a loopback address", cfg.ControlAddr))
		}
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format %q: must be json or text", cfg.Format)
	}
}

// RequireRemote checks the settings needed to talk to the server.
func RequireRemote(cfg *Config) error {
	if cfg.Server == "" {
		return errors.New("server is required")
	}
	if cfg.Org == "" {
		return errors.New("org is required")
	}
	if cfg.APIKeyID == "" || cfg.APIKey == "" {
		return ErrNoCredentials
	}
	return nil
}
