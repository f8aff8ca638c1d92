package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

// Verify validates the configuration. All problems are reported
// together.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifySecurity(&cfg.Security),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr %q: %w", cfg.HTTP.Addr, err))
	}

	certSet, keySet := cfg.HTTP.TLSCertFile != "", cfg.HTTP.TLSKeyFile != ""
	if certSet != keySet {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("server.http tls file: %w", err))
		}
	}

	errs = append(errs,
		verifyNetworks("server.http.admin_allow_list", cfg.HTTP.AdminAllowList),
		verifyNetworks("server.http.trusted_proxies", cfg.HTTP.TrustedProxies))

	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.http.shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.InMemory {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	if cfg.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.BootstrapOrg != "" {
		if err := domain.ValidateOrgID(cfg.BootstrapOrg); err != nil {
			return fmt.Errorf("security.bootstrap_org: %w", err)
		}
	}
	if cfg.KeyCacheTTL < 0 {
		return errors.New("security.key_cache_ttl must not be negative")
	}
	return nil
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

func verifyNetworks(field string, entries []string) error {
	var errs []error
	for _, entry := range entries {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			errs = append(errs, fmt.Errorf("%s entry %q is not an IP or CIDR", field, entry))
		}
	}
	return errors.Join(errs...)
}
