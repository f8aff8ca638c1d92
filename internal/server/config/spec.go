package config

import "time"

// ServerConfig is the root configuration for fidloc-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server" yaml:"server"`
	Storage  StorageSection  `koanf:"storage" yaml:"storage"`
	Security SecuritySection `koanf:"security" yaml:"security"`
	Log      LogSection      `koanf:"log" yaml:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http" yaml:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr" yaml:"addr"`
	TLSCertFile string `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" yaml:"tls_key_file"`

	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. Empty allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" yaml:"cors_allowed_origins"`

	// TrustedProxies lists reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For and X-Real-IP headers identify the client. Empty
	// uses the connection's peer address.
	TrustedProxies []string `koanf:"trusted_proxies" yaml:"trusted_proxies"`

	// AdminAllowList restricts /admin/v1 to these IPs or CIDRs. Empty
	// allows any address.
	AdminAllowList []string `koanf:"admin_allow_list" yaml:"admin_allow_list"`

	// RateLimit is the per-IP request rate (requests/second). Zero disables it.
	RateLimit int `koanf:"rate_limit" yaml:"rate_limit"`

	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`

	// EnableAudit logs every request with its caller.
	EnableAudit bool `koanf:"enable_audit" yaml:"enable_audit"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	DataDir    string        `koanf:"data_dir" yaml:"data_dir"`
	GCInterval time.Duration `koanf:"gc_interval" yaml:"gc_interval"`

	// InMemory keeps all data in memory; nothing survives a restart.
	InMemory bool `koanf:"in_memory" yaml:"in_memory"`
}

// SecuritySection configures authentication.
type SecuritySection struct {
	// BootstrapOrg, when set and the store holds no API keys, creates an
	// admin key for this organization on start and prints its secret once.
	BootstrapOrg string `koanf:"bootstrap_org" yaml:"bootstrap_org"`

	// KeyCacheTTL bounds how long a validated API key is trusted without
	// re-reading the store.
	KeyCacheTTL time.Duration `koanf:"key_cache_ttl" yaml:"key_cache_ttl"`

	// MetricsAuthRequired protects /metrics with an API key.
	MetricsAuthRequired bool `koanf:"metrics_auth_required" yaml:"metrics_auth_required"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
