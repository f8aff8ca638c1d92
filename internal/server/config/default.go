package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr          = "127.0.0.1:5080"
	DefaultRateLimit         = 100
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	DefaultDataDir    = "/var/lib/fidloc-server/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultKeyCacheTTL = 60 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:              DefaultHTTPAddr,
				RateLimit:         DefaultRateLimit,
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				ShutdownTimeout:   DefaultShutdownTimeout,
				EnableAudit:       true,
			},
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Security: SecuritySection{
			KeyCacheTTL:         DefaultKeyCacheTTL,
			MetricsAuthRequired: false,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
