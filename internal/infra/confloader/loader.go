package confloader

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "FIDLOC_"

// EnvSectionSeparator separates config sections inside an environment
// variable name.
const EnvSectionSeparator = "__"

// Loader loads configuration from multiple sources.
type Loader struct {
	k            *koanf.Koanf
	envPrefix    string
	filePath     string
	optionalFile bool
	defaults     map[string]any
	loaded       bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOptionalConfigFile sets a configuration file that is skipped when it
// does not exist.
func WithOptionalConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
		l.optionalFile = true
	}
}

// WithDefaults sets the lowest-priority values.
func WithDefaults(defaults map[string]any) Option {
	return func(l *Loader) {
		l.defaults = defaults
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load applies defaults, the file and the environment, then unmarshals
// into target. Flag overrides are applied separately with LoadMap before
// calling Unmarshal again.
func (l *Loader) Load(target any) error {
	if len(l.defaults) > 0 {
		if err := l.LoadMap(l.defaults); err != nil {
			return fmt.Errorf("load defaults: %w", err)
		}
	}

	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			if !(l.optionalFile && errors.Is(err, fs.ErrNotExist)) {
				return fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.loaded = true
	return nil
}

// LoadFile loads configuration from a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}

	return nil
}

// LoadEnv loads configuration from environment variables.
// FIDLOC_SERVER__HTTP__ADDR becomes server.http.addr.
func (l *Loader) LoadEnv() error {
	provider := env.Provider(l.envPrefix, ".", func(s string) string {
		return EnvKey(l.envPrefix, s)
	})
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	return nil
}

// EnvKey maps an environment variable name to a config key.
func EnvKey(prefix, name string) string {
	name = strings.TrimPrefix(name, prefix)
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, EnvSectionSeparator, ".")
}

// LoadMap loads configuration from a map (flags, defaults, tests).
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into the target struct
// using koanf tags.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// Get returns a value from the configuration by key.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetDuration returns a duration value from the configuration.
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// GetBool returns a bool value from the configuration.
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// All returns all configuration as a flat map.
func (l *Loader) All() map[string]any {
	return l.k.All()
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}
