package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fidloc/fidloc-go/internal/cli/config"
	"github.com/fidloc/fidloc-go/internal/cli/output"
	"github.com/fidloc/fidloc-go/internal/infra/buildinfo"
	"github.com/fidloc/fidloc-go/internal/remote"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

const runtimeKey = "runtime"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "fidloc",
		Usage:   "Field location store with offline queueing",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LocationCommand(),
			QueueCommand(),
			AgentCommand(),
			APIKeyCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: before,
		After:  after,
	}
}

// globalFlags returns the global CLI flags. Values given here override
// the config file and FIDLOC_ environment variables.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Config file (default ~/.fidloc/config.yaml)",
			EnvVars: []string{"FIDLOC_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "fidloc-server URL (e.g. http://localhost:5080)",
		},
		&cli.StringFlag{
			Name:  "org",
			Usage: "Organization ID",
		},
		&cli.StringFlag{
			Name:    "api-key-id",
			Aliases: []string{"k"},
			Usage:   "API key ID",
		},
		&cli.StringFlag{
			Name:    "api-key",
			Aliases: []string{"K"},
			Usage:   "API key secret",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Local queue directory",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// flagKeys maps global flags to config keys.
var flagKeys = map[string]string{
	"server":     "server",
	"org":        "org",
	"api-key-id": "api_key_id",
	"api-key":    "api_key",
	"data-dir":   "data_dir",
	"output":     "output",
}

func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	if c.Bool("verbose") {
		overrides["log.level"] = "debug"
	}
	return overrides
}

func before(c *cli.Context) error {
	overrides := flagOverrides(c)
	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		// config validate reports the bad value; keep running with defaults.
		log, _ = logger.New(logger.Config{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat, Output: c.App.ErrWriter})
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		format = output.FormatTable
	}

	rt := &Runtime{
		Config:     cfg,
		ConfigPath: c.String("config"),
		Logger:     log,
		Out:        c.App.Writer,
		Err:        c.App.ErrWriter,
		In:         c.App.Reader,
		Format:     format,
		Wide:       c.Bool("wide"),
		overrides:  overrides,
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[runtimeKey] = rt
	return nil
}

func after(c *cli.Context) error {
	rt, ok := c.App.Metadata[runtimeKey].(*Runtime)
	if !ok {
		return nil
	}
	return rt.Close()
}

// getRuntime returns the Runtime built by the Before hook.
func getRuntime(c *cli.Context) (*Runtime, error) {
	if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
		return rt, nil
	}
	return nil, errors.New("cli runtime not initialized")
}

// requestContext bounds one remote call.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, remote.DefaultTimeout)
}
