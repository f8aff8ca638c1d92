package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/fidloc/fidloc-go/internal/cli/config"
	"github.com/fidloc/fidloc-go/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Client configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the effective configuration",
				Action: configValidate,
			},
			{
				Name:  "init",
				Usage:     "Write the effective configuration to a config file",
				ArgsUsage: "[PATH]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing file",
					},
				},
				Action: configInit,
			},
		},
	}
}

// configView is the JSON shape of `config show`.
type configView struct {
	File   string         `json:"file" yaml:"file"`
	Config *config.Config `json:"config" yaml:"config"`
}

func configPath(rt *Runtime) string {
	if rt.ConfigPath != "" {
		return rt.ConfigPath
	}
	return config.DefaultConfigPath()
}

func configShow(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	sanitized := config.Sanitize(rt.Config)

	if rt.Format == output.FormatJSON {
		return rt.Print(configView{File: configPath(rt), Config: sanitized})
	}

	// Durations render as "10s" and load back unchanged.
	fmt.Fprintf(rt.Out, "# %s\n", configPath(rt))
	enc := yaml.NewEncoder(rt.Out)
	enc.SetIndent(2)
	if err := enc.Encode(sanitized); err != nil {
		return err
	}
	return enc.Close()
}

func configValidate(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	if err := config.Verify(rt.Config); err != nil {
		return fmt.Errorf("configuration invalid:\n%w", err)
	}
	if err := config.RequireRemote(rt.Config); err != nil {
		rt.Notef("Warning: %v", err)
	}
	fmt.Fprintln(rt.Out, "Configuration is valid.")
	return nil
}

func configInit(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	path := c.Args().First()
	if path == "" {
		path = configPath(rt)
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s exists; use --force to overwrite", path)
	}
	if err := config.Save(rt.Config, path); err != nil {
		return err
	}
	rt.Notef("Wrote %s.", path)
	return nil
}
