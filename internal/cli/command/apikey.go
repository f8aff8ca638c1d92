package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/cli/output"
	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// APIKeyCommand returns the apikey subcommand group. Keys are always
// managed within the caller's organization.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Manage API keys (admin)",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List API keys",
				Action: apikeyList,
			},
			{
				Name:  "create",
				Usage: "Create a new API key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Key name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "role",
						Aliases: []string{"r"},
						Usage:   "Key role (admin, member)",
						Value:   string(domain.RoleMember),
					},
					&cli.StringFlag{
						Name:    "description",
						Aliases: []string{"d"},
						Usage:   "Key description",
					},
					&cli.IntFlag{
						Name:  "rate-limit",
						Usage: "Requests per second (0 = server default)",
					},
				},
				Action: apikeyCreate,
			},
			{
				Name:      "disable",
				Usage:     "Disable an API key",
				ArgsUsage: "KEY_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: apikeyDisable,
			},
			{
				Name:      "enable",
				Usage:     "Enable an API key",
				ArgsUsage: "KEY_ID",
				Action:    apikeyEnable,
			},
		},
	}
}

func apikeyList(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	keys, err := client.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	if err := rt.Print(output.APIKeys(keys)); err != nil {
		return err
	}
	if rt.Format == output.FormatTable {
		fmt.Fprintf(rt.Out, "\nTotal: %d keys\n", len(keys))
	}
	return nil
}

func apikeyCreate(c *cli.Context) error {
	role := c.String("role")
	if !domain.IsValidRole(role) {
		return fmt.Errorf("unknown role %q (want admin or member)", role)
	}

	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	created, err := client.CreateAPIKey(ctx, &apiv1.CreateAPIKeyRequest{
		Name:        c.String("name"),
		Role:        role,
		Description: c.String("description"),
		RateLimit:   c.Int("rate-limit"),
	})
	if err != nil {
		return err
	}

	if rt.Format != output.FormatTable {
		return rt.Print(created)
	}
	fmt.Fprintf(rt.Out, "API key created:\n")
	fmt.Fprintf(rt.Out, "  Key ID: %s\n", created.KeyID)
	fmt.Fprintf(rt.Out, "  Secret: %s\n", created.Secret)
	fmt.Fprintf(rt.Out, "  Role:   %s\n", created.Role)
	rt.Notef("\nSave this secret now, it cannot be retrieved later.")
	return nil
}

func apikeyDisable(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return errors.New("key ID required")
	}
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	if !c.Bool("force") && !rt.Confirm(fmt.Sprintf("Disable API key %s?", keyID)) {
		rt.Notef("Cancelled.")
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	key, err := client.SetAPIKeyStatus(ctx, keyID, false)
	if err != nil {
		return err
	}
	if rt.Format != output.FormatTable {
		return rt.Print(key)
	}
	rt.Notef("API key %s disabled.", keyID)
	return nil
}

func apikeyEnable(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return errors.New("key ID required")
	}
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	key, err := client.SetAPIKeyStatus(ctx, keyID, true)
	if err != nil {
		return err
	}
	if rt.Format != output.FormatTable {
		return rt.Print(key)
	}
	rt.Notef("API key %s enabled.", keyID)
	return nil
}
