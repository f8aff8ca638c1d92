package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fidloc/fidloc-go/internal/cli/output"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/offline"
	"github.com/fidloc/fidloc-go/internal/remote"
)

// LocationCommand returns the location subcommand group.
func LocationCommand() *cli.Command {
	return &cli.Command{
		Name:    "location",
		Aliases: []string{"loc"},
		Usage:   "Manage field locations",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a location, queueing it locally when the server is unreachable",
				Flags: append(locationFlags(true),
					&cli.BoolFlag{
						Name:  "offline",
						Usage: "Queue without contacting the server",
					},
				),
				Action: locationAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List locations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "search",
						Aliases: []string{"q"},
						Usage:   "Match name or address (case-insensitive)",
					},
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Only this type (hub, garage, hut, co)",
					},
				},
				Action: locationList,
			},
			{
				Name:      "get",
				Usage:     "Show one location",
				ArgsUsage: "LOCATION_ID",
				Action:    locationGet,
			},
			{
				Name:      "update",
				Usage:     "Change fields of a location",
				ArgsUsage: "LOCATION_ID",
				Flags:     locationFlags(false),
				Action:    locationUpdate,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a location",
				ArgsUsage: "LOCATION_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: locationDelete,
			},
		},
	}
}

func locationFlags(nameRequired bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Location name", Required: nameRequired},
		&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Street address"},
		&cli.Float64Flag{Name: "lat", Usage: "Latitude"},
		&cli.Float64Flag{Name: "lng", Usage: "Longitude"},
		&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "hub, garage, hut or co (default hub)"},
		&cli.StringFlag{Name: "notes", Usage: "Free-form notes"},
		&cli.BoolFlag{Name: "ladder", Usage: "Site requires a ladder"},
		&cli.BoolFlag{Name: "bracket", Usage: "Site has a ladder bracket"},
	}
}

// applyLocationFlags copies the flags that were set onto loc.
func applyLocationFlags(c *cli.Context, loc *domain.Location) {
	if c.IsSet("name") {
		loc.Name = c.String("name")
	}
	if c.IsSet("address") {
		loc.Address = c.String("address")
	}
	if c.IsSet("lat") {
		loc.Latitude = c.Float64("lat")
	}
	if c.IsSet("lng") {
		loc.Longitude = c.Float64("lng")
	}
	if c.IsSet("type") {
		loc.LocationType = domain.LocationType(c.String("type"))
	}
	if c.IsSet("notes") {
		loc.Notes = c.String("notes")
	}
	if c.IsSet("ladder") {
		loc.RequiresLadder = c.Bool("ladder")
	}
	if c.IsSet("bracket") {
		loc.HasLadderBracket = c.Bool("bracket")
	}
}

func locationAdd(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	loc := &domain.Location{}
	applyLocationFlags(c, loc)

	ctx, cancel := requestContext(c)
	defer cancel()

	monitor := offline.NewMonitor(client,
		offline.WithProbeTimeout(rt.Config.Agent.ProbeTimeout),
		offline.WithMonitorLogger(rt.Logger))
	if c.Bool("offline") {
		monitor.SetOnline(false)
	} else {
		monitor.Check(ctx)
	}

	// The queue is opened only when the write has to be queued.
	var viaAgent bool
	stage := offline.StagerFunc(func(ctx context.Context, rec *domain.PendingRecord) error {
		store, err := rt.Pending(ctx)
		if err != nil {
			return err
		}
		_, viaAgent = store.(*remote.AgentClient)
		return store.EnqueueRecord(ctx, rec)
	})

	writer := offline.NewWriter(stage, client, monitor, offline.WithWriterLogger(rt.Logger))
	res, err := writer.Save(ctx, rt.Config.Org, loc)
	if err != nil {
		return err
	}

	switch {
	case res.Queued && viaAgent:
		rt.Notef("Server unreachable: queued as %s. The running agent will sync it.", res.Pending.PendingID)
	case res.Queued:
		rt.Notef("Server unreachable: queued as %s. Run `fidloc queue sync` or keep `fidloc agent` running.", res.Pending.PendingID)
	}
	if rt.Format != output.FormatTable {
		return rt.Print(res)
	}
	if res.Queued {
		return rt.Print(output.PendingRecords{res.Pending})
	}
	return rt.Print(output.LocationDetail{Location: res.Location})
}

func locationList(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	filter := domain.LocationFilter{Search: c.String("search")}
	if t := c.String("type"); t != "" {
		if !domain.IsValidLocationType(t) {
			return fmt.Errorf("unknown type %q (want hub, garage, hut or co)", t)
		}
		filter.Type = domain.LocationType(t)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	locs, err := client.ListLocations(ctx, rt.Config.Org, filter)
	if err != nil {
		return err
	}

	if err := rt.Print(output.Locations(locs)); err != nil {
		return err
	}
	if rt.Format == output.FormatTable {
		fmt.Fprintf(rt.Out, "\nTotal: %d locations\n", len(locs))
		fmt.Fprintln(rt.Out, output.Locations(locs).Totals())
	}
	return nil
}

func locationGet(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("location ID required")
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

	loc, err := client.GetLocation(ctx, rt.Config.Org, id)
	if err != nil {
		return err
	}
	if rt.Format == output.FormatTable {
		return rt.Print(output.LocationDetail{Location: loc})
	}
	return rt.Print(loc)
}

func locationUpdate(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("location ID required")
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

	loc, err := client.GetLocation(ctx, rt.Config.Org, id)
	if err != nil {
		return err
	}
	applyLocationFlags(c, loc)

	updated, err := client.UpdateLocation(ctx, rt.Config.Org, id, loc)
	if err != nil {
		return err
	}
	if rt.Format == output.FormatTable {
		return rt.Print(output.LocationDetail{Location: updated})
	}
	return rt.Print(updated)
}

func locationDelete(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("location ID required")
	}
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	if !c.Bool("force") && !rt.Confirm(fmt.Sprintf("Delete location %s?", id)) {
		rt.Notef("Cancelled.")
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := client.DeleteLocation(ctx, rt.Config.Org, id); err != nil {
		return err
	}
	rt.Notef("Location %s deleted.", id)
	return nil
}
