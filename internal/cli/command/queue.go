package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fidloc/fidloc-go/internal/cli/output"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/offline"
	"github.com/fidloc/fidloc-go/internal/remote"
)

// QueueCommand returns the queue subcommand group.
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and drain the local pending queue",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List pending locations",
				Action:  queueList,
			},
			{
				Name:   "status",
				Usage:  "Show queue depth and server reachability",
				Action: queueStatus,
			},
			{
				Name:   "sync",
				Usage:  "Run one sync pass now",
				Action: queueSync,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Discard a pending location without syncing it",
				ArgsUsage: "PENDING_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: queueRemove,
			},
		},
	}
}

func queueList(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	q, err := rt.Pending(c.Context)
	if err != nil {
		return err
	}

	pending, err := q.List(c.Context)
	if err != nil {
		return err
	}
	if err := rt.Print(output.PendingRecords(pending)); err != nil {
		return err
	}
	if rt.Format == output.FormatTable {
		fmt.Fprintf(rt.Out, "\nTotal: %d pending\n", len(pending))
	}
	return nil
}

// QueueStatus is the output of `queue status`.
type QueueStatus struct {
	Server    string `json:"server" yaml:"server"`
	Org       string `json:"org" yaml:"org"`
	Online    bool   `json:"online" yaml:"online"`
	Pending   int    `json:"pending" yaml:"pending"`
	Oldest    string `json:"oldest_queued_at,omitempty" yaml:"oldest_queued_at,omitempty"`
	Encrypted bool   `json:"encrypted" yaml:"encrypted"`
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	Agent     bool   `json:"agent_running" yaml:"agent_running"`
}

func queueStatus(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	q, err := rt.Pending(c.Context)
	if err != nil {
		return err
	}
	_, viaAgent := q.(*remote.AgentClient)

	pending, err := q.List(c.Context)
	if err != nil {
		return err
	}

	status := QueueStatus{
		Server:    rt.Config.Server,
		Org:       rt.Config.Org,
		Pending:   len(pending),
		Encrypted: rt.Config.Queue.Passphrase != "",
		DataDir:   rt.Config.DataDir,
		Agent:     viaAgent,
	}
	if len(pending) > 0 {
		status.Oldest = pending[0].QueuedAt
	}

	// /health needs no credentials.
	if rt.Config.Server != "" {
		probe, err := rt.newClient("", "")
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		monitor := offline.NewMonitor(probe,
			offline.WithProbeTimeout(rt.Config.Agent.ProbeTimeout),
			offline.WithMonitorLogger(rt.Logger))
		status.Online = monitor.Check(ctx)
	}

	return rt.Print(status)
}

func queueSync(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}

	var spinner *output.Spinner
	if rt.Format == output.FormatTable {
		spinner = output.NewSpinner(rt.Err, "Syncing pending locations...")
		spinner.Start()
	}

	var (
		res    offline.SyncResult
		online bool
	)
	if agent := rt.Agent(c.Context); agent != nil {
		res, online, err = agentSync(c.Context, agent)
	} else {
		res, online, err = localSync(c.Context, rt, client)
	}
	if spinner != nil {
		switch {
		case errors.Is(err, domain.ErrSyncInProgress):
			spinner.Fail("The agent is already syncing")
		case err != nil:
			spinner.Fail("Sync failed")
		case !online:
			spinner.Fail(fmt.Sprintf("Server unreachable, %d pending", res.Remaining))
		case res.Failed > 0:
			spinner.Fail(fmt.Sprintf("Synced %d, %d failed", res.Synced, res.Failed))
		default:
			spinner.Success(fmt.Sprintf("Synced %d", res.Synced))
		}
	}
	if err != nil {
		return err
	}

	if err := rt.Print(res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d pending locations failed to sync; they stay queued", res.Failed)
	}
	return nil
}

// localSync runs a pass on the local queue.
func localSync(ctx context.Context, rt *Runtime, client *remote.Client) (offline.SyncResult, bool, error) {
	q, err := rt.Queue(ctx)
	if err != nil {
		return offline.SyncResult{}, false, err
	}
	monitor := offline.NewMonitor(client,
		offline.WithProbeTimeout(rt.Config.Agent.ProbeTimeout),
		offline.WithMonitorLogger(rt.Logger))
	monitor.Check(ctx)

	syncer := offline.NewSyncer(q, client, monitor, offline.WithSyncerLogger(rt.Logger))
	res, err := syncer.Sync(ctx)
	return res, monitor.Online(), err
}

// agentSync asks the running agent for a pass.
func agentSync(ctx context.Context, agent *remote.AgentClient) (offline.SyncResult, bool, error) {
	out, err := agent.Sync(ctx)
	if err != nil {
		return offline.SyncResult{}, false, err
	}
	res := offline.SyncResult{
		Synced:    out.Synced,
		Failed:    out.Failed,
		Remaining: out.Remaining,
		Duration:  time.Duration(out.DurationMS) * time.Millisecond,
	}
	status, err := agent.Status(ctx)
	if err != nil {
		return res, false, err
	}
	return res, status.Online, nil
}

func queueRemove(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("pending ID required")
	}
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}
	q, err := rt.Pending(c.Context)
	if err != nil {
		return err
	}

	rec, err := q.Get(c.Context, id)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("Discard pending location %q (%s)? It will never reach the server.", rec.Location.Name, id)
	if !c.Bool("force") && !rt.Confirm(prompt) {
		rt.Notef("Cancelled.")
		return nil
	}

	if err := q.Remove(c.Context, id); err != nil {
		return err
	}
	rt.Notef("Pending location %s removed.", id)
	return nil
}
