package command

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fidloc/fidloc-go/internal/cli/config"
	"github.com/fidloc/fidloc-go/internal/infra/confloader"
	"github.com/fidloc/fidloc-go/internal/infra/shutdown"
	"github.com/fidloc/fidloc-go/internal/offline"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

const agentShutdownTimeout = 10 * time.Second

// AgentCommand returns the agent command.
func AgentCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Watch connectivity and sync the queue whenever the server comes back",
		Description: "Runs until interrupted. Every reconnect starts a sync pass; --sync-interval\n" +
			"adds periodic passes. Editing the config file updates log.level,\n" +
			"agent.probe_interval and agent.sync_interval without a restart.\n\n" +
			"While the agent runs, other fidloc commands queue, list and sync through\n" +
			"its control listener (agent.control_addr) instead of opening the queue.",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "probe-interval",
				Usage: "Delay between health probes",
			},
			&cli.DurationFlag{
				Name:  "sync-interval",
				Usage: "Periodic sync interval (0 = only on reconnect)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)",
			},
			&cli.StringFlag{
				Name:  "control-addr",
				Usage: "Loopback address of the control listener (empty disables it)",
			},
		},
		Action: agentRun,
	}
}

func agentRun(c *cli.Context) error {
	rt, err := getRuntime(c)
	if err != nil {
		return err
	}

	if c.IsSet("probe-interval") {
		rt.overrides["agent.probe_interval"] = c.Duration("probe-interval").String()
	}
	if c.IsSet("sync-interval") {
		rt.overrides["agent.sync_interval"] = c.Duration("sync-interval").String()
	}
	if c.IsSet("metrics-addr") {
		rt.overrides["agent.metrics_addr"] = c.String("metrics-addr")
	}
	if c.IsSet("control-addr") {
		rt.overrides["agent.control_addr"] = c.String("control-addr")
	}
	cfg, err := rt.Reload()
	if err != nil {
		return err
	}
	rt.Config = cfg

	client, err := rt.Remote()
	if err != nil {
		return err
	}

	reg := metric.NewRegistry()
	am := metric.NewAgentMetrics(reg)

	q, err := rt.Queue(c.Context, offline.WithQueueMetrics(am))
	if err != nil {
		return err
	}
	reg.MustRegister(metric.NewStorageCollector("queue", rt.queueSize))
	if n, err := q.Len(c.Context); err == nil {
		am.SetQueueDepth(n)
	}

	monitor := offline.NewMonitor(client,
		offline.WithProbeInterval(cfg.Agent.ProbeInterval),
		offline.WithProbeTimeout(cfg.Agent.ProbeTimeout),
		offline.WithMonitorLogger(rt.Logger),
		offline.WithMonitorMetrics(am))
	syncer := offline.NewSyncer(q, client, monitor,
		offline.WithSyncerLogger(rt.Logger),
		offline.WithSyncerMetrics(am))

	opts := []offline.AgentOption{
		offline.WithSyncInterval(cfg.Agent.SyncInterval),
		offline.WithAgentLogger(rt.Logger),
		offline.WithResultHook(func(res offline.SyncResult, err error) {
			if err == nil && res.Synced+res.Failed > 0 {
				rt.Notef("Synced %d, failed %d, %d still pending.", res.Synced, res.Failed, res.Remaining)
			}
		}),
	}
	if cfg.Agent.MetricsAddr != "" {
		opts = append(opts, offline.WithMetricsServer(cfg.Agent.MetricsAddr, metric.Handler(reg)))
	}
	endpointPath := agentEndpointPath(cfg.DataDir)
	if cfg.Agent.ControlAddr != "" {
		token, err := newAgentToken()
		if err != nil {
			return err
		}
		opts = append(opts, offline.WithControlServer(cfg.Agent.ControlAddr, token, func(addr string) error {
			return writeAgentEndpoint(endpointPath, agentEndpoint{Addr: addr, Token: token, PID: os.Getpid()})
		}))
	}
	agent := offline.NewAgent(monitor, syncer, opts...)

	sh := shutdown.NewHandlerContext(c.Context, agentShutdownTimeout, rt.Logger)
	ctx := sh.Context()

	sh.OnShutdown("queue", func(context.Context) error {
		return rt.Close()
	})
	if cfg.Agent.ControlAddr != "" {
		sh.OnShutdown("control endpoint", func(context.Context) error {
			if err := os.Remove(endpointPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		})
	}

	runDone := make(chan error, 1)
	go func() {
		err := agent.Run(ctx)
		if err != nil {
			sh.Trigger()
		}
		runDone <- err
	}()
	sh.OnShutdown("agent", func(hctx context.Context) error {
		select {
		case err := <-runDone:
			return err
		case <-hctx.Done():
			return hctx.Err()
		}
	})

	if path := watchedConfigPath(rt.ConfigPath); path != "" {
		if err := watchConfig(ctx, path, rt, monitor, agent); err != nil {
			rt.Logger.Warn("config hot reload disabled", "file", path, "error", err)
		}
	}

	rt.Logger.Info("agent started",
		"server", cfg.Server,
		"org", cfg.Org,
		"probe_interval", cfg.Agent.ProbeInterval,
		"sync_interval", cfg.Agent.SyncInterval)

	return sh.Wait()
}

// watchedConfigPath returns the config file to watch, or "" when the
// default file does not exist.
func watchedConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path := config.DefaultConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return path
}

// watchConfig applies log level and interval changes from the config
// file to the running agent. Other settings need a restart.
func watchConfig(ctx context.Context, path string, rt *Runtime, monitor *offline.Monitor, agent *offline.Agent) error {
	w, err := confloader.NewWatcher(path, confloader.WithWatcherLogger(rt.Logger))
	if err != nil {
		return err
	}
	w.OnChange(func(string) {
		cfg, err := rt.Reload()
		if err != nil {
			rt.Logger.Error("config reload rejected", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			rt.Logger.Error("config reload: bad log level", "error", err)
		}
		monitor.SetProbeInterval(cfg.Agent.ProbeInterval)
		agent.SetSyncInterval(cfg.Agent.SyncInterval)
		rt.Logger.Info("config reloaded",
			"log_level", cfg.Log.Level,
			"probe_interval", cfg.Agent.ProbeInterval,
			"sync_interval", cfg.Agent.SyncInterval)
	})
	go w.Run(ctx)
	return nil
}
