package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/infra/buildinfo"
	"github.com/fidloc/fidloc-go/internal/infra/confloader"
	"github.com/fidloc/fidloc-go/internal/infra/shutdown"
	"github.com/fidloc/fidloc-go/internal/infra/tlsroots"
	"github.com/fidloc/fidloc-go/internal/server/config"
	"github.com/fidloc/fidloc-go/internal/server/httpserver"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fidloc-server", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	showVersion := fs.Bool("version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "fidloc-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting fidloc-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)

	srv, err := newServer(cfg, log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := bootstrap(ctx, srv.auth, cfg.Security.BootstrapOrg, stdout, log); err != nil {
		_ = srv.kv.Close()
		return fmt.Errorf("bootstrap: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTP.Addr)
	if err != nil {
		_ = srv.kv.Close()
		return fmt.Errorf("listen: %w", err)
	}

	tlsEnabled := cfg.Server.HTTP.TLSCertFile != ""
	if tlsEnabled {
		reloader, err := tlsroots.NewReloader(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(log))
		if err != nil {
			_ = ln.Close()
			_ = srv.kv.Close()
			return err
		}
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go func() {
			if err := reloader.Watch(watchCtx); err != nil {
				log.Warn("certificate watcher stopped", "error", err)
			}
		}()
		ln = tls.NewListener(ln, reloader.ServerConfig())
	}

	httpServer := httpserver.New(cfg.Server.HTTP.Addr, srv.handler,
		httpserver.WithReadHeaderTimeout(cfg.Server.HTTP.ReadHeaderTimeout))

	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)

	// Hooks run in reverse: HTTP drains before storage closes.
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		log.Info("closing storage")
		return srv.kv.Close()
	})
	shutdownHandler.OnShutdown("http", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", ln.Addr().String(), "tls", tlsEnabled)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig applies defaults, the optional file and FIDLOC_ environment
// variables, then validates the result.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// server holds the wired components of one process.
type server struct {
	kv      *storage.BadgerEngine
	auth    *service.AuthService
	handler http.Handler
}

func newServer(cfg *config.ServerConfig, log *slog.Logger) (*server, error) {
	kvCfg := storage.DefaultKVConfig(cfg.Storage.DataDir)
	kvCfg.GCInterval = cfg.Storage.GCInterval
	kvCfg.InMemory = cfg.Storage.InMemory

	kv, err := storage.NewBadgerEngine(kvCfg, log)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if cfg.Storage.InMemory {
		log.Warn("storage is in memory, data will not survive a restart")
	}
	store := storage.NewDocStore(kv)

	reg := metric.NewRegistry()
	serverMetrics := metric.NewServerMetrics(reg)
	reg.MustRegister(metric.NewStorageCollector("docstore", kv.Size))

	auth := service.NewAuthService(store, &service.AuthServiceConfig{
		CacheTTL: cfg.Security.KeyCacheTTL,
		Logger:   log,
	})
	locations := service.NewLocationService(store, serverMetrics, log)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		LocationService:     locations,
		AuthService:         auth,
		Store:               store,
		Metrics:             serverMetrics,
		MetricsHandler:      metric.Handler(reg),
		Logger:              log,
		TrustedProxies:      cfg.Server.HTTP.TrustedProxies,
		AdminAllowList:      cfg.Server.HTTP.AdminAllowList,
		MetricsAuthRequired: cfg.Security.MetricsAuthRequired,
		CORSAllowedOrigins:  cfg.Server.HTTP.CORSAllowedOrigins,
		GlobalRateLimit:     cfg.Server.HTTP.RateLimit,
		EnableAudit:         cfg.Server.HTTP.EnableAudit,
	})

	log.Info("services initialized", "data_dir", cfg.Storage.DataDir, "in_memory", cfg.Storage.InMemory)
	return &server{kv: kv, auth: auth, handler: router}, nil
}

// bootstrap creates the first admin key for org on an empty store and
// prints its secret. The secret is never logged.
func bootstrap(ctx context.Context, auth *service.AuthService, org string, out io.Writer, log *slog.Logger) error {
	if org == "" {
		return nil
	}
	created, err := auth.Bootstrap(ctx, org)
	if err != nil {
		return err
	}
	if created == nil {
		log.Debug("api keys exist, bootstrap skipped", "org", org)
		return nil
	}

	log.Warn("bootstrap admin key created", "org", org, "key_id", created.Key.KeyID)
	fmt.Fprintf(out, "\nBootstrap admin key for organization %q (shown once):\n", org)
	fmt.Fprintf(out, "  api_key_id: %s\n", created.Key.KeyID)
	fmt.Fprintf(out, "  api_key:    %s\n\n", created.Secret)
	return nil
}
