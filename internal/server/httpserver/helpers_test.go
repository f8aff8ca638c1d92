package httpserver

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/remote"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

const testOrg = "acme"

// testEnv is a fully wired server over an in-memory store.
type testEnv struct {
	server *httptest.Server
	store  *storage.DocStore
	auth   *service.AuthService
	reg    *prometheus.Registry
	logs   *bytes.Buffer

	adminID     string
	adminSecret string
}

func newTestEnv(t *testing.T, mutate func(*RouterConfig)) *testEnv {
	t.Helper()

	kv, err := storage.NewBadgerEngine(storage.KVConfig{InMemory: true}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	store := storage.NewDocStore(kv)

	reg := metric.NewRegistry()
	m := metric.NewServerMetrics(reg)
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(logs, nil))

	auth := service.NewAuthService(store, &service.AuthServiceConfig{Logger: log})
	cfg := &RouterConfig{
		LocationService: service.NewLocationService(store, m, log),
		AuthService:     auth,
		Store:           store,
		Metrics:         m,
		MetricsHandler:  metric.Handler(reg),
		Logger:          log,
		EnableAudit:     true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(srv.Close)

	env := &testEnv{server: srv, store: store, auth: auth, reg: reg, logs: logs}
	env.adminID, env.adminSecret = env.createKey(t, testOrg, domain.RoleAdmin)
	return env
}

func (e *testEnv) createKey(t *testing.T, org string, role domain.Role) (string, string) {
	t.Helper()
	resp, err := e.auth.CreateAPIKey(context.Background(), &service.CreateAPIKeyRequest{
		OrgID: org,
		Name:  string(role) + "-key",
		Role:  string(role),
	})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	return resp.Key.KeyID, resp.Secret
}

func (e *testEnv) client(keyID, secret string) *remote.Client {
	return remote.New(e.server.URL, keyID, secret)
}

func (e *testEnv) admin() *remote.Client {
	return e.client(e.adminID, e.adminSecret)
}

func testLocation(name string) *domain.Location {
	return &domain.Location{
		Name:         name,
		Address:      "1 Main St",
		Latitude:     40.1,
		Longitude:    -75.2,
		LocationType: domain.LocationTypeHut,
	}
}
