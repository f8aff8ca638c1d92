package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/server/httpserver"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

const testOrg = "acme"

// testEnv is a running fidloc-server over an in-memory store plus a
// client data directory.
type testEnv struct {
	server  *httptest.Server
	auth    *service.AuthService
	keyID   string
	secret  string
	dataDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// keep ~/.fidloc/config.yaml of the developer out of the tests
	t.Setenv("HOME", t.TempDir())

	kv, err := storage.NewBadgerEngine(storage.KVConfig{InMemory: true}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	store := storage.NewDocStore(kv)

	log := logger.Discard()
	auth := service.NewAuthService(store, &service.AuthServiceConfig{Logger: log})
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		LocationService: service.NewLocationService(store, metric.NewServerMetrics(metric.NewRegistry()), log),
		AuthService:     auth,
		Store:           store,
		Logger:          log,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := auth.CreateAPIKey(context.Background(), &service.CreateAPIKeyRequest{
		OrgID: testOrg,
		Name:  "admin",
		Role:  string(domain.RoleAdmin),
	})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	return &testEnv{
		server:  srv,
		auth:    auth,
		keyID:   resp.Key.KeyID,
		secret:  resp.Secret,
		dataDir: t.TempDir(),
	}
}

// result captures one CLI invocation.
type result struct {
	stdout string
	stderr string
	err    error
}

// decode unmarshals stdout as JSON.
func (r result) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(r.stdout), v); err != nil {
		t.Fatalf("decode stdout %q: %v", r.stdout, err)
	}
}

// syncBuffer is a bytes.Buffer safe for the agent's concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runApp runs the CLI with args (without the program name).
func runApp(ctx context.Context, stdin string, args ...string) result {
	var out, errOut syncBuffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.RunContext(ctx, append([]string{"fidloc"}, args...))
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// baseArgs points the CLI at server with the admin key.
func (e *testEnv) baseArgs(server string) []string {
	return []string{
		"--server", server,
		"--org", testOrg,
		"--api-key-id", e.keyID,
		"--api-key", e.secret,
		"--data-dir", e.dataDir,
	}
}

// run invokes the CLI against the test server.
func (e *testEnv) run(t *testing.T, args ...string) result {
	t.Helper()
	return runApp(context.Background(), "", append(e.baseArgs(e.server.URL), args...)...)
}

// runWithInput is run with stdin.
func (e *testEnv) runWithInput(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	return runApp(context.Background(), stdin, append(e.baseArgs(e.server.URL), args...)...)
}

// runAgainst invokes the CLI against another server URL with the same
// credentials and data directory.
func (e *testEnv) runAgainst(t *testing.T, server string, args ...string) result {
	t.Helper()
	return runApp(context.Background(), "", append(e.baseArgs(server), args...)...)
}

// deadServerURL returns the URL of a server that has been shut down.
func deadServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	return url
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func mustSucceed(t *testing.T, r result) {
	t.Helper()
	if r.err != nil {
		t.Fatalf("command failed: %v\nstdout: %s\nstderr: %s", r.err, r.stdout, r.stderr)
	}
}
