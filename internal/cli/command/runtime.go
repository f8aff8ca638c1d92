package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fidloc/fidloc-go/internal/cli/config"
	"github.com/fidloc/fidloc-go/internal/cli/output"
	"github.com/fidloc/fidloc-go/internal/infra/tlsroots"
	"github.com/fidloc/fidloc-go/internal/offline"
	"github.com/fidloc/fidloc-go/internal/remote"
	"github.com/fidloc/fidloc-go/internal/storage"
)

// Runtime holds the resolved configuration and the resources shared by
// commands in one invocation.
type Runtime struct {
	Config *config.Config

	// ConfigPath is the --config value; empty means the default path.
	ConfigPath string

	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
	In     io.Reader
	Format output.Format
	Wide   bool

	// overrides are the flag values applied on top of file and env, kept
	// so a reload resolves the same way.
	overrides map[string]any

	mu     sync.Mutex
	client *remote.Client
	kv     *storage.BadgerEngine
	queue  *offline.Queue

	agent        *remote.AgentClient
	agentChecked bool
}

// Remote returns the client for the configured server. It fails when
// server, org or credentials are missing.
func (r *Runtime) Remote() (*remote.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	if err := config.RequireRemote(r.Config); err != nil {
		return nil, err
	}
	client, err := r.newClient(r.Config.APIKeyID, r.Config.APIKey)
	if err != nil {
		return nil, err
	}
	r.client = client
	return r.client, nil
}

// newClient builds a client for the configured server, trusting ca_file
// when set.
func (r *Runtime) newClient(keyID, key string) (*remote.Client, error) {
	var opts []remote.Option
	if r.Config.CAFile != "" {
		tlsCfg, err := tlsroots.ClientConfig(r.Config.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, remote.WithTLSConfig(tlsCfg))
	}
	return remote.New(r.Config.Server, keyID, key, opts...), nil
}

// Queue opens the local pending queue under data_dir. opts apply only to
// the first call. Commands that only stage or read records use Pending,
// which also reaches the queue of a running agent.
func (r *Runtime) Queue(ctx context.Context, opts ...offline.QueueOption) (*offline.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.queue != nil {
		return r.queue, nil
	}
	if r.Config.DataDir == "" {
		return nil, errors.New("data_dir is required")
	}

	kv, err := storage.NewBadgerEngine(storage.DefaultKVConfig(r.Config.DataDir), r.Logger)
	if err != nil {
		if strings.Contains(err.Error(), "directory lock") {
			return nil, fmt.Errorf("queue at %s is held by another process and no agent answers on %s: %w",
				r.Config.DataDir, agentEndpointPath(r.Config.DataDir), err)
		}
		return nil, fmt.Errorf("open queue at %s: %w", r.Config.DataDir, err)
	}

	qopts := []offline.QueueOption{offline.WithQueueLogger(r.Logger)}
	if pass := r.Config.Queue.Passphrase; pass != "" {
		cipher, err := offline.OpenCipher(ctx, kv, pass)
		if err != nil {
			_ = kv.Close()
			return nil, err
		}
		qopts = append(qopts, offline.WithCipher(cipher))
	}

	r.kv = kv
	r.queue = offline.NewQueue(kv, append(qopts, opts...)...)
	return r.queue, nil
}

// queueSize reports the queue database size for metrics.
func (r *Runtime) queueSize() (lsm, vlog int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kv == nil {
		return 0, 0
	}
	return r.kv.Size()
}

// Print writes data in the selected output format.
func (r *Runtime) Print(data any) error {
	return output.NewFormatter(r.Format, r.Wide).Format(r.Out, data)
}

// Notef writes a human-readable note to stderr so stdout stays parseable.
func (r *Runtime) Notef(format string, args ...any) {
	fmt.Fprintf(r.Err, format+"\n", args...)
}

// Confirm asks a yes/no question on stdin. Anything but y/yes is no.
func (r *Runtime) Confirm(prompt string) bool {
	fmt.Fprintf(r.Err, "%s [y/N]: ", prompt)
	if r.In == nil {
		return false
	}
	line, _ := bufio.NewReader(r.In).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Reload re-reads the configuration with the same flag overrides.
func (r *Runtime) Reload() (*config.Config, error) {
	cfg, err := config.Load(r.ConfigPath, r.overrides)
	if err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Close releases the local queue.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kv == nil {
		return nil
	}
	err := r.kv.Close()
	r.kv = nil
	r.queue = nil
	return err
}
