package offline

import (
	"context"
	"log/slog"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/remote"
)

// Stager stores a record for a later sync pass. *Queue is a Stager.
type Stager interface {
	EnqueueRecord(ctx context.Context, rec *domain.PendingRecord) error
}

// StagerFunc adapts a function to Stager.
type StagerFunc func(ctx context.Context, rec *domain.PendingRecord) error

// EnqueueRecord calls f.
func (f StagerFunc) EnqueueRecord(ctx context.Context, rec *domain.PendingRecord) error {
	return f(ctx, rec)
}

// ConnectivitySetter is a Connectivity that accepts external signals.
type ConnectivitySetter interface {
	Connectivity
	SetOnline(online bool)
}

// SaveResult reports where a location write ended up.
type SaveResult struct {
	// Location is the stored document when the remote write succeeded.
	Location *domain.Location `json:"location,omitempty" yaml:"location,omitempty"`
	// Pending is the queued record when the write was staged locally.
	Pending *domain.PendingRecord `json:"pending,omitempty" yaml:"pending,omitempty"`
	// Queued is true when the write was staged locally.
	Queued bool `json:"queued" yaml:"queued"`
}

// Writer saves locations remotely when possible and queues them otherwise.
type Writer struct {
	stage     Stager
	remote    Remote
	conn      ConnectivitySetter
	retryable func(error) bool
	logger    *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger sets the logger.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = l
	}
}

// WithRetryable replaces the failure classifier. The default is
// remote.IsRetryable.
func WithRetryable(fn func(error) bool) WriterOption {
	return func(w *Writer) {
		w.retryable = fn
	}
}

// NewWriter creates a writer. stage is only used when a write has to be
// queued. A nil conn means always try the remote first.
func NewWriter(stage Stager, rc Remote, conn ConnectivitySetter, opts ...WriterOption) *Writer {
	w := &Writer{
		stage:     stage,
		remote:    rc,
		conn:      conn,
		retryable: remote.IsRetryable,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Save writes loc for orgID.
//
// Offline, the location is queued. Online, it is written remotely; a
// retryable failure marks the connection offline and queues the
// location, while any other failure (validation, auth) is returned and
// nothing is queued. The remote write and a later sync of the queued
// record share one idempotency key.
func (w *Writer) Save(ctx context.Context, orgID string, loc *domain.Location) (*SaveResult, error) {
	rec, err := domain.NewPendingRecord(orgID, loc)
	if err != nil {
		return nil, err
	}

	if w.conn != nil && !w.conn.Online() {
		return w.enqueue(ctx, rec)
	}

	stored, err := w.remote.CreateLocation(ctx, orgID, rec.Strip(), rec.PendingID)
	if err == nil {
		if w.conn != nil {
			w.conn.SetOnline(true)
		}
		return &SaveResult{Location: stored}, nil
	}

	if ctx.Err() != nil || !w.retryable(err) {
		return nil, err
	}

	w.logger.Warn("remote write failed, queueing location",
		"org", orgID,
		"name", rec.Location.Name,
		"error", err)
	if w.conn != nil {
		w.conn.SetOnline(false)
	}
	rec.MarkFailed(err)
	return w.enqueue(ctx, rec)
}

func (w *Writer) enqueue(ctx context.Context, rec *domain.PendingRecord) (*SaveResult, error) {
	if err := w.stage.EnqueueRecord(ctx, rec); err != nil {
		return nil, err
	}
	return &SaveResult{Pending: rec, Queued: true}, nil
}
