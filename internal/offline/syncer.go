package offline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

// Remote writes locations to the remote document store.
type Remote interface {
	CreateLocation(ctx context.Context, orgID string, loc *domain.Location, idempotencyKey string) (*domain.Location, error)
}

// Connectivity reports whether the remote store is believed reachable.
type Connectivity interface {
	Online() bool
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Synced    int           `json:"synced" yaml:"synced"`
	Failed    int           `json:"failed" yaml:"failed"`
	Remaining int           `json:"remaining" yaml:"remaining"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Syncer drains the queue into the remote store.
type Syncer struct {
	queue   *Queue
	remote  Remote
	conn    Connectivity
	logger  *slog.Logger
	metrics *metric.AgentMetrics

	running sync.Mutex
	now     func() time.Time
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithSyncerLogger sets the logger.
func WithSyncerLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithSyncerMetrics records pass outcomes.
func WithSyncerMetrics(m *metric.AgentMetrics) SyncerOption {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// NewSyncer creates a syncer. A nil conn means always online.
func NewSyncer(q *Queue, remote Remote, conn Connectivity, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		queue:  q,
		remote: remote,
		conn:   conn,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one pass. While offline it does nothing and reports zero
// counts. Records are sent one at a time in insertion order; a record
// that fails is logged, counted and left queued, and the pass moves on.
//
// Only one pass runs at a time; a concurrent call returns a zero result
// and ErrSyncInProgress. A cancelled ctx ends the pass early with the
// counts so far.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	if !s.running.TryLock() {
		s.metrics.ObservePass(metric.PassBusy, 0, 0, 0)
		return SyncResult{}, domain.ErrSyncInProgress
	}
	defer s.running.Unlock()

	start := s.now()
	var res SyncResult

	if s.conn != nil && !s.conn.Online() {
		s.logger.Info("still offline, cannot sync")
		res.Remaining = s.remaining(ctx)
		s.metrics.ObservePass(metric.PassOffline, 0, 0, 0)
		return res, nil
	}

	pending, err := s.queue.List(ctx)
	if err != nil {
		s.metrics.ObservePass(metric.PassError, 0, 0, 0)
		return res, err
	}
	if len(pending) == 0 {
		s.logger.Debug("no pending locations to sync")
		s.metrics.ObservePass(metric.PassCompleted, 0, 0, s.now().Sub(start))
		return res, nil
	}

	s.logger.Info("syncing pending locations", "count", len(pending))

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			res.Remaining = s.remaining(context.WithoutCancel(ctx))
			res.Duration = s.now().Sub(start)
			s.metrics.ObservePass(metric.PassError, res.Synced, res.Failed, res.Duration)
			return res, err
		}

		if err := s.syncOne(ctx, rec); err != nil {
			res.Failed++
			s.logger.Error("failed to sync location",
				"pending_id", rec.PendingID,
				"org", rec.OrgID,
				"name", rec.Location.Name,
				"attempt", rec.Attempts+1,
				"error", err)
			if ferr := s.queue.RecordFailure(ctx, rec.PendingID, err); ferr != nil {
				s.logger.Warn("failed to record sync failure", "pending_id", rec.PendingID, "error", ferr)
			}
			continue
		}

		res.Synced++
		s.logger.Info("location synced", "pending_id", rec.PendingID, "name", rec.Location.Name)
	}

	res.Remaining = s.remaining(ctx)
	res.Duration = s.now().Sub(start)
	s.logger.Info("sync complete",
		"synced", res.Synced,
		"failed", res.Failed,
		"remaining", res.Remaining,
		"duration", res.Duration)
	s.metrics.ObservePass(metric.PassCompleted, res.Synced, res.Failed, res.Duration)
	return res, nil
}

// syncOne writes one record and removes it from the queue. A failed
// removal counts as a failure; the next pass replays the write under the
// same idempotency key and then removes the record.
func (s *Syncer) syncOne(ctx context.Context, rec *domain.PendingRecord) error {
	if _, err := s.remote.CreateLocation(ctx, rec.OrgID, rec.Strip(), rec.PendingID); err != nil {
		return err
	}
	return s.queue.Remove(ctx, rec.PendingID)
}

func (s *Syncer) remaining(ctx context.Context) int {
	n, err := s.queue.Len(ctx)
	if err != nil {
		s.logger.Warn("failed to count queue", "error", err)
		return 0
	}
	return n
}
