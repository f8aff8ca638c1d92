package offline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func newTestSyncer(q *Queue, r Remote, conn Connectivity) *Syncer {
	return NewSyncer(q, r, conn, WithSyncerLogger(logger.Discard()))
}

func TestSyncer_Offline(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "acme", testLocation("a")); err != nil {
		t.Fatal(err)
	}
	remote := newFakeRemote()

	res, err := newTestSyncer(q, remote, &staticConn{online: false}).Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Synced != 0 || res.Failed != 0 {
		t.Errorf("Sync() = %+v, want zero counts while offline", res)
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", res.Remaining)
	}
	if len(remote.Calls()) != 0 {
		t.Errorf("remote called %d times while offline", len(remote.Calls()))
	}
}

func TestSyncer_EmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	res, err := newTestSyncer(q, newFakeRemote(), nil).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Synced != 0 || res.Failed != 0 || res.Remaining != 0 {
		t.Errorf("Sync() = %+v, want all zero", res)
	}
}

func TestSyncer_DrainsInOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var recs []*domain.PendingRecord
	for i := 0; i < 3; i++ {
		rec, err := q.Enqueue(ctx, "acme", testLocation(fmt.Sprintf("site %d", i)))
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
	}
	remote := newFakeRemote()

	res, err := newTestSyncer(q, remote, &staticConn{online: true}).Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Synced != 3 || res.Failed != 0 || res.Remaining != 0 {
		t.Errorf("Sync() = %+v, want 3 synced", res)
	}

	var want []remoteCall
	for _, rec := range recs {
		want = append(want, remoteCall{OrgID: "acme", Key: rec.PendingID, Loc: rec.Strip()})
	}
	if diff := cmp.Diff(want, remote.Calls()); diff != "" {
		t.Errorf("remote calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncer_FailureContinues(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, name := range []string{"a", "bad", "c"} {
		if _, err := q.Enqueue(ctx, "acme", testLocation(name)); err != nil {
			t.Fatal(err)
		}
	}
	remote := newFakeRemote()
	remote.failNames["bad"] = domain.ErrRemoteUnavailable
	s := newTestSyncer(q, remote, nil)

	res, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Synced != 2 || res.Failed != 1 || res.Remaining != 1 {
		t.Errorf("Sync() = %+v, want synced=2 failed=1 remaining=1", res)
	}

	left, err := q.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Location.Name != "bad" {
		t.Fatalf("queue = %v, want only the failed record", left)
	}
	if left[0].Attempts != 1 || left[0].LastError == "" {
		t.Errorf("failed record attempts=%d lastError=%q, want 1 and a message", left[0].Attempts, left[0].LastError)
	}

	// Failures are retried on every pass without a cap.
	if _, err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	delete(remote.failNames, "bad")
	res, err = s.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 1 || res.Remaining != 0 {
		t.Errorf("third Sync() = %+v, want the record to drain", res)
	}
}

func TestSyncer_FailedRemoveReplaysSameKey(t *testing.T) {
	kv := newTestKV(t)
	q := NewQueue(kv, WithQueueLogger(logger.Discard()))
	ctx := context.Background()

	rec, err := q.Enqueue(ctx, "acme", testLocation("once"))
	if err != nil {
		t.Fatal(err)
	}

	remote := newFakeRemote()
	remote.hook = func() {
		// Simulate the local removal failing after the remote write landed.
		_ = kv.Delete(ctx, pendingKey(rec.PendingID))
	}

	res, err := newTestSyncer(q, remote, nil).Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Synced != 0 {
		t.Errorf("Sync() = %+v, want the failed removal counted as failed", res)
	}

	// A replay under the same key must not create a second document.
	remote.hook = nil
	if _, err := remote.CreateLocation(ctx, "acme", rec.Strip(), rec.PendingID); err != nil {
		t.Fatal(err)
	}
	if n := remote.StoredCount(); n != 1 {
		t.Errorf("remote stored %d documents, want 1", n)
	}
}

func TestSyncer_SingleFlight(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "acme", testLocation("slow")); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	remote := newFakeRemote()
	remote.hook = func() {
		close(entered)
		<-release
	}
	s := newTestSyncer(q, remote, nil)

	done := make(chan SyncResult)
	go func() {
		res, _ := s.Sync(ctx)
		done <- res
	}()

	<-entered
	res, err := s.Sync(ctx)
	if !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("concurrent Sync() error = %v, want ErrSyncInProgress", err)
	}
	if res != (SyncResult{}) {
		t.Errorf("concurrent Sync() = %+v, want zero result", res)
	}

	close(release)
	if first := <-done; first.Synced != 1 {
		t.Errorf("first Sync() = %+v, want 1 synced", first)
	}
}

func TestSyncer_CancelledContext(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, "acme", testLocation(fmt.Sprintf("s%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	cctx, cancel := context.WithCancel(ctx)
	remote := newFakeRemote()
	remote.hook = cancel

	res, err := newTestSyncer(q, remote, nil).Sync(cctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sync() error = %v, want context.Canceled", err)
	}
	if res.Synced+res.Failed != 1 {
		t.Errorf("Sync() processed %d records, want 1 before stopping", res.Synced+res.Failed)
	}
	if len(remote.Calls()) != 1 {
		t.Errorf("remote called %d times, want 1", len(remote.Calls()))
	}
}
