package offline

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/remote"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func newControlServer(t *testing.T, q *Queue, r Remote, token string) *remote.AgentClient {
	t.Helper()
	s := newTestSyncer(q, r, nil)
	srv := httptest.NewServer(NewControlHandler(ControlConfig{
		Queue:  q,
		Sync:   s.Sync,
		Token:  token,
		Logger: logger.Discard(),
	}))
	t.Cleanup(srv.Close)
	return remote.NewAgentClient(srv.URL, token)
}

func TestControl_QueueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	fr := newFakeRemote()
	client := newControlServer(t, q, fr, "s3cret")
	ctx := context.Background()

	rec, err := domain.NewPendingRecord("acme", testLocation("depot"))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.EnqueueRecord(ctx, rec); err != nil {
		t.Fatalf("EnqueueRecord() error = %v", err)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Pending != 1 || !status.Online {
		t.Errorf("Status() = %+v, want one pending and online", status)
	}

	list, err := client.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].PendingID != rec.PendingID {
		t.Fatalf("List() = %+v, want %s", list, rec.PendingID)
	}
	got, err := client.Get(ctx, rec.PendingID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Location.Name != "depot" || got.OrgID != "acme" {
		t.Errorf("Get() = %+v", got)
	}

	res, err := client.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Synced != 1 || res.Remaining != 0 {
		t.Errorf("Sync() = %+v, want one synced", res)
	}
	if calls := fr.Calls(); len(calls) != 1 || calls[0].Key != rec.PendingID {
		t.Errorf("remote calls = %+v, want one write keyed %s", calls, rec.PendingID)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue Len() = %d after sync, want 0", n)
	}
}

func TestControl_Remove(t *testing.T) {
	q := newTestQueue(t)
	client := newControlServer(t, q, newFakeRemote(), "")
	ctx := context.Background()

	rec, err := q.Enqueue(ctx, "acme", testLocation("gone"))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Remove(ctx, rec.PendingID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := client.Get(ctx, rec.PendingID); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Errorf("Get() error = %v, want ErrPendingNotFound", err)
	}
	if err := client.Remove(ctx, rec.PendingID); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Errorf("second Remove() error = %v, want ErrPendingNotFound", err)
	}
}

func TestControl_Token(t *testing.T) {
	q := newTestQueue(t)
	srv := httptest.NewServer(NewControlHandler(ControlConfig{Queue: q, Token: "s3cret", Logger: logger.Discard()}))
	defer srv.Close()
	ctx := context.Background()

	for _, token := range []string{"", "wrong"} {
		client := remote.NewAgentClient(srv.URL, token)
		if _, err := client.Status(ctx); !errors.Is(err, domain.ErrAgentToken) {
			t.Errorf("Status(token=%q) error = %v, want ErrAgentToken", token, err)
		}
		rec, _ := domain.NewPendingRecord("acme", testLocation("sneaky"))
		if err := client.EnqueueRecord(ctx, rec); !errors.Is(err, domain.ErrAgentToken) {
			t.Errorf("EnqueueRecord(token=%q) error = %v, want ErrAgentToken", token, err)
		}
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue Len() = %d, want nothing queued without the token", n)
	}
}

func TestControl_RejectsInvalidRecord(t *testing.T) {
	q := newTestQueue(t)
	client := newControlServer(t, q, newFakeRemote(), "")
	ctx := context.Background()

	rec, err := domain.NewPendingRecord("acme", testLocation("depot"))
	if err != nil {
		t.Fatal(err)
	}

	badLoc := rec.Clone()
	badLoc.Location.Latitude = 120
	if err := client.EnqueueRecord(ctx, badLoc); !errors.Is(err, domain.ErrLocationValidation) {
		t.Errorf("EnqueueRecord(latitude 120) error = %v, want ErrLocationValidation", err)
	}

	badID := rec.Clone()
	badID.PendingID = "nope"
	if err := client.EnqueueRecord(ctx, badID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("EnqueueRecord(bad id) error = %v, want ErrInvalidArgument", err)
	}

	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue Len() = %d, want 0", n)
	}
}
