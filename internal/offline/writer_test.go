package offline

import (
	"context"
	"errors"
	"testing"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func TestWriter_Save(t *testing.T) {
	errRejected := domain.ErrLocationValidation.WithDetails("server said no")

	tests := []struct {
		name       string
		online     bool
		remoteErr  error
		wantQueued bool
		wantErr    error
		wantOnline bool
		wantCalls  int
	}{
		{name: "online write", online: true, wantOnline: true, wantCalls: 1},
		{name: "offline queues", online: false, wantQueued: true, wantCalls: 0},
		{name: "transient failure queues", online: true, remoteErr: domain.ErrRemoteUnavailable, wantQueued: true, wantCalls: 1},
		{name: "rejected write not queued", online: true, remoteErr: errRejected, wantErr: domain.ErrLocationValidation, wantOnline: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQueue(t)
			remote := newFakeRemote()
			remote.failAll = tt.remoteErr
			conn := &staticConn{online: tt.online}
			w := NewWriter(q, remote, conn, WithWriterLogger(logger.Discard()))
			ctx := context.Background()

			res, err := w.Save(ctx, "acme", testLocation("depot"))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Save() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			if len(remote.Calls()) != tt.wantCalls {
				t.Errorf("remote calls = %d, want %d", len(remote.Calls()), tt.wantCalls)
			}
			if conn.Online() != tt.wantOnline {
				t.Errorf("Online() = %v, want %v", conn.Online(), tt.wantOnline)
			}

			n, _ := q.Len(ctx)
			if tt.wantQueued {
				if !res.Queued || res.Pending == nil || n != 1 {
					t.Errorf("Save() queued=%v pending=%v len=%d, want one queued record", res.Queued, res.Pending, n)
				}
				return
			}
			if n != 0 {
				t.Errorf("queue Len() = %d, want 0", n)
			}
			if tt.wantErr == nil && (res.Location == nil || res.Location.ID == "") {
				t.Errorf("Save() location = %+v, want stored document", res.Location)
			}
		})
	}
}

func TestWriter_QueuedRecordReusesKey(t *testing.T) {
	q := newTestQueue(t)
	remote := newFakeRemote()
	remote.failAll = domain.ErrRemoteUnavailable
	w := NewWriter(q, remote, &staticConn{online: true}, WithWriterLogger(logger.Discard()))
	ctx := context.Background()

	res, err := w.Save(ctx, "acme", testLocation("depot"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Pending.Attempts != 1 || res.Pending.LastError == "" {
		t.Errorf("pending attempts=%d lastError=%q, want the direct failure recorded", res.Pending.Attempts, res.Pending.LastError)
	}
	if got := remote.Calls()[0].Key; got != res.Pending.PendingID {
		t.Errorf("idempotency key = %q, want pending id %q", got, res.Pending.PendingID)
	}
}

func TestWriter_InvalidLocation(t *testing.T) {
	q := newTestQueue(t)
	remote := newFakeRemote()
	w := NewWriter(q, remote, nil)

	_, err := w.Save(context.Background(), "acme", &domain.Location{Latitude: 100})
	if !errors.Is(err, domain.ErrLocationValidation) {
		t.Errorf("Save() error = %v, want ErrLocationValidation", err)
	}
	if len(remote.Calls()) != 0 {
		t.Error("invalid location reached the remote")
	}
}

func TestWriter_CustomRetryable(t *testing.T) {
	q := newTestQueue(t)
	remote := newFakeRemote()
	remote.failAll = errors.New("weird")
	w := NewWriter(q, remote, nil,
		WithWriterLogger(logger.Discard()),
		WithRetryable(func(error) bool { return true }))

	res, err := w.Save(context.Background(), "acme", testLocation("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !res.Queued {
		t.Error("Save() should queue when the classifier says retryable")
	}
}

func TestWriter_StagesOnlyWhenQueueing(t *testing.T) {
	tests := []struct {
		name      string
		online    bool
		remoteErr error
		wantStage int
	}{
		{name: "online write", online: true, wantStage: 0},
		{name: "offline", online: false, wantStage: 1},
		{name: "transient failure", online: true, remoteErr: domain.ErrRemoteUnavailable, wantStage: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var staged []*domain.PendingRecord
			stage := StagerFunc(func(_ context.Context, rec *domain.PendingRecord) error {
				staged = append(staged, rec)
				return nil
			})
			remote := newFakeRemote()
			remote.failAll = tt.remoteErr
			w := NewWriter(stage, remote, &staticConn{online: tt.online}, WithWriterLogger(logger.Discard()))

			res, err := w.Save(context.Background(), "acme", testLocation("depot"))
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if len(staged) != tt.wantStage {
				t.Fatalf("staged %d records, want %d", len(staged), tt.wantStage)
			}
			if tt.wantStage > 0 && staged[0].PendingID != res.Pending.PendingID {
				t.Errorf("staged %q, result pending %q", staged[0].PendingID, res.Pending.PendingID)
			}
		})
	}
}

func TestWriter_StageFailure(t *testing.T) {
	errLocked := errors.New("queue in use")
	stage := StagerFunc(func(context.Context, *domain.PendingRecord) error { return errLocked })
	w := NewWriter(stage, newFakeRemote(), &staticConn{online: false}, WithWriterLogger(logger.Discard()))

	if _, err := w.Save(context.Background(), "acme", testLocation("depot")); !errors.Is(err, errLocked) {
		t.Errorf("Save() error = %v, want %v", err, errLocked)
	}
}
