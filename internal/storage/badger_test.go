package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func newTestEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	cfg := DefaultKVConfig(t.TempDir())
	cfg.GCInterval = 0
	cfg.SyncWrites = false

	e, err := NewBadgerEngine(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestBadgerEngine_BasicOperations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		if err := e.Set(ctx, []byte("k1"), []byte("v1")); err != nil {
			t.Fatal(err)
		}
		got, err := e.Get(ctx, []byte("k1"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v1" {
			t.Errorf("Get() = %q, want v1", got)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := e.Get(ctx, []byte("nope")); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := e.Set(ctx, []byte("k2"), []byte("v2")); err != nil {
			t.Fatal(err)
		}
		if err := e.Delete(ctx, []byte("k2")); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Get(ctx, []byte("k2")); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Get() after delete error = %v", err)
		}
	})
}

func TestBadgerEngine_ScanOrderAndCount(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, k := range []string{"p/03", "p/01", "q/01", "p/02"} {
		if err := e.Set(ctx, []byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	if err := e.Scan(ctx, []byte("p/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"p/01", "p/02", "p/03"}, keys); diff != "" {
		t.Errorf("Scan() order mismatch (-want +got):\n%s", diff)
	}

	n, err := e.Count(ctx, []byte("p/"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	var first []string
	_ = e.Scan(ctx, []byte("p/"), func(key, _ []byte) bool {
		first = append(first, string(key))
		return false
	})
	if len(first) != 1 {
		t.Errorf("Scan should stop when callback returns false, got %v", first)
	}
}

func TestBadgerEngine_UpdateAtomic(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := e.Update(ctx, func(txn Txn) error {
		if err := txn.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}
	if _, err := e.Get(ctx, []byte("a")); !errors.Is(err, ErrKeyNotFound) {
		t.Error("aborted transaction must not persist writes")
	}
}

func TestBadgerEngine_UpdateConcurrentIncrements(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.Set(ctx, []byte("n"), []byte("0")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Update(ctx, func(txn Txn) error {
				raw, err := txn.Get([]byte("n"))
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(string(raw))
				if err != nil {
					return err
				}
				return txn.Set([]byte("n"), []byte(strconv.Itoa(n+1)))
			})
		}()
	}
	wg.Wait()

	raw, err := e.Get(ctx, []byte("n"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "4" {
		t.Errorf("counter = %s, want 4", raw)
	}
}

func TestBadgerEngine_Persistence(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultKVConfig(dir)
	cfg.GCInterval = 0

	e, err := NewBadgerEngine(cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Set(context.Background(), []byte("durable"), []byte("yes")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e2, err := NewBadgerEngine(cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer e2.Close()

	got, err := e2.Get(context.Background(), []byte("durable"))
	if err != nil || string(got) != "yes" {
		t.Errorf("after reopen Get() = %q, %v", got, err)
	}
}

func TestBadgerEngine_Closed(t *testing.T) {
	cfg := DefaultKVConfig("")
	cfg.InMemory = true
	e, err := NewBadgerEngine(cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := e.Get(context.Background(), []byte("k")); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after close = %v, want ErrClosed", err)
	}
	if lsm, vlog := e.Size(); lsm != 0 || vlog != 0 {
		t.Error("Size() after close should be zero")
	}
}

func TestBadgerEngine_ContextCancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Set(ctx, []byte("k"), []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() with cancelled ctx = %v", err)
	}
}

func TestBadgerEngine_GCAndStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.GC(ctx); err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastGCTime == 0 || stats.LastGCTime > time.Now().UnixMilli() {
		t.Errorf("LastGCTime = %d", stats.LastGCTime)
	}
	if stats.TotalSize() != stats.LSMSize+stats.ValueLogSize {
		t.Error("TotalSize mismatch")
	}
}

func TestNewBadgerEngine_RequiresDir(t *testing.T) {
	if _, err := NewBadgerEngine(KVConfig{}, nil); err == nil {
		t.Error("expected error without dir")
	}
}
