package service

import (
	"testing"

	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func newTestStore(t *testing.T) *storage.DocStore {
	t.Helper()
	kv, err := storage.NewBadgerEngine(storage.KVConfig{InMemory: true}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return storage.NewDocStore(kv)
}
