package kv

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/homehub-core/internal/infrastructure/database"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "kv.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // Test cleanup
	return s
}

func TestSQLiteStore(t *testing.T) {
	s := openTestSQLite(t)
	s.now = func() time.Time { return time.UnixMilli(1767323045000) }
	ctx := context.Background()

	if _, err := s.Get(ctx, "scenes"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() absent key error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "scenes", json.RawMessage(`[{"id":"evening"}]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "scenes", json.RawMessage(`[{"id":"morning"}]`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	entry, err := s.Get(ctx, "scenes")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(entry.Value) != `[{"id":"morning"}]` {
		t.Errorf("Value = %s, want the newest write", entry.Value)
	}
	if entry.Timestamp.UnixMilli() != 1767323045000 {
		t.Errorf("Timestamp = %v", entry.Timestamp)
	}

	if err := s.Set(ctx, "rooms", json.RawMessage(`[]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "rooms" || keys[1] != "scenes" {
		t.Errorf("Keys() = %v, want [rooms scenes]", keys)
	}

	if err := s.Delete(ctx, "scenes"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "scenes"); err != nil {
		t.Errorf("Delete() of absent key error = %v", err)
	}
	if _, err := s.Get(ctx, "scenes"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v", err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSQLiteStoreValidation(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.Set(ctx, "a.b", json.RawMessage(`1`)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set() bad key error = %v", err)
	}
	if err := s.Set(ctx, "ok", json.RawMessage(``)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Set() empty value error = %v", err)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	cfg := database.Config{Path: path, BusyTimeout: 5}
	ctx := context.Background()

	s, err := OpenSQLite(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := s.Set(ctx, "devices", json.RawMessage(`[{"id":"plug-1"}]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.Close() //nolint:errcheck // Reopened below

	s, err = OpenSQLite(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenSQLite() second open error = %v", err)
	}
	defer s.Close() //nolint:errcheck // Test cleanup

	entry, err := s.Get(ctx, "devices")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(entry.Value) != `[{"id":"plug-1"}]` {
		t.Errorf("Value = %s", entry.Value)
	}
}
