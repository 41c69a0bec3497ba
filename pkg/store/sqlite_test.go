package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "smartworking.db"))
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

// TestSQLiteReopen checks migrations are idempotent across restarts
func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	f := seedUsers(t, s)
	s.Close()

	s, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	u, err := s.GetUser(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("GetUser after reopen: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %s", u.Email)
	}

	version, err := MigrationVersion(ctx, s.DB(), "sqlite3")
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, Config{Type: "memory"})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}

	s, err = NewStore(ctx, Config{Type: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}

	if _, err := NewStore(ctx, Config{Type: "oracle"}); err != ErrUnsupportedDatabase {
		t.Errorf("expected ErrUnsupportedDatabase, got %v", err)
	}
}
