package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cliptrail/cliptrail-agent/internal/db"
	"github.com/cliptrail/cliptrail-agent/internal/history"
)

func TestEnsureAuthToken(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	defer database.Close()

	repo := history.NewRepository(database.Conn())

	first, err := ensureAuthToken(repo)
	if err != nil {
		t.Fatalf("ensureAuthToken() error = %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}

	second, err := ensureAuthToken(repo)
	if err != nil {
		t.Fatalf("ensureAuthToken() second call error = %v", err)
	}
	if second != first {
		t.Errorf("token changed between calls: %q then %q", first, second)
	}

	stored, err := repo.GetConfig(context.Background(), "auth_token")
	if err != nil || stored != first {
		t.Errorf("stored token = %q, %v; want %q", stored, err, first)
	}
}
