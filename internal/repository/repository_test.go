package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGetSetting_NonExistent(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetSetting(context.Background(), KeyAuthToken)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetSetting_NewValue(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	if err := repo.SetSetting(ctx, KeyAuthToken, "abc.def.ghi"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	value, err := repo.GetSetting(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "abc.def.ghi" {
		t.Errorf("expected abc.def.ghi, got %q", value)
	}
}

func TestSetSetting_UpdateExisting(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	repo.SetSetting(ctx, KeyPageSize, "9")
	repo.SetSetting(ctx, KeyPageSize, "24")

	value, _ := repo.GetSetting(ctx, KeyPageSize)
	if value != "24" {
		t.Errorf("expected 24, got %q", value)
	}
}

func TestDeleteSetting(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	repo.SetSetting(ctx, KeyAuthToken, "tok")
	if err := repo.DeleteSetting(ctx, KeyAuthToken); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, err := repo.GetSetting(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is a no-op
	if err := repo.DeleteSetting(ctx, KeyAuthToken); err != nil {
		t.Errorf("second delete should succeed, got %v", err)
	}
}

func TestSettings_PersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votedesk.db")
	ctx := context.Background()

	repo, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := repo.SetSetting(ctx, KeyAuthToken, "persisted"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	repo.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	value, err := reopened.GetSetting(ctx, KeyAuthToken)
	if err != nil || value != "persisted" {
		t.Errorf("expected persisted token after reopen, got %q (%v)", value, err)
	}
}

func TestPing(t *testing.T) {
	repo := newRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	repo := &Repository{}
	if err := repo.Close(); err != nil {
		t.Errorf("Close on nil db should be a no-op, got %v", err)
	}
}
