package authstore

import (
	"path/filepath"
	"testing"

	"github.com/statichq/gitcms/internal/backend"
)

func TestFileStore_Roundtrip(t *testing.T) {
	t.Parallel()

	store := NewFile(filepath.Join(t.TempDir(), "nested", "auth.json"))

	user, err := store.Load()
	if err != nil {
		t.Fatalf("Load() on empty store: %v", err)
	}
	if user != nil {
		t.Fatalf("Load() on empty store = %+v, want nil", user)
	}

	saved := &backend.User{
		BackendName: "github",
		Login:       "jane",
		Name:        "Jane Doe",
		Token:       "tok-123",
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() = nil, want stored user")
	}
	if *loaded != *saved {
		t.Errorf("Load() = %+v, want %+v", loaded, saved)
	}
}

func TestFileStore_Clear(t *testing.T) {
	t.Parallel()

	store := NewFile(filepath.Join(t.TempDir(), "auth.json"))

	// Clearing a store that never saved must not fail.
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() on empty store: %v", err)
	}

	if err := store.Save(&backend.User{BackendName: "localgit", Login: "jane"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	user, err := store.Load()
	if err != nil {
		t.Fatalf("Load() after Clear(): %v", err)
	}
	if user != nil {
		t.Fatalf("Load() after Clear() = %+v, want nil", user)
	}
}
