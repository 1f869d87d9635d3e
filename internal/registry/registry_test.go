package registry

import (
	"os"
	"path/filepath"
	"testing"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "registry"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)

	rec, err := r.Register("auth-flow", "/work/auth")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := r.Get("auth-flow")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Feature != "auth-flow" {
		t.Errorf("Feature = %q, want %q", got.Feature, "auth-flow")
	}
	if got.Worktree != "/work/auth" {
		t.Errorf("Worktree = %q, want %q", got.Worktree, "/work/auth")
	}
}

func TestGetMissingFeature(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get("nope")
	if !overseererrors.IsNotFound(err) {
		t.Errorf("Get() error = %v, want not found", err)
	}
}

func TestExists(t *testing.T) {
	r := newTestRegistry(t)

	if r.Exists("auth-flow") {
		t.Error("Exists() = true before registration")
	}
	if _, err := r.Register("auth-flow", "/work/auth"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !r.Exists("auth-flow") {
		t.Error("Exists() = false after registration")
	}
}

func TestRegisterRejectsUnsafeFeatureNames(t *testing.T) {
	r := newTestRegistry(t)
	escapeTarget := filepath.Join(filepath.Dir(r.Dir()), "escape.json")

	for _, name := range []string{"", "..", "../escape", "a/b", ".hidden", "-flag"} {
		_, err := r.Register(name, "/work/x")
		if err == nil {
			t.Errorf("Register(%q) should fail", name)
			continue
		}
		if !overseererrors.Is(err, overseererrors.ErrInvalidFeature) {
			t.Errorf("Register(%q) error = %v, should wrap ErrInvalidFeature", name, err)
		}
	}

	if _, err := os.Stat(escapeTarget); !os.IsNotExist(err) {
		t.Errorf("registry wrote outside its directory: %s", escapeTarget)
	}

	if _, err := r.Get("../escape"); !overseererrors.IsNotFound(err) {
		t.Errorf("Get on unsafe name should report not found, got %v", err)
	}
	if r.Exists("../escape") {
		t.Error("Exists on unsafe name should be false")
	}
	if err := r.Delete("../escape"); !overseererrors.IsNotFound(err) {
		t.Errorf("Delete on unsafe name should report not found, got %v", err)
	}
}

func TestListSkipsCorruptEntries(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Register("auth-flow", "/work/auth"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := r.Register("billing", "/work/billing"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Hand-write a corrupt entry alongside the good ones.
	corrupt := filepath.Join(r.Dir(), "broken.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt entry: %v", err)
	}

	records, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].Feature != "auth-flow" || records[1].Feature != "billing" {
		t.Errorf("List() = [%s, %s], want sorted [auth-flow, billing]",
			records[0].Feature, records[1].Feature)
	}
}

func TestListEmptyRegistry(t *testing.T) {
	r := newTestRegistry(t)

	records, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List() = %v, want empty", records)
	}
}

func TestDelete(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Register("auth-flow", "/work/auth"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Delete("auth-flow"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	records, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List() after delete = %v, want empty", records)
	}
}

func TestDeleteMissingFeature(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Delete("nope")
	if !overseererrors.IsNotFound(err) {
		t.Errorf("Delete() error = %v, want not found", err)
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Register("auth-flow", "/work/old"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := r.Register("auth-flow", "/work/new"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Get("auth-flow")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Worktree != "/work/new" {
		t.Errorf("Worktree = %q, want %q", got.Worktree, "/work/new")
	}

	records, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("List() returned %d records, want 1", len(records))
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Register("auth-flow", "/work/auth"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	entries, err := os.ReadDir(r.Dir())
	if err != nil {
		t.Fatalf("failed to read registry dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "auth-flow.json" {
			t.Errorf("unexpected file in registry dir: %s", entry.Name())
		}
	}
}
