package localgit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/backend"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(config.BackendConfig{LocalRepoPath: t.TempDir()}, WithAuthor("Jane", "jane@example.com"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func persistOne(t *testing.T, b *Backend, path, raw, message string) {
	t.Helper()
	err := b.PersistFiles(context.Background(),
		[]entry.DataFile{{Path: path, Raw: raw}}, nil,
		backend.PersistOptions{CommitMessage: message})
	if err != nil {
		t.Fatalf("PersistFiles(%s) failed: %v", path, err)
	}
}

// TestNew_RequiresPath verifies the configuration check.
func TestNew_RequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := New(config.BackendConfig{}); !errors.Is(err, apperrors.ErrRepoRequired) {
		t.Errorf("expected ErrRepoRequired, got %v", err)
	}
}

// TestPersistAndGetEntry verifies a round-trip with commit metadata.
func TestPersistAndGetEntry(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	persistOne(t, b, "content/posts/hello.md", "---\ntitle: Hello\n---\n", "Create posts hello")

	loaded, err := b.GetEntry(ctx, "content/posts/hello.md")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if loaded.Raw != "---\ntitle: Hello\n---\n" {
		t.Errorf("unexpected raw: %q", loaded.Raw)
	}
	if loaded.Author != "Jane" {
		t.Errorf("expected commit author, got %q", loaded.Author)
	}
	if loaded.UpdatedOn.IsZero() {
		t.Error("expected commit time")
	}

	if _, err := b.GetEntry(ctx, "content/posts/missing.md"); !errors.Is(err, apperrors.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

// TestPersistFiles_Rename verifies the entry's directory moves with it.
func TestPersistFiles_Rename(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	persistOne(t, b, "content/posts/hello/index.md", "one", "Create posts hello")
	err := b.PersistFiles(ctx, nil,
		[]entry.MediaFile{{Path: "content/posts/hello/pic.png", Content: []byte{1, 2}}},
		backend.PersistOptions{CommitMessage: "Upload pic"})
	if err != nil {
		t.Fatalf("PersistFiles media failed: %v", err)
	}

	err = b.PersistFiles(ctx,
		[]entry.DataFile{{
			Path:    "content/posts/hello/index.md",
			NewPath: "content/posts/renamed/index.md",
			Raw:     "two",
		}}, nil,
		backend.PersistOptions{CommitMessage: "Update posts renamed"})
	if err != nil {
		t.Fatalf("PersistFiles rename failed: %v", err)
	}

	if exists, _ := b.FileExists(ctx, "content/posts/hello/index.md"); exists {
		t.Error("old entry path still present")
	}
	loaded, err := b.GetEntry(ctx, "content/posts/renamed/index.md")
	if err != nil {
		t.Fatalf("renamed entry missing: %v", err)
	}
	if loaded.Raw != "two" {
		t.Errorf("edited content lost: %q", loaded.Raw)
	}
	if exists, _ := b.FileExists(ctx, "content/posts/renamed/pic.png"); !exists {
		t.Error("entry asset did not move with the entry")
	}
}

// TestDeleteFiles verifies deletion and the missing-path precondition.
func TestDeleteFiles(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	persistOne(t, b, "content/posts/hello.md", "x", "Create posts hello")

	err := b.DeleteFiles(ctx, []string{"content/posts/hello.md", "content/posts/nope.md"}, "Delete posts hello")
	if !errors.Is(err, apperrors.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	// Nothing was removed by the failed batch.
	if exists, _ := b.FileExists(ctx, "content/posts/hello.md"); !exists {
		t.Fatal("failed delete must not remove files")
	}

	if err := b.DeleteFiles(ctx, []string{"content/posts/hello.md"}, "Delete posts hello"); err != nil {
		t.Fatalf("DeleteFiles failed: %v", err)
	}
	if exists, _ := b.FileExists(ctx, "content/posts/hello.md"); exists {
		t.Error("entry still present after delete")
	}
}

// TestEntriesByFolder_Pagination verifies page windows and traversal.
func TestEntriesByFolder_Pagination(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	files := make([]entry.DataFile, 0, 45)
	for i := range 45 {
		files = append(files, entry.DataFile{
			Path: fmt.Sprintf("content/posts/post-%02d.md", i),
			Raw:  fmt.Sprintf("post %d", i),
		})
	}
	err := b.PersistFiles(ctx, files, nil, backend.PersistOptions{CommitMessage: "Seed"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	loaded, cur, err := b.EntriesByFolder(ctx, "content/posts", "md", 1)
	if err != nil {
		t.Fatalf("EntriesByFolder failed: %v", err)
	}
	if len(loaded) != pageSize {
		t.Fatalf("expected %d entries, got %d", pageSize, len(loaded))
	}
	if meta := cur.Meta(); meta.Count != 45 || meta.PageCount != 3 {
		t.Errorf("unexpected meta: %+v", meta)
	}

	loaded, cur, err = b.TraverseCursor(ctx, cur, cursor.ActionLast)
	if err != nil {
		t.Fatalf("TraverseCursor failed: %v", err)
	}
	if len(loaded) != 5 {
		t.Errorf("expected 5 entries on last page, got %d", len(loaded))
	}
	if cur.HasAction(cursor.ActionNext) {
		t.Errorf("last page should not offer next: %v", cur.Actions())
	}
}

// TestListFiles_DepthAndMissing covers nested entries and absent folders.
func TestListFiles_DepthAndMissing(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	err := b.PersistFiles(ctx, []entry.DataFile{
		{Path: "content/posts/top.md", Raw: "a"},
		{Path: "content/posts/2024/deep.md", Raw: "b"},
	}, nil, backend.PersistOptions{CommitMessage: "Seed"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	shallow, err := b.AllEntriesByFolder(ctx, "content/posts", "md", 1, "")
	if err != nil {
		t.Fatalf("AllEntriesByFolder failed: %v", err)
	}
	if len(shallow) != 1 || shallow[0].Path != "content/posts/top.md" {
		t.Errorf("depth-1 listing wrong: %+v", shallow)
	}

	deep, err := b.AllEntriesByFolder(ctx, "content/posts", "md", 2, "")
	if err != nil {
		t.Fatalf("AllEntriesByFolder failed: %v", err)
	}
	if len(deep) != 2 {
		t.Errorf("depth-2 listing wrong: %+v", deep)
	}

	none, err := b.AllEntriesByFolder(ctx, "does/not/exist", "md", 1, "")
	if err != nil {
		t.Fatalf("missing folder should not error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("missing folder should list empty, got %+v", none)
	}
}

// TestEntriesByFiles skips missing paths silently.
func TestEntriesByFiles(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	persistOne(t, b, "data/settings.yml", "site: x", "Create settings")

	loaded, err := b.EntriesByFiles(ctx, []string{"data/settings.yml", "data/missing.yml"})
	if err != nil {
		t.Fatalf("EntriesByFiles failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Path != "data/settings.yml" {
		t.Errorf("unexpected result: %+v", loaded)
	}
}

// TestGetMedia lists and loads media with stable blob hashes.
func TestGetMedia(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	err := b.PersistFiles(ctx, nil, []entry.MediaFile{
		{Path: "static/img/a.png", Content: []byte("png")},
	}, backend.PersistOptions{CommitMessage: "Upload a.png"})
	if err != nil {
		t.Fatalf("PersistFiles failed: %v", err)
	}

	media, err := b.GetMedia(ctx, "static/img")
	if err != nil {
		t.Fatalf("GetMedia failed: %v", err)
	}
	if len(media) != 1 || media[0].Name != "a.png" || media[0].Size != 3 {
		t.Errorf("unexpected media listing: %+v", media)
	}

	file, err := b.GetMediaFile(ctx, "static/img/a.png")
	if err != nil {
		t.Fatalf("GetMediaFile failed: %v", err)
	}
	if string(file.Content) != "png" || file.ID == "" {
		t.Errorf("unexpected media file: %+v", file)
	}
}

// TestAuthenticate verifies repo config identity wins over defaults.
func TestAuthenticate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	b, err := New(config.BackendConfig{LocalRepoPath: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cfg, err := b.repo.Config()
	if err != nil {
		t.Fatalf("repo config: %v", err)
	}
	cfg.User.Name = "Repo User"
	cfg.User.Email = "repo@example.com"
	if err := b.repo.SetConfig(cfg); err != nil {
		t.Fatalf("set repo config: %v", err)
	}

	user, err := b.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.Login != "Repo User" || user.BackendName != "localgit" {
		t.Errorf("unexpected user: %+v", user)
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Errorf("repository not initialized: %v", err)
	}
}

// TestListBranches lists local branches after the first commit.
func TestListBranches(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	persistOne(t, b, "content/posts/hello.md", "x", "Create posts hello")

	branches, err := b.ListBranches(context.Background())
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if len(branches) != 1 || branches[0].SHA == "" {
		t.Errorf("unexpected branches: %+v", branches)
	}
}

// TestSetBranch verifies switching checks the branch exists, moves the
// working tree and can return to the original branch.
func TestSetBranch(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)
	ctx := context.Background()

	persistOne(t, b, "content/posts/hello.md", "x", "Create posts hello")

	head, err := b.repo.Head()
	if err != nil {
		t.Fatalf("resolve head: %v", err)
	}
	original := head.Name().Short()
	feature := plumbing.NewHashReference(plumbing.NewBranchReferenceName("feature"), head.Hash())
	if err := b.repo.Storer.SetReference(feature); err != nil {
		t.Fatalf("create feature branch: %v", err)
	}

	if err := b.SetBranch(ctx, "nope"); !errors.Is(err, apperrors.ErrBranchNotFound) {
		t.Fatalf("expected ErrBranchNotFound, got %v", err)
	}

	if err := b.SetBranch(ctx, "feature"); err != nil {
		t.Fatalf("SetBranch failed: %v", err)
	}
	persistOne(t, b, "content/posts/feature-only.md", "y", "Create posts feature-only")

	if err := b.SetBranch(ctx, original); err != nil {
		t.Fatalf("SetBranch back failed: %v", err)
	}
	exists, err := b.FileExists(ctx, "content/posts/feature-only.md")
	if err != nil {
		t.Fatalf("FileExists failed: %v", err)
	}
	if exists {
		t.Error("feature-only file should not exist on the original branch")
	}
	exists, err = b.FileExists(ctx, "content/posts/hello.md")
	if err != nil || !exists {
		t.Errorf("original file missing after switching back: %v %v", exists, err)
	}
}
