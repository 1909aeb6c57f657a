package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
)

func testTime() time.Time {
	return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
}

func newTestBackend(t *testing.T, handler http.Handler, opts ...ClientOption) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.BackendConfig{Repo: "owner/repo", Branch: "main", APIRoot: server.URL}
	b, err := New(cfg, "secret", opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

// TestNew_Validation covers the required configuration checks.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(config.BackendConfig{Branch: "main"}, "secret", nil); !errors.Is(err, apperrors.ErrRepoRequired) {
		t.Errorf("missing repo: got %v", err)
	}
	if _, err := New(config.BackendConfig{Repo: "o/r"}, "", nil); !errors.Is(err, apperrors.ErrTokenRequired) {
		t.Errorf("missing token: got %v", err)
	}
}

// TestAuthenticate_NoWriteAccess verifies collaborators without push rights
// are rejected with a descriptive error.
func TestAuthenticate_NoWriteAccess(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			writeJSON(t, w, http.StatusOK, userResponse{Login: "jane", Name: "Jane"})
		case "/repos/owner/repo":
			writeJSON(t, w, http.StatusOK, repoResponse{FullName: "owner/repo"})
		default:
			writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		}
	}))

	_, err := b.Authenticate(context.Background())
	if !errors.Is(err, apperrors.ErrNoWriteAccess) {
		t.Fatalf("expected ErrNoWriteAccess, got %v", err)
	}
	if !strings.Contains(err.Error(), "jane") {
		t.Errorf("error should name the login: %v", err)
	}

	if _, err := b.CurrentUser(); !errors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Errorf("CurrentUser after failed auth: got %v", err)
	}
}

// TestAuthenticate verifies the happy path caches the user.
func TestAuthenticate(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			writeJSON(t, w, http.StatusOK, userResponse{Login: "jane", Name: "Jane"})
		case "/repos/owner/repo":
			repo := repoResponse{FullName: "owner/repo"}
			repo.Permissions.Push = true
			writeJSON(t, w, http.StatusOK, repo)
		default:
			writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		}
	}))

	user, err := b.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.Login != "jane" || user.BackendName != "github" {
		t.Errorf("unexpected user: %+v", user)
	}
	if current, err := b.CurrentUser(); err != nil || current.Login != "jane" {
		t.Errorf("CurrentUser = %+v, %v", current, err)
	}
}

// listingHandler serves a folder of n entry files plus blob and commit
// endpoints, enough for the pagination flow.
func listingHandler(t *testing.T, n int) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/git/trees/main:content/posts"):
			items := make([]treeItem, 0, n)
			for i := range n {
				items = append(items, treeItem{
					Path: fmt.Sprintf("post-%02d.md", i),
					Type: "blob",
					SHA:  fmt.Sprintf("sha-%02d", i),
					Size: 10,
				})
			}
			writeJSON(t, w, http.StatusOK, treeResponse{SHA: "t", Tree: items})

		case strings.Contains(r.URL.Path, "/git/blobs/"):
			sha := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			writeJSON(t, w, http.StatusOK, blobResponse{
				SHA:      sha,
				Content:  base64.StdEncoding.EncodeToString([]byte("content of " + sha)),
				Encoding: "base64",
			})

		case strings.HasSuffix(r.URL.Path, "/commits"):
			writeJSON(t, w, http.StatusOK, []repoCommitResponse{})

		default:
			writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		}
	})
}

// TestEntriesByFolder_Pagination verifies page windows, cursor metadata and
// traversal actions over a 45-file folder.
func TestEntriesByFolder_Pagination(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, listingHandler(t, 45))
	ctx := context.Background()

	loaded, cur, err := b.EntriesByFolder(ctx, "content/posts", "md", 1)
	if err != nil {
		t.Fatalf("EntriesByFolder failed: %v", err)
	}
	if len(loaded) != pageSize {
		t.Fatalf("expected %d entries, got %d", pageSize, len(loaded))
	}
	if loaded[0].Path != "content/posts/post-00.md" {
		t.Errorf("unexpected first entry %s", loaded[0].Path)
	}
	meta := cur.Meta()
	if meta.Page != 1 || meta.Count != 45 || meta.PageCount != 3 {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if cur.HasAction(cursor.ActionPrev) || !cur.HasAction(cursor.ActionNext) {
		t.Errorf("unexpected first-page actions: %v", cur.Actions())
	}

	loaded, cur, err = b.TraverseCursor(ctx, cur, cursor.ActionNext)
	if err != nil {
		t.Fatalf("TraverseCursor next failed: %v", err)
	}
	if loaded[0].Path != "content/posts/post-20.md" {
		t.Errorf("unexpected second page start %s", loaded[0].Path)
	}
	if !cur.HasAction(cursor.ActionPrev) || !cur.HasAction(cursor.ActionNext) {
		t.Errorf("unexpected middle-page actions: %v", cur.Actions())
	}

	loaded, cur, err = b.TraverseCursor(ctx, cur, cursor.ActionLast)
	if err != nil {
		t.Fatalf("TraverseCursor last failed: %v", err)
	}
	if len(loaded) != 5 {
		t.Errorf("expected 5 entries on last page, got %d", len(loaded))
	}
	if cur.HasAction(cursor.ActionNext) {
		t.Errorf("last page should not offer next: %v", cur.Actions())
	}

	if _, _, err := b.TraverseCursor(ctx, cur, cursor.ActionNext); !errors.Is(err, apperrors.ErrUnknownCursorAction) {
		t.Errorf("expected ErrUnknownCursorAction, got %v", err)
	}
}

// TestTraverseCursor_UsesStoredListing verifies traversal pages through the
// listing captured at EntriesByFolder time instead of re-listing the tree.
func TestTraverseCursor_UsesStoredListing(t *testing.T) {
	t.Parallel()
	var treeCalls int
	inner := listingHandler(t, 45)
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/git/trees/") {
			treeCalls++
		}
		inner.ServeHTTP(w, r)
	}))
	ctx := context.Background()

	_, cur, err := b.EntriesByFolder(ctx, "content/posts", "md", 1)
	if err != nil {
		t.Fatalf("EntriesByFolder failed: %v", err)
	}
	if treeCalls != 1 {
		t.Fatalf("expected 1 tree listing, got %d", treeCalls)
	}

	loaded, _, err := b.TraverseCursor(ctx, cur, cursor.ActionNext)
	if err != nil {
		t.Fatalf("TraverseCursor failed: %v", err)
	}
	if loaded[0].Path != "content/posts/post-20.md" {
		t.Errorf("unexpected second page start %s", loaded[0].Path)
	}
	if treeCalls != 1 {
		t.Errorf("traversal should reuse the stored listing, got %d tree listings", treeCalls)
	}
}

// TestSetBranch verifies the branch is verified remotely, swapped on
// success and left untouched on failure.
func TestSetBranch(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/owner/repo/branches/develop":
			writeJSON(t, w, http.StatusOK, branchResponse{Name: "develop"})
		case strings.Contains(r.URL.Path, "/git/trees/develop:content/posts"):
			writeJSON(t, w, http.StatusOK, treeResponse{SHA: "t", Tree: []treeItem{
				{Path: "only-on-develop.md", Type: "blob", SHA: "s", Size: 3},
			}})
		case strings.Contains(r.URL.Path, "/git/blobs/"):
			writeJSON(t, w, http.StatusOK, blobResponse{
				SHA:      "s",
				Content:  base64.StdEncoding.EncodeToString([]byte("dev")),
				Encoding: "base64",
			})
		case strings.HasSuffix(r.URL.Path, "/commits"):
			writeJSON(t, w, http.StatusOK, []repoCommitResponse{})
		default:
			writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		}
	}))
	ctx := context.Background()

	if err := b.SetBranch(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown branch")
	}
	if got := b.api().branch; got != "main" {
		t.Fatalf("failed switch must keep the branch, got %q", got)
	}

	if err := b.SetBranch(ctx, "develop"); err != nil {
		t.Fatalf("SetBranch failed: %v", err)
	}
	loaded, _, err := b.EntriesByFolder(ctx, "content/posts", "md", 1)
	if err != nil {
		t.Fatalf("EntriesByFolder after switch failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Path != "content/posts/only-on-develop.md" {
		t.Errorf("listing should come from the new branch: %+v", loaded)
	}
}

// TestAllEntriesByFolder_PathRegex verifies the complete listing honors the
// path filter.
func TestAllEntriesByFolder_PathRegex(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, listingHandler(t, 12))

	loaded, err := b.AllEntriesByFolder(context.Background(), "content/posts", "md", 1, `post-0\d\.md$`)
	if err != nil {
		t.Fatalf("AllEntriesByFolder failed: %v", err)
	}
	if len(loaded) != 10 {
		t.Errorf("expected 10 filtered entries, got %d", len(loaded))
	}
}

// TestGetEntry_NotFound verifies 404 maps to the entry sentinel.
func TestGetEntry_NotFound(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}))

	_, err := b.GetEntry(context.Background(), "content/posts/missing.md")
	if !errors.Is(err, apperrors.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}

	exists, err := b.FileExists(context.Background(), "content/posts/missing.md")
	if err != nil || exists {
		t.Errorf("FileExists = %v, %v", exists, err)
	}
}

// TestStatus_Degraded verifies degraded status page components are reported.
func TestStatus_Degraded(t *testing.T) {
	t.Parallel()
	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"components":[
			{"name":"API Requests","status":"degraded_performance"},
			{"name":"Issues, Pull Requests, Projects","status":"operational"},
			{"name":"Webhooks","status":"major_outage"}
		]}`)
	}))
	t.Cleanup(statusServer.Close)

	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user" {
			writeJSON(t, w, http.StatusOK, userResponse{Login: "jane"})
			return
		}
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}), WithStatusURL(statusServer.URL))

	status, err := b.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.AuthOK {
		t.Error("auth should be OK")
	}
	if status.APIOK {
		t.Error("API should be degraded")
	}
	// Webhooks outages do not affect content operations.
	if len(status.Incidents) != 1 || status.Incidents[0] != "API Requests" {
		t.Errorf("unexpected incidents: %v", status.Incidents)
	}
}

// TestStatus_BadToken verifies 401 flips the auth flag instead of failing.
func TestStatus_BadToken(t *testing.T) {
	t.Parallel()
	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"components":[]}`)
	}))
	t.Cleanup(statusServer.Close)

	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	}), WithStatusURL(statusServer.URL))

	status, err := b.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.AuthOK {
		t.Error("auth should be flagged")
	}
	if !status.APIOK {
		t.Error("API should be OK")
	}
}

// TestLoadMediaContents verifies blob contents and display URLs are filled.
func TestLoadMediaContents(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/git/blobs/") {
			writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(t, w, http.StatusOK, blobResponse{
			Content:  base64.StdEncoding.EncodeToString([]byte("png-bytes")),
			Encoding: "base64",
		})
	}))

	files := []entry.MediaFile{
		{ID: "sha1", Path: "static/img/a.png", Name: "a.png"},
		{ID: "sha2", Path: "static/img/b.jpg", Name: "b.jpg"},
	}
	out, err := b.LoadMediaContents(context.Background(), files)
	if err != nil {
		t.Fatalf("LoadMediaContents failed: %v", err)
	}
	if string(out[0].Content) != "png-bytes" {
		t.Errorf("content not loaded: %q", out[0].Content)
	}
	if !strings.HasPrefix(out[0].DisplayURL, "data:image/png;base64,") {
		t.Errorf("unexpected display URL: %s", out[0].DisplayURL)
	}
	if !strings.HasPrefix(out[1].DisplayURL, "data:image/jpeg;base64,") {
		t.Errorf("unexpected display URL: %s", out[1].DisplayURL)
	}
	// Input slice must stay untouched.
	if files[0].Content != nil {
		t.Error("input slice mutated")
	}
}
