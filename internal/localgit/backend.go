// Package localgit implements the repository backend against a local git
// working tree. It offers the same contract as the hosted providers, minus
// branch protection and pull requests, and is the natural choice for
// offline editing and tests.
package localgit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/backend"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
)

const (
	providerName = "localgit"

	// pageSize is the page length of paginated folder listings.
	pageSize = 20

	// File and directory permissions.
	dirPerm  = 0750
	filePerm = 0600

	defaultAuthorName  = "gitcms"
	defaultAuthorEmail = "gitcms@localhost"
)

// Backend is the local git provider.
type Backend struct {
	rootPath    string
	repo        *git.Repository
	branch      string
	mu          sync.RWMutex
	user        *backend.User
	authorName  string
	authorEmail string
	logger      *slog.Logger
}

// Option configures the backend.
type Option func(*Backend)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// WithAuthor sets the commit author identity.
func WithAuthor(name, email string) Option {
	return func(b *Backend) {
		b.authorName = name
		b.authorEmail = email
	}
}

// New opens (or initializes) the working tree at cfg.LocalRepoPath.
func New(cfg config.BackendConfig, opts ...Option) (*Backend, error) {
	if cfg.LocalRepoPath == "" {
		return nil, apperrors.ErrRepoRequired
	}

	b := &Backend{
		rootPath:    cfg.LocalRepoPath,
		branch:      cfg.Branch,
		authorName:  defaultAuthorName,
		authorEmail: defaultAuthorEmail,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	repo, err := openOrInit(cfg.LocalRepoPath)
	if err != nil {
		return nil, err
	}
	b.repo = repo

	if err := b.checkoutBranch(); err != nil {
		return nil, err
	}
	return b, nil
}

func openOrInit(root string) (*git.Repository, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	repo, err := git.PlainOpen(root)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open git repo: %w", err)
	}

	repo, err = git.PlainInit(root, false)
	if err != nil {
		return nil, fmt.Errorf("init git repo: %w", err)
	}
	return repo, nil
}

// checkoutBranch switches to the configured branch when it exists. A fresh
// repository stays on its initial branch until the first commit.
func (b *Backend) checkoutBranch() error {
	if b.branch == "" {
		return nil
	}
	ref := plumbing.NewBranchReferenceName(b.branch)
	if _, err := b.repo.Reference(ref, true); err != nil {
		return nil
	}
	worktree, err := b.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
		return fmt.Errorf("checkout %s: %w", b.branch, err)
	}
	return nil
}

// Name returns the provider identifier.
func (b *Backend) Name() string {
	return providerName
}

// SetBranch checks out another local branch. The branch must already exist;
// a failed checkout leaves the backend on its current branch.
func (b *Backend) SetBranch(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref := plumbing.NewBranchReferenceName(name)
	if _, err := b.repo.Reference(ref, true); err != nil {
		return fmt.Errorf("switch branch %s: %w", name, apperrors.ErrBranchNotFound)
	}
	worktree, err := b.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
		return fmt.Errorf("checkout %s: %w", name, err)
	}

	b.branch = name
	b.logger.InfoContext(ctx, "switched branch", "branch", name)
	return nil
}

// Authenticate resolves the committer identity from the repository config.
// A working tree the process can open is always writable.
func (b *Backend) Authenticate(ctx context.Context) (*backend.User, error) {
	name := b.authorName
	if cfg, err := b.repo.Config(); err == nil && cfg.User.Name != "" {
		name = cfg.User.Name
		b.authorName = cfg.User.Name
		if cfg.User.Email != "" {
			b.authorEmail = cfg.User.Email
		}
	}

	b.user = &backend.User{BackendName: providerName, Login: name, Name: name}
	b.logger.InfoContext(ctx, "authenticated", "login", name, "path", b.rootPath)
	return b.user, nil
}

// CurrentUser returns the authenticated user.
func (b *Backend) CurrentUser() (*backend.User, error) {
	if b.user == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return b.user, nil
}

// Status reports local health; a reachable working tree is always healthy.
func (b *Backend) Status(_ context.Context) (backend.Status, error) {
	return backend.Status{AuthOK: true, APIOK: true}, nil
}

// listingKey is the cursor data field carrying the snapshot of listed
// files across traversals.
const listingKey = "files"

// EntriesByFolder lists a folder once and returns its first page plus a
// cursor over the remaining pages. The cursor carries the full listing, so
// traversing it pages through a consistent snapshot.
func (b *Backend) EntriesByFolder(ctx context.Context, folder, extension string, depth int) ([]entry.Loaded, cursor.Cursor, error) {
	files, err := b.listFiles(ctx, folder, depth, extension)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	return b.listPage(ctx, files, 1)
}

// TraverseCursor loads the page reached by applying action to a cursor
// previously returned by EntriesByFolder.
func (b *Backend) TraverseCursor(ctx context.Context, c cursor.Cursor, action cursor.Action) ([]entry.Loaded, cursor.Cursor, error) {
	if !c.HasAction(action) {
		return nil, cursor.Cursor{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownCursorAction, action)
	}

	files, _ := c.Data()[listingKey].([]string)
	meta := c.Meta()

	var page int
	switch action {
	case cursor.ActionFirst:
		page = 1
	case cursor.ActionPrev:
		page = meta.Page - 1
	case cursor.ActionNext:
		page = meta.Page + 1
	case cursor.ActionLast:
		page = meta.PageCount
	default:
		return nil, cursor.Cursor{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownCursorAction, action)
	}
	if page < 1 {
		page = 1
	}
	return b.listPage(ctx, files, page)
}

func (b *Backend) listPage(ctx context.Context, files []string, page int) ([]entry.Loaded, cursor.Cursor, error) {
	count := len(files)
	pageCount := (count + pageSize - 1) / pageSize
	if page > pageCount && pageCount > 0 {
		page = pageCount
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, count)
	var window []string
	if start < count {
		window = files[start:end]
	}

	loaded, err := b.readAll(ctx, window)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}

	var actions []cursor.Action
	if page > 1 {
		actions = append(actions, cursor.ActionFirst, cursor.ActionPrev)
	}
	if page < pageCount {
		actions = append(actions, cursor.ActionNext, cursor.ActionLast)
	}
	cur := cursor.Create(&cursor.Store{
		Actions: actions,
		Meta:    cursor.Meta{Page: page, Count: count, PageSize: pageSize, PageCount: pageCount},
		Data:    cursor.Data{listingKey: files},
	})
	return loaded, cur, nil
}

// AllEntriesByFolder returns every entry file under folder, optionally
// filtered by a path pattern.
func (b *Backend) AllEntriesByFolder(ctx context.Context, folder, extension string, depth int, pathRegex string) ([]entry.Loaded, error) {
	files, err := b.listFiles(ctx, folder, depth, extension)
	if err != nil {
		return nil, err
	}
	if pathRegex != "" {
		re, err := regexp.Compile(pathRegex)
		if err != nil {
			return nil, fmt.Errorf("compile path filter: %w", err)
		}
		kept := files[:0]
		for _, f := range files {
			if re.MatchString(f) {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	return b.readAll(ctx, files)
}

// EntriesByFiles loads a fixed list of paths, skipping missing ones.
func (b *Backend) EntriesByFiles(ctx context.Context, paths []string) ([]entry.Loaded, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	loaded := make([]entry.Loaded, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(filepath.Join(b.rootPath, filepath.FromSlash(p))) //nolint:gosec // path is application controlled
		if os.IsNotExist(err) {
			b.logger.DebugContext(ctx, "file missing, skipping", "path", p)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		loaded = append(loaded, entry.Loaded{Path: p, Raw: string(raw)})
	}
	return loaded, nil
}

// GetEntry loads one file with its commit metadata.
func (b *Backend) GetEntry(ctx context.Context, filePath string) (*entry.Loaded, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	raw, err := os.ReadFile(filepath.Join(b.rootPath, filepath.FromSlash(filePath))) //nolint:gosec // path is application controlled
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", filePath, apperrors.ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}

	loaded := &entry.Loaded{Path: filePath, Raw: string(raw)}
	if author, when, ok := b.lastCommitFor(ctx, filePath); ok {
		loaded.Author = author
		loaded.UpdatedOn = when
	}
	return loaded, nil
}

// FileExists reports whether a path exists in the working tree.
func (b *Backend) FileExists(_ context.Context, filePath string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, err := os.Stat(filepath.Join(b.rootPath, filepath.FromSlash(filePath)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// PersistFiles writes data files and media, then records one commit. A data
// file carrying a NewPath moves its whole source directory first, keeping
// entry-relative assets attached.
func (b *Backend) PersistFiles(ctx context.Context, dataFiles []entry.DataFile, mediaFiles []entry.MediaFile, opts backend.PersistOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range dataFiles {
		if f.NewPath != "" && f.NewPath != f.Path {
			if err := b.moveEntry(ctx, f.Path, f.NewPath); err != nil {
				return err
			}
			f.Path = f.NewPath
		}
		if err := b.writeFile(f.Path, []byte(f.Raw)); err != nil {
			return err
		}
	}
	for _, m := range mediaFiles {
		if err := b.writeFile(m.Path, m.Content); err != nil {
			return err
		}
	}

	return b.commitAll(ctx, opts.CommitMessage)
}

// DeleteFiles removes paths and records one commit. A missing path is
// reported as ErrEntryNotFound before anything is touched.
func (b *Backend) DeleteFiles(ctx context.Context, paths []string, commitMessage string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(b.rootPath, filepath.FromSlash(p))); os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", p, apperrors.ErrEntryNotFound)
		}
	}
	for _, p := range paths {
		if err := os.Remove(filepath.Join(b.rootPath, filepath.FromSlash(p))); err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}

	return b.commitAll(ctx, commitMessage)
}

// GetMedia lists media files under folder.
func (b *Backend) GetMedia(_ context.Context, folder string) ([]entry.MediaFile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(b.rootPath, filepath.FromSlash(folder)))
	if os.IsNotExist(err) {
		return []entry.MediaFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", folder, err)
	}

	media := make([]entry.MediaFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		media = append(media, entry.MediaFile{
			Path: path.Join(folder, e.Name()),
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	return media, nil
}

// GetMediaFile loads one media file with content. The ID is the git blob
// hash of the content, matching what hosted providers report.
func (b *Backend) GetMediaFile(_ context.Context, filePath string) (*entry.MediaFile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fullPath := filepath.Join(b.rootPath, filepath.FromSlash(filePath))
	raw, err := os.ReadFile(fullPath) //nolint:gosec // path is application controlled
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", filePath, apperrors.ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}

	return &entry.MediaFile{
		ID:         plumbing.ComputeHash(plumbing.BlobObject, raw).String(),
		Path:       filePath,
		Name:       path.Base(filePath),
		Size:       int64(len(raw)),
		URL:        "file://" + fullPath,
		DisplayURL: "file://" + fullPath,
		Content:    raw,
	}, nil
}

// ListBranches returns the local branches.
func (b *Backend) ListBranches(_ context.Context) ([]backend.Branch, error) {
	iter, err := b.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()

	var branches []backend.Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, backend.Branch{
			Name: ref.Name().Short(),
			SHA:  ref.Hash().String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// listFiles walks folder up to depth path segments below it, returning
// sorted repo-relative slash paths.
func (b *Backend) listFiles(ctx context.Context, folder string, depth int, extension string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	root := filepath.Join(b.rootPath, filepath.FromSlash(folder))
	var suffix string
	if extension != "" {
		suffix = "." + strings.TrimPrefix(extension, ".")
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if d.Name() == git.GitDirName {
				return filepath.SkipDir
			}
			if rel != "." && strings.Count(rel, "/")+1 > depth {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Count(rel, "/") >= depth {
			return nil
		}
		if suffix != "" && !strings.HasSuffix(rel, suffix) {
			return nil
		}
		files = append(files, path.Join(folder, rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", folder, err)
	}

	sort.Strings(files)
	b.logger.DebugContext(ctx, "listed folder", "folder", folder, "count", len(files))
	return files, nil
}

func (b *Backend) readAll(ctx context.Context, paths []string) ([]entry.Loaded, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	loaded := make([]entry.Loaded, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(filepath.Join(b.rootPath, filepath.FromSlash(p))) //nolint:gosec // path is application controlled
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		l := entry.Loaded{Path: p, Raw: string(raw)}
		if author, when, ok := b.lastCommitFor(ctx, p); ok {
			l.Author = author
			l.UpdatedOn = when
		}
		loaded = append(loaded, l)
	}
	return loaded, nil
}

// lastCommitFor returns the author and time of the newest commit touching a
// path. Uncommitted files report nothing.
func (b *Backend) lastCommitFor(ctx context.Context, filePath string) (string, time.Time, bool) {
	iter, err := b.repo.Log(&git.LogOptions{
		FileName: &filePath,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		return "", time.Time{}, false
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		return "", time.Time{}, false
	}
	b.logger.DebugContext(ctx, "resolved file metadata", "path", filePath, "commit", commit.Hash.String())
	return commit.Author.Name, commit.Author.When, true
}

// moveEntry renames an entry file, moving the whole source directory when
// the target lives elsewhere so entry-relative assets follow.
func (b *Backend) moveEntry(ctx context.Context, oldPath, newPath string) error {
	oldDir := path.Dir(oldPath)
	newDir := path.Dir(newPath)

	if oldDir != newDir {
		oldFull := filepath.Join(b.rootPath, filepath.FromSlash(oldDir))
		newFull := filepath.Join(b.rootPath, filepath.FromSlash(newDir))
		if _, err := os.Stat(oldFull); err == nil {
			if err := os.MkdirAll(filepath.Dir(newFull), dirPerm); err != nil {
				return fmt.Errorf("create parent dir: %w", err)
			}
			if err := os.Rename(oldFull, newFull); err != nil {
				return fmt.Errorf("move %s to %s: %w", oldDir, newDir, err)
			}
			b.logger.DebugContext(ctx, "moved entry directory", "from", oldDir, "to", newDir)
		}
		oldPath = path.Join(newDir, path.Base(oldPath))
	}

	oldFull := filepath.Join(b.rootPath, filepath.FromSlash(oldPath))
	newFull := filepath.Join(b.rootPath, filepath.FromSlash(newPath))
	if _, err := os.Stat(oldFull); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return fmt.Errorf("rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

func (b *Backend) writeFile(filePath string, content []byte) error {
	fullPath := filepath.Join(b.rootPath, filepath.FromSlash(filePath))
	if err := os.MkdirAll(filepath.Dir(fullPath), dirPerm); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(fullPath, content, filePerm); err != nil {
		return fmt.Errorf("write file %s: %w", filePath, err)
	}
	return nil
}

// commitAll stages everything and commits. A no-op change set is fine.
func (b *Backend) commitAll(ctx context.Context, message string) error {
	worktree, err := b.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("git add: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	hasChanges := false
	for _, s := range status {
		if s.Staging != git.Unmodified {
			hasChanges = true
			break
		}
	}
	if !hasChanges {
		b.logger.DebugContext(ctx, "nothing to commit")
		return nil
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  b.authorName,
			Email: b.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.logger.InfoContext(ctx, "committed", "sha", hash.String(), "message", message)
	return nil
}
