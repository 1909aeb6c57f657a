// Package backend provides the provider-agnostic facade over repository
// backends: entry listing and persistence, slug generation, draft backups,
// media handling and health checks. Providers plug in through the Provider
// interface and optional capability interfaces.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/statichq/gitcms/internal/alock"
	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/backup"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/entry"
	"github.com/statichq/gitcms/internal/slugutil"
)

const (
	// statusAttempts is how often a health check is retried before the
	// last error is reported.
	statusAttempts = 3
	// statusBackoffStep grows the wait linearly between attempts.
	statusBackoffStep = time.Second
)

// SaveHook runs around entry persistence. Pre-save hooks may mutate the
// entry before it is serialized.
type SaveHook func(ctx context.Context, e *entry.Entry) error

// Backend is the facade the application works against.
type Backend struct {
	cfg       *config.Config
	provider  Provider
	backups   *backup.Store
	authStore AuthStore

	// backupLock serializes backup writes so rapid draft snapshots cannot
	// interleave.
	backupLock *alock.Lock

	mu        sync.Mutex
	user      *User
	usedSlugs map[string]struct{}

	preSaveHooks  []SaveHook
	postSaveHooks []SaveHook

	logger *slog.Logger
}

// Option configures the backend.
type Option func(*Backend)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// WithBackupStore attaches the local draft backup store.
func WithBackupStore(store *backup.Store) Option {
	return func(b *Backend) {
		b.backups = store
	}
}

// WithAuthStore attaches a store that persists the authenticated user
// between sessions.
func WithAuthStore(store AuthStore) Option {
	return func(b *Backend) {
		b.authStore = store
	}
}

// New creates a backend facade over a provider.
func New(cfg *config.Config, provider Provider, opts ...Option) *Backend {
	b := &Backend{
		cfg:        cfg,
		provider:   provider,
		backupLock: alock.New(),
		usedSlugs:  map[string]struct{}{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init runs the startup housekeeping: the persisted user from a previous
// session is restored, and stale anonymous draft backups from interrupted
// sessions are discarded.
func (b *Backend) Init(ctx context.Context) error {
	if b.authStore != nil {
		user, err := b.authStore.Load()
		if err != nil {
			b.logger.WarnContext(ctx, "restore stored user", "error", err)
		} else if user != nil && user.BackendName == b.provider.Name() {
			b.mu.Lock()
			b.user = user
			b.mu.Unlock()
		}
	}

	if b.backups == nil {
		return nil
	}
	return alock.Run(ctx, b.backupLock, func() error {
		return b.backups.DeleteBackup(ctx, backup.AnonymousKey)
	})
}

// Provider returns the underlying provider.
func (b *Backend) Provider() Provider {
	return b.provider
}

// Config returns the configuration the backend was built with.
func (b *Backend) Config() *config.Config {
	return b.cfg
}

// Authenticate verifies credentials with the provider and caches the user.
func (b *Backend) Authenticate(ctx context.Context) (*User, error) {
	user, err := b.provider.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.user = user
	b.mu.Unlock()

	if b.authStore != nil {
		if err := b.authStore.Save(user); err != nil {
			b.logger.WarnContext(ctx, "persist stored user", "error", err)
		}
	}
	return user, nil
}

// Logout drops the cached user and clears the persisted credentials.
func (b *Backend) Logout() error {
	b.mu.Lock()
	b.user = nil
	b.mu.Unlock()

	if b.authStore == nil {
		return nil
	}
	return b.authStore.Clear()
}

// CurrentUser returns the authenticated user.
func (b *Backend) CurrentUser() (*User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.user == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return b.user, nil
}

// Status reports provider health, retrying transient failures with a
// linearly growing backoff.
func (b *Backend) Status(ctx context.Context) (Status, error) {
	var lastErr error
	for attempt := 1; attempt <= statusAttempts; attempt++ {
		status, err := b.provider.Status(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		b.logger.WarnContext(ctx, "status check failed", "attempt", attempt, "error", err)

		if attempt == statusAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * statusBackoffStep):
		}
	}
	return Status{}, fmt.Errorf("status check: %w", lastErr)
}

// OnPreSave registers a hook that runs before an entry is serialized.
func (b *Backend) OnPreSave(h SaveHook) {
	b.preSaveHooks = append(b.preSaveHooks, h)
}

// OnPostSave registers a hook that runs after an entry is persisted.
func (b *Backend) OnPostSave(h SaveHook) {
	b.postSaveHooks = append(b.postSaveHooks, h)
}

func (b *Backend) runHooks(ctx context.Context, hooks []SaveHook, e *entry.Entry) error {
	for _, h := range hooks {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// GetMedia lists the media files of a folder, defaulting to the global
// media folder.
func (b *Backend) GetMedia(ctx context.Context, folder string) ([]entry.MediaFile, error) {
	if folder == "" {
		folder = b.cfg.MediaFolder
	}
	return b.provider.GetMedia(ctx, folder)
}

// GetMediaFile loads one media file with content.
func (b *Backend) GetMediaFile(ctx context.Context, path string) (*entry.MediaFile, error) {
	return b.provider.GetMediaFile(ctx, path)
}

// GetMediaDisplayURLs fills display URLs (and contents) for listed media
// when the provider supports bulk loading; otherwise the listing is
// returned unchanged.
func (b *Backend) GetMediaDisplayURLs(ctx context.Context, files []entry.MediaFile) ([]entry.MediaFile, error) {
	loader, ok := b.provider.(MediaLoader)
	if !ok {
		return files, nil
	}
	return loader.LoadMediaContents(ctx, files)
}

// PersistMedia uploads one media file in its own commit.
func (b *Backend) PersistMedia(ctx context.Context, file entry.MediaFile) error {
	vars := b.commitVars()
	vars.Path = file.Path
	message := slugutil.CommitMessage("uploadMedia", vars)
	return b.provider.PersistFiles(ctx, nil, []entry.MediaFile{file}, PersistOptions{CommitMessage: message})
}

// DeleteMedia removes one media file in its own commit.
func (b *Backend) DeleteMedia(ctx context.Context, path string) error {
	vars := b.commitVars()
	vars.Path = path
	message := slugutil.CommitMessage("deleteMedia", vars)
	return b.provider.DeleteFiles(ctx, []string{path}, message)
}

// commitVars seeds commit message templating with the authenticated user.
func (b *Backend) commitVars() slugutil.CommitVars {
	b.mu.Lock()
	defer b.mu.Unlock()
	vars := slugutil.CommitVars{}
	if b.user != nil {
		vars.AuthorLogin = b.user.Login
		vars.AuthorName = b.user.Name
	}
	return vars
}

// ListBranches enumerates branches when the provider supports it.
func (b *Backend) ListBranches(ctx context.Context) ([]Branch, error) {
	lister, ok := b.provider.(BranchLister)
	if !ok {
		return nil, fmt.Errorf("branches: %w", apperrors.ErrCapabilityNotSupported)
	}
	return lister.ListBranches(ctx)
}

// ListPulls enumerates open pull requests when the provider supports it.
func (b *Backend) ListPulls(ctx context.Context) ([]Pull, error) {
	lister, ok := b.provider.(PullLister)
	if !ok {
		return nil, fmt.Errorf("pull requests: %w", apperrors.ErrCapabilityNotSupported)
	}
	return lister.ListPulls(ctx)
}

// SetBranch retargets subsequent operations to another branch when the
// provider supports switching.
func (b *Backend) SetBranch(ctx context.Context, name string) error {
	switcher, ok := b.provider.(BranchSwitcher)
	if !ok {
		return fmt.Errorf("switch branch: %w", apperrors.ErrCapabilityNotSupported)
	}
	return switcher.SetBranch(ctx, name)
}
