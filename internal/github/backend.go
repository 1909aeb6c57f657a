package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/backend"
	"github.com/statichq/gitcms/internal/backup"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
)

const (
	// pageSize is the page length of paginated folder listings.
	pageSize = 20

	// mediaConcurrency bounds parallel media blob downloads.
	mediaConcurrency = 10

	// readConcurrency bounds parallel file reads when loading a listing.
	readConcurrency = 10
)

// Components of the GitHub status page that affect content operations.
var watchedStatusComponents = map[string]struct{}{
	"API Requests":                    {},
	"Issues, Pull Requests, Projects": {},
}

// Backend is the GitHub provider.
type Backend struct {
	// clientMu guards the client snapshot; SetBranch swaps it while
	// in-flight operations keep the snapshot they started with.
	clientMu sync.RWMutex
	client   *Client

	user      *backend.User
	metaCache *backup.Store
	mediaSem  *semaphore.Weighted
	logger    *slog.Logger
}

// api returns the current client snapshot.
func (b *Backend) api() *Client {
	b.clientMu.RLock()
	defer b.clientMu.RUnlock()
	return b.client
}

// Option configures the backend.
type Option func(*Backend)

// WithMetadataCache attaches a local store used to memoize per-blob commit
// metadata lookups.
func WithMetadataCache(store *backup.Store) Option {
	return func(b *Backend) {
		b.metaCache = store
	}
}

// WithBackendLogger sets a custom logger on the backend and its client.
func WithBackendLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
		b.client.logger = l
	}
}

// New creates the GitHub backend from configuration.
func New(cfg config.BackendConfig, token string, clientOpts []ClientOption, opts ...Option) (*Backend, error) {
	if cfg.Repo == "" {
		return nil, apperrors.ErrRepoRequired
	}
	if token == "" {
		return nil, apperrors.ErrTokenRequired
	}

	clientOpts = append([]ClientOption{WithBaseURL(cfg.APIRoot)}, clientOpts...)
	if cfg.APIRoot == "" {
		clientOpts = clientOpts[1:]
	}

	b := &Backend{
		client:   NewClient(token, cfg.Repo, cfg.Branch, clientOpts...),
		mediaSem: semaphore.NewWeighted(mediaConcurrency),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the provider identifier.
func (b *Backend) Name() string {
	return providerName
}

// SetBranch switches subsequent operations to another branch. The branch is
// verified remotely before the client snapshot is swapped, so a failed
// switch leaves the backend on its current branch.
func (b *Backend) SetBranch(ctx context.Context, name string) error {
	next := b.api().withBranch(name)
	if _, err := next.getBranch(ctx, name); err != nil {
		return fmt.Errorf("switch branch %s: %w", name, err)
	}

	b.clientMu.Lock()
	b.client = next
	b.clientMu.Unlock()

	b.logger.InfoContext(ctx, "Switched branch", "branch", name)
	return nil
}

// Authenticate resolves the token's user and verifies push access to the
// configured repository.
func (b *Backend) Authenticate(ctx context.Context) (*backend.User, error) {
	user, err := b.api().user(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	repo, err := b.api().repository(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve repository %s: %w", b.api().repo, err)
	}
	if !repo.Permissions.Push {
		return nil, fmt.Errorf("%s: %w", user.Login, apperrors.ErrNoWriteAccess)
	}

	b.user = &backend.User{
		BackendName: providerName,
		Login:       user.Login,
		Name:        user.Name,
		Token:       b.api().token,
	}
	b.logger.InfoContext(ctx, "authenticated", "login", user.Login, "repo", repo.FullName)
	return b.user, nil
}

// CurrentUser returns the authenticated user.
func (b *Backend) CurrentUser() (*backend.User, error) {
	if b.user == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return b.user, nil
}

// Status checks the stored credentials and the GitHub status page.
func (b *Backend) Status(ctx context.Context) (backend.Status, error) {
	status := backend.Status{AuthOK: true, APIOK: true}

	if _, err := b.api().user(ctx); err != nil {
		if apperrors.IsAPIStatus(err, http.StatusUnauthorized, http.StatusForbidden) {
			status.AuthOK = false
		} else {
			return status, fmt.Errorf("check auth: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.api().statusURL, nil)
	if err != nil {
		return status, fmt.Errorf("create status request: %w", err)
	}
	resp, err := b.api().httpClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("fetch status page: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	var components statusComponentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&components); err != nil {
		return status, fmt.Errorf("parse status page: %w", err)
	}
	for _, comp := range components.Components {
		if _, watched := watchedStatusComponents[comp.Name]; !watched {
			continue
		}
		if comp.Status != "operational" {
			status.APIOK = false
			status.Incidents = append(status.Incidents, comp.Name)
		}
	}
	return status, nil
}

// listingKey is the cursor data field carrying the snapshot of listed
// files across traversals.
const listingKey = "files"

// EntriesByFolder lists a folder once and returns its first page plus a
// cursor over the remaining pages. The cursor carries the full listing, so
// traversing it pages through a consistent snapshot.
func (b *Backend) EntriesByFolder(ctx context.Context, folder, extension string, depth int) ([]entry.Loaded, cursor.Cursor, error) {
	files, err := b.api().listFiles(ctx, folder, depth)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	files = filterByExtension(files, extension)
	return b.listPage(ctx, files, 1)
}

// TraverseCursor loads the page reached by applying action to a cursor
// previously returned by EntriesByFolder. Page boundaries are computed from
// the listing stored in the cursor; only the page's file contents are
// fetched.
func (b *Backend) TraverseCursor(ctx context.Context, c cursor.Cursor, action cursor.Action) ([]entry.Loaded, cursor.Cursor, error) {
	if !c.HasAction(action) {
		return nil, cursor.Cursor{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownCursorAction, action)
	}

	files, _ := c.Data()[listingKey].([]fileInfo)
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

// listPage reads one page's worth of the listed files and builds the
// cursor pointing at it.
func (b *Backend) listPage(ctx context.Context, files []fileInfo, page int) ([]entry.Loaded, cursor.Cursor, error) {
	count := len(files)
	pageCount := (count + pageSize - 1) / pageSize
	if page > pageCount && pageCount > 0 {
		page = pageCount
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, count)
	var window []fileInfo
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
	files, err := b.api().listFiles(ctx, folder, depth)
	if err != nil {
		return nil, err
	}
	files = filterByExtension(files, extension)

	if pathRegex != "" {
		re, err := regexp.Compile(pathRegex)
		if err != nil {
			return nil, fmt.Errorf("compile path filter: %w", err)
		}
		kept := files[:0]
		for _, f := range files {
			if re.MatchString(f.Path) {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	return b.readAll(ctx, files)
}

// EntriesByFiles loads a fixed list of paths, skipping missing ones.
func (b *Backend) EntriesByFiles(ctx context.Context, paths []string) ([]entry.Loaded, error) {
	results := make([]*entry.Loaded, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			_, raw, err := b.api().readFile(gctx, p)
			if apperrors.IsAPIStatus(err, http.StatusNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			results[i] = &entry.Loaded{Path: p, Raw: string(raw)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	loaded := make([]entry.Loaded, 0, len(paths))
	for _, r := range results {
		if r != nil {
			loaded = append(loaded, *r)
		}
	}
	return loaded, nil
}

// GetEntry loads one file with its commit metadata.
func (b *Backend) GetEntry(ctx context.Context, filePath string) (*entry.Loaded, error) {
	content, raw, err := b.api().readFile(ctx, filePath)
	if apperrors.IsAPIStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%s: %w", filePath, apperrors.ErrEntryNotFound)
	}
	if err != nil {
		return nil, err
	}

	loaded := &entry.Loaded{Path: filePath, Raw: string(raw)}
	if meta, err := b.fileMetadata(ctx, filePath, content.SHA); err != nil {
		b.logger.WarnContext(ctx, "metadata lookup failed", "path", filePath, "error", err)
	} else if meta != nil {
		loaded.Author = meta.Author
		loaded.UpdatedOn = meta.UpdatedOn
	}
	return loaded, nil
}

// FileExists reports whether a path exists on the content branch.
func (b *Backend) FileExists(ctx context.Context, filePath string) (bool, error) {
	_, _, err := b.api().readFile(ctx, filePath)
	if apperrors.IsAPIStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PersistFiles writes data and media files in one commit.
func (b *Backend) PersistFiles(ctx context.Context, dataFiles []entry.DataFile, mediaFiles []entry.MediaFile, opts backend.PersistOptions) error {
	var login string
	if b.user != nil {
		login = b.user.Login
	}
	return b.api().persistFiles(ctx, dataFiles, mediaFiles, opts.CommitMessage, login)
}

// DeleteFiles removes paths in one commit.
func (b *Backend) DeleteFiles(ctx context.Context, paths []string, commitMessage string) error {
	var login string
	if b.user != nil {
		login = b.user.Login
	}
	return b.api().deleteFiles(ctx, paths, commitMessage, login)
}

// GetMedia lists media files under folder.
func (b *Backend) GetMedia(ctx context.Context, folder string) ([]entry.MediaFile, error) {
	files, err := b.api().listFiles(ctx, folder, 1)
	if err != nil {
		return nil, err
	}
	media := make([]entry.MediaFile, 0, len(files))
	for _, f := range files {
		media = append(media, entry.MediaFile{
			ID:   f.SHA,
			Path: f.Path,
			Name: path.Base(f.Path),
			Size: f.Size,
		})
	}
	return media, nil
}

// GetMediaFile loads one media file with content.
func (b *Backend) GetMediaFile(ctx context.Context, filePath string) (*entry.MediaFile, error) {
	content, raw, err := b.api().readFile(ctx, filePath)
	if apperrors.IsAPIStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%s: %w", filePath, apperrors.ErrEntryNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &entry.MediaFile{
		ID:          content.SHA,
		Path:        filePath,
		Name:        path.Base(filePath),
		Size:        content.Size,
		URL:         content.DownloadURL,
		DisplayURL:  content.DownloadURL,
		Content:     raw,
	}, nil
}

// LoadMediaContents fills in the content and display URL of listed media
// files, downloading blobs with bounded concurrency.
func (b *Backend) LoadMediaContents(ctx context.Context, files []entry.MediaFile) ([]entry.MediaFile, error) {
	out := make([]entry.MediaFile, len(files))
	copy(out, files)

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		if out[i].ID == "" || len(out[i].Content) > 0 {
			continue
		}
		g.Go(func() error {
			if err := b.mediaSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer b.mediaSem.Release(1)

			raw, err := b.api().fetchBlob(gctx, out[i].ID)
			if err != nil {
				return fmt.Errorf("fetch media %s: %w", out[i].Path, err)
			}
			out[i].Content = raw
			out[i].DisplayURL = dataURL(out[i].Name, raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBranches returns the repository's branches.
func (b *Backend) ListBranches(ctx context.Context) ([]backend.Branch, error) {
	branches, err := b.api().listBranches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Branch, 0, len(branches))
	for _, br := range branches {
		out = append(out, backend.Branch{Name: br.Name, SHA: br.Commit.SHA, Protected: br.Protected})
	}
	return out, nil
}

// ListPulls returns the repository's open pull requests.
func (b *Backend) ListPulls(ctx context.Context) ([]backend.Pull, error) {
	pulls, err := b.api().listPulls(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Pull, 0, len(pulls))
	for _, p := range pulls {
		out = append(out, backend.Pull{
			Number: p.Number,
			Title:  p.Title,
			Head:   p.Head.Ref,
			State:  p.State,
			URL:    p.URL,
		})
	}
	return out, nil
}

// readAll loads a window of files concurrently, attaching cached commit
// metadata where available.
func (b *Backend) readAll(ctx context.Context, files []fileInfo) ([]entry.Loaded, error) {
	loaded := make([]entry.Loaded, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, f := range files {
		g.Go(func() error {
			raw, err := b.api().fetchBlob(gctx, f.SHA)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Path, err)
			}
			loaded[i] = entry.Loaded{Path: f.Path, Raw: string(raw)}

			meta, err := b.fileMetadata(gctx, f.Path, f.SHA)
			if err != nil {
				b.logger.WarnContext(gctx, "metadata lookup failed", "path", f.Path, "error", err)
				return nil
			}
			if meta != nil {
				loaded[i].Author = meta.Author
				loaded[i].UpdatedOn = meta.UpdatedOn
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// fileMetadata resolves the last commit touching a path, memoized by the
// file's blob sha: content that has not changed keeps its commit metadata.
func (b *Backend) fileMetadata(ctx context.Context, filePath, sha string) (*backup.Metadata, error) {
	if b.metaCache != nil && sha != "" {
		cached, err := b.metaCache.GetFileMetadata(ctx, sha)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	commit, err := b.api().lastCommit(ctx, filePath)
	if err != nil || commit == nil {
		return nil, err
	}

	meta := &backup.Metadata{Author: commit.Commit.Author.Name}
	if commit.Author != nil && commit.Author.Login != "" {
		meta.Author = commit.Author.Login
	}
	if t, err := time.Parse(time.RFC3339, commit.Commit.Author.Date); err == nil {
		meta.UpdatedOn = t
	}

	if b.metaCache != nil && sha != "" {
		if err := b.metaCache.SetFileMetadata(ctx, sha, *meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func filterByExtension(files []fileInfo, extension string) []fileInfo {
	if extension == "" {
		return files
	}
	suffix := "." + strings.TrimPrefix(extension, ".")
	kept := files[:0]
	for _, f := range files {
		if strings.HasSuffix(f.Path, suffix) {
			kept = append(kept, f)
		}
	}
	return kept
}

func dataURL(name string, content []byte) string {
	mime := "application/octet-stream"
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		mime = "image/png"
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".gif":
		mime = "image/gif"
	case ".svg":
		mime = "image/svg+xml"
	case ".webp":
		mime = "image/webp"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)
}
