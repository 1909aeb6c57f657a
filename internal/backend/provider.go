package backend

import (
	"context"

	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
)

// User is the authenticated identity a provider reports.
type User struct {
	BackendName string `json:"backendName"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Token       string `json:"-"`
}

// AuthStore persists the authenticated user between sessions. Load returns
// (nil, nil) when nothing is stored.
type AuthStore interface {
	Load() (*User, error)
	Save(*User) error
	Clear() error
}

// Status is a provider health report.
type Status struct {
	// AuthOK is false when stored credentials no longer authenticate.
	AuthOK bool
	// APIOK is false when the provider's service reports degraded components.
	APIOK bool
	// Incidents lists the degraded component names, if any.
	Incidents []string
}

// PersistOptions carries the commit parameters of a write operation.
type PersistOptions struct {
	CommitMessage string
	NewEntry      bool
}

// Branch is a repository branch projection.
type Branch struct {
	Name      string
	SHA       string
	Protected bool
}

// Pull is an open pull request projection.
type Pull struct {
	Number int
	Title  string
	Head   string
	State  string
	URL    string
}

// Provider is the contract every repository backend implements. All listing
// operations return logical files; format parsing and i18n grouping happen
// in the facade.
type Provider interface {
	// Name returns the provider identifier used in configuration.
	Name() string

	// Authenticate verifies credentials and write access, returning the
	// resolved user.
	Authenticate(ctx context.Context) (*User, error)

	// CurrentUser returns the user from the last successful Authenticate,
	// or ErrNotAuthenticated.
	CurrentUser() (*User, error)

	// Status reports provider health.
	Status(ctx context.Context) (Status, error)

	// EntriesByFolder returns the first page of entry files under folder
	// and a cursor for subsequent pages.
	EntriesByFolder(ctx context.Context, folder, extension string, depth int) ([]entry.Loaded, cursor.Cursor, error)

	// AllEntriesByFolder returns the complete set of entry files under
	// folder. pathRegex, when non-empty, keeps only matching paths.
	AllEntriesByFolder(ctx context.Context, folder, extension string, depth int, pathRegex string) ([]entry.Loaded, error)

	// EntriesByFiles loads a fixed list of paths. Missing files are
	// silently skipped.
	EntriesByFiles(ctx context.Context, paths []string) ([]entry.Loaded, error)

	// GetEntry loads one file; a missing path yields ErrEntryNotFound.
	GetEntry(ctx context.Context, path string) (*entry.Loaded, error)

	// FileExists reports whether a path exists on the content branch.
	FileExists(ctx context.Context, path string) (bool, error)

	// PersistFiles writes data files and media atomically in one commit.
	PersistFiles(ctx context.Context, dataFiles []entry.DataFile, mediaFiles []entry.MediaFile, opts PersistOptions) error

	// DeleteFiles removes paths in one commit.
	DeleteFiles(ctx context.Context, paths []string, commitMessage string) error

	// GetMedia lists media files under folder.
	GetMedia(ctx context.Context, folder string) ([]entry.MediaFile, error)

	// GetMediaFile loads one media file with content.
	GetMediaFile(ctx context.Context, path string) (*entry.MediaFile, error)
}

// CursorTraverser is implemented by providers that support paginated
// listings.
type CursorTraverser interface {
	TraverseCursor(ctx context.Context, c cursor.Cursor, action cursor.Action) ([]entry.Loaded, cursor.Cursor, error)
}

// BranchLister is implemented by providers that can enumerate branches.
type BranchLister interface {
	ListBranches(ctx context.Context) ([]Branch, error)
}

// BranchSwitcher is implemented by providers that can retarget their
// operations to another branch.
type BranchSwitcher interface {
	SetBranch(ctx context.Context, name string) error
}

// PullLister is implemented by providers that can enumerate open pull
// requests.
type PullLister interface {
	ListPulls(ctx context.Context) ([]Pull, error)
}

// MediaLoader is implemented by providers that can bulk-load media contents.
type MediaLoader interface {
	LoadMediaContents(ctx context.Context, files []entry.MediaFile) ([]entry.MediaFile, error)
}
