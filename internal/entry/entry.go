// Package entry defines the value objects the backend layers exchange:
// entries, their persistence units and media attachments.
package entry

import "time"

// Data holds an entry's parsed structured fields. Values may be nested
// maps, slices or scalars.
type Data map[string]any

// Entry is a single content item within a collection.
type Entry struct {
	Collection string
	Slug       string
	Path       string
	Raw        string
	Data       Data
	Label      string
	Author     string
	UpdatedOn  time.Time
	MediaFiles []MediaFile
	// I18n holds per-locale sibling data for internationalized collections.
	I18n map[string]Data

	// NewRecord is true until the first successful persist.
	NewRecord bool

	// Transient UI-facing flags.
	IsPersisting bool
	IsDeleting   bool
}

// New constructs an entry loaded from a provider file or created as a draft.
func New(collection, slug, path string) *Entry {
	return &Entry{
		Collection: collection,
		Slug:       slug,
		Path:       path,
		Data:       Data{},
	}
}

// Loaded is a raw provider file before format parsing.
type Loaded struct {
	Path      string
	Raw       string
	Label     string
	Author    string
	UpdatedOn time.Time
}

// DataFile is a unit of persistence. One entry may expand into several
// data files when internationalization splits locales into separate files.
type DataFile struct {
	Path string
	Slug string
	Raw  string
	// NewPath, when set, signals a rename from Path to NewPath.
	NewPath string
}

// MediaFile is a media attachment, either already stored in the repository
// or added as a draft in the current session.
type MediaFile struct {
	// ID is the provider-assigned content hash.
	ID          string
	Path        string
	Name        string
	Size        int64
	URL         string
	DisplayURL  string
	Content     []byte
	IsDirectory bool
	Draft       bool
}

// BackupEntry is a locally persisted snapshot of in-progress edits.
type BackupEntry struct {
	Raw        string            `json:"raw"`
	Path       string            `json:"path"`
	MediaFiles []MediaFile       `json:"mediaFiles,omitempty"`
	I18n       map[string]string `json:"i18n,omitempty"`
}
