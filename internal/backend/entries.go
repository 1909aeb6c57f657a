package backend

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
	"github.com/statichq/gitcms/internal/format"
	"github.com/statichq/gitcms/internal/i18n"
	"github.com/statichq/gitcms/internal/slugutil"
)

// Entries is one page of a collection listing.
type Entries struct {
	Entries []*entry.Entry
	Cursor  cursor.Cursor
}

// collectionKey is the wrapped cursor field carrying the collection a page
// belongs to across the facade boundary.
const collectionKey = "collection"

func (b *Backend) collection(name string) (*config.Collection, error) {
	col := b.cfg.Collection(name)
	if col == nil {
		return nil, fmt.Errorf("%s: %w", name, apperrors.ErrCollectionNotFound)
	}
	return col, nil
}

func codecFor(col *config.Collection) (format.Codec, error) {
	return format.ByExtension(col.EntryExtension())
}

// ListEntries returns the first page of a collection. The returned cursor,
// if it offers actions, can be passed to TraverseCursor.
func (b *Backend) ListEntries(ctx context.Context, collectionName string) (*Entries, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}

	if col.IsFileCollection() {
		paths := make([]string, 0, len(col.Files))
		for _, f := range col.Files {
			paths = append(paths, f.File)
		}
		loaded, err := b.provider.EntriesByFiles(ctx, paths)
		if err != nil {
			return nil, err
		}
		entries, err := b.parseLoaded(col, loaded)
		if err != nil {
			return nil, err
		}
		return &Entries{Entries: entries, Cursor: cursor.Create(nil)}, nil
	}

	loaded, cur, err := b.provider.EntriesByFolder(ctx, col.Folder, col.EntryExtension(), col.Depth())
	if err != nil {
		return nil, err
	}
	entries, err := b.parseLoaded(col, loaded)
	if err != nil {
		return nil, err
	}
	return &Entries{
		Entries: entries,
		Cursor:  cur.WrapData(cursor.Data{collectionKey: collectionName}),
	}, nil
}

// TraverseCursor moves a listing cursor and returns the reached page.
func (b *Backend) TraverseCursor(ctx context.Context, c cursor.Cursor, action cursor.Action) (*Entries, error) {
	traverser, ok := b.provider.(CursorTraverser)
	if !ok {
		return nil, fmt.Errorf("pagination: %w", apperrors.ErrCapabilityNotSupported)
	}

	wrapped, providerCursor := c.UnwrapData()
	collectionName, _ := wrapped[collectionKey].(string)
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}

	loaded, next, err := traverser.TraverseCursor(ctx, providerCursor, action)
	if err != nil {
		return nil, err
	}
	entries, err := b.parseLoaded(col, loaded)
	if err != nil {
		return nil, err
	}
	return &Entries{
		Entries: entries,
		Cursor:  next.WrapData(cursor.Data{collectionKey: collectionName}),
	}, nil
}

// ListAllEntries returns the complete set of a collection's entries,
// grouping locale siblings and applying the collection filter.
func (b *Backend) ListAllEntries(ctx context.Context, collectionName string) ([]*entry.Entry, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}

	if col.IsFileCollection() {
		page, err := b.ListEntries(ctx, collectionName)
		if err != nil {
			return nil, err
		}
		return page.Entries, nil
	}

	loaded, err := b.provider.AllEntriesByFolder(ctx, col.Folder, col.EntryExtension(), col.Depth(), "")
	if err != nil {
		return nil, err
	}
	return b.parseLoaded(col, loaded)
}

// parseLoaded turns provider files into entries: format parsing, locale
// grouping and the collection's field filter.
func (b *Backend) parseLoaded(col *config.Collection, loaded []entry.Loaded) ([]*entry.Entry, error) {
	codec, err := codecFor(col)
	if err != nil {
		return nil, err
	}

	entries := make([]*entry.Entry, 0, len(loaded))
	for _, l := range loaded {
		data, err := codec.FromRaw(l.Raw)
		if err != nil {
			b.logger.Warn("skipping unparseable entry", "path", l.Path, "error", err)
			continue
		}
		e := entry.New(col.Name, col.SlugFromPath(l.Path), l.Path)
		e.Raw = l.Raw
		e.Data = data
		e.Author = l.Author
		e.UpdatedOn = l.UpdatedOn
		if col.IsFileCollection() {
			if f := colFileByPath(col, l.Path); f != nil {
				e.Slug = f.Name
				e.Label = f.Label
			}
		}
		entries = append(entries, e)
	}

	entries = i18n.GroupEntries(col, entries)
	return filterEntries(col, entries), nil
}

func colFileByPath(col *config.Collection, p string) *config.CollectionFile {
	for i := range col.Files {
		if col.Files[i].File == p {
			return &col.Files[i]
		}
	}
	return nil
}

// filterEntries applies the collection's field filter rule.
func filterEntries(col *config.Collection, entries []*entry.Entry) []*entry.Entry {
	if col.Filter == nil {
		return entries
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Data[col.Filter.Field] == col.Filter.Value {
			kept = append(kept, e)
		}
	}
	return kept
}

// GetEntry loads one entry by slug, merging locale siblings for
// internationalized collections.
func (b *Backend) GetEntry(ctx context.Context, collectionName, slug string) (*entry.Entry, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}

	entryPath := col.EntryPath(slug)
	if entryPath == "" {
		return nil, fmt.Errorf("%s/%s: %w", collectionName, slug, apperrors.ErrEntryNotFound)
	}

	if col.HasI18n() && col.I18n.Structure != config.I18nSingleFile {
		loaded, err := b.provider.EntriesByFiles(ctx, i18n.FilePaths(col, entryPath))
		if err != nil {
			return nil, err
		}
		if len(loaded) == 0 {
			return nil, fmt.Errorf("%s/%s: %w", collectionName, slug, apperrors.ErrEntryNotFound)
		}
		entries, err := b.parseLoaded(col, loaded)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%s/%s: %w", collectionName, slug, apperrors.ErrEntryNotFound)
		}
		e := entries[0]
		e.Slug = slug
		return e, nil
	}

	loaded, err := b.provider.GetEntry(ctx, entryPath)
	if err != nil {
		return nil, err
	}
	entries, err := b.parseLoaded(col, []entry.Loaded{*loaded})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collectionName, slug, apperrors.ErrUnknownFormat)
	}
	e := entries[0]
	e.Slug = slug
	return e, nil
}

// GenerateUniqueSlug derives a slug for new entry data and suffixes a
// counter until it collides with neither a path in the repository nor a
// slug already handed out this session.
func (b *Backend) GenerateUniqueSlug(ctx context.Context, collectionName string, data entry.Data, customPath string) (string, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return "", err
	}

	var base string
	if customPath != "" {
		base = slugutil.SlugFromPath(customPath)
	} else {
		base = slugutil.Format(col.Slug, data, b.cfg.Slug, time.Now())
	}

	sep := b.cfg.Slug.Replacement()
	candidate := base
	for i := 1; ; i++ {
		taken, err := b.slugTaken(ctx, col, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		candidate = fmt.Sprintf("%s%s%d", base, sep, i)
	}

	b.mu.Lock()
	b.usedSlugs[col.Name+"/"+candidate] = struct{}{}
	b.mu.Unlock()
	return candidate, nil
}

func (b *Backend) slugTaken(ctx context.Context, col *config.Collection, slug string) (bool, error) {
	b.mu.Lock()
	_, used := b.usedSlugs[col.Name+"/"+slug]
	b.mu.Unlock()
	if used {
		return true, nil
	}

	entryPath := col.EntryPath(slug)
	if col.HasI18n() && col.I18n.Structure != config.I18nSingleFile {
		entryPath = i18n.FilePath(col.I18n.Structure, entryPath, col.I18n.Default())
	}
	return b.provider.FileExists(ctx, entryPath)
}

// PersistEntryOptions carries the optional parameters of a save.
type PersistEntryOptions struct {
	// NewPath moves the entry to a custom path; entry-relative assets move
	// with it.
	NewPath string
}

// PersistEntry saves an entry and its draft media in one commit, then
// clears the local draft backup.
func (b *Backend) PersistEntry(ctx context.Context, e *entry.Entry, opts PersistEntryOptions) error {
	col, err := b.collection(e.Collection)
	if err != nil {
		return err
	}
	if e.NewRecord && !col.AllowsNewEntries() {
		return fmt.Errorf("%s: %w", col.Name, apperrors.ErrNewEntriesNotAllowed)
	}

	if err := b.runHooks(ctx, b.preSaveHooks, e); err != nil {
		return fmt.Errorf("pre-save hook: %w", err)
	}

	if e.NewRecord && e.Slug == "" {
		slug, err := b.GenerateUniqueSlug(ctx, e.Collection, e.Data, opts.NewPath)
		if err != nil {
			return err
		}
		e.Slug = slug
	}
	if e.Path == "" {
		e.Path = col.EntryPath(e.Slug)
	}

	newPath := opts.NewPath
	if newPath == e.Path {
		newPath = ""
	}

	codec, err := codecFor(col)
	if err != nil {
		return err
	}
	dataFiles, err := i18n.ExpandDataFiles(col, e, codec.ToRaw, e.Path, e.Slug, newPath)
	if err != nil {
		return err
	}

	var assets []entry.MediaFile
	for _, m := range e.MediaFiles {
		if m.Draft && len(m.Content) > 0 {
			assets = append(assets, m)
		}
	}

	action := "update"
	if e.NewRecord {
		action = "create"
	}
	vars := b.commitVars()
	vars.Collection = col.Name
	vars.Slug = e.Slug
	vars.Path = e.Path

	e.IsPersisting = true
	defer func() { e.IsPersisting = false }()

	err = b.provider.PersistFiles(ctx, dataFiles, assets, PersistOptions{
		CommitMessage: slugutil.CommitMessage(action, vars),
		NewEntry:      e.NewRecord,
	})
	if err != nil {
		return err
	}

	if newPath != "" {
		e.Path = newPath
		e.Slug = col.SlugFromPath(newPath)
	}
	e.NewRecord = false

	if err := b.runHooks(ctx, b.postSaveHooks, e); err != nil {
		return fmt.Errorf("post-save hook: %w", err)
	}

	return b.DeleteBackup(ctx, col.Name, e.Slug)
}

// DeleteEntry removes an entry (all its locale files) in one commit, then
// clears its local draft backup. The collection's deletion policy is
// checked before anything is touched.
func (b *Backend) DeleteEntry(ctx context.Context, collectionName, slug string) error {
	col, err := b.collection(collectionName)
	if err != nil {
		return err
	}
	if !col.AllowsDeletion() {
		return fmt.Errorf("%s: %w", col.Name, apperrors.ErrDeletionNotAllowed)
	}

	entryPath := col.EntryPath(slug)
	if entryPath == "" {
		return fmt.Errorf("%s/%s: %w", collectionName, slug, apperrors.ErrEntryNotFound)
	}

	vars := b.commitVars()
	vars.Collection = col.Name
	vars.Slug = slug
	vars.Path = entryPath

	paths := i18n.FilePaths(col, entryPath)
	if err := b.provider.DeleteFiles(ctx, paths, slugutil.CommitMessage("delete", vars)); err != nil {
		return err
	}

	b.logger.InfoContext(ctx, "entry deleted", "collection", col.Name, "slug", slug, "files", len(paths))
	return b.DeleteBackup(ctx, collectionName, slug)
}

// EntryMediaFolder resolves the media folder used by a collection, falling
// back to the global one.
func (b *Backend) EntryMediaFolder(collectionName string) string {
	if col := b.cfg.Collection(collectionName); col != nil && col.MediaFolder != "" {
		return path.Clean(col.MediaFolder)
	}
	return b.cfg.MediaFolder
}
