package backend

import (
	"context"
	"strings"

	"github.com/statichq/gitcms/internal/alock"
	"github.com/statichq/gitcms/internal/backup"
	"github.com/statichq/gitcms/internal/entry"
	"github.com/statichq/gitcms/internal/i18n"
)

// PersistBackup snapshots in-progress edits to the local store. The backup
// round-trips through the same serialization a real save would use, and an
// effectively empty draft clears the backup instead of storing noise. All
// backup writes go through the FIFO backup lock.
func (b *Backend) PersistBackup(ctx context.Context, e *entry.Entry) error {
	if b.backups == nil {
		return nil
	}
	col, err := b.collection(e.Collection)
	if err != nil {
		return err
	}
	codec, err := codecFor(col)
	if err != nil {
		return err
	}

	raw, err := codec.ToRaw(e.Data)
	if err != nil {
		return err
	}

	var media []entry.MediaFile
	for _, m := range e.MediaFiles {
		if m.Draft {
			media = append(media, m)
		}
	}

	key := backup.EntryKey(col.Name, e.Slug)
	if emptyDraft(raw, media) {
		return alock.Run(ctx, b.backupLock, func() error {
			return b.backups.DeleteBackup(ctx, key)
		})
	}

	locales, err := i18n.Backup(col, e, codec.ToRaw)
	if err != nil {
		return err
	}

	record := &entry.BackupEntry{
		Raw:        raw,
		Path:       e.Path,
		MediaFiles: media,
		I18n:       locales,
	}
	return alock.Run(ctx, b.backupLock, func() error {
		if err := b.backups.SetBackup(ctx, key, record); err != nil {
			return err
		}
		// The anonymous copy lets the next session offer "restore your
		// latest draft" before a collection is even picked.
		return b.backups.SetBackup(ctx, backup.AnonymousKey, record)
	})
}

// emptyDraft reports whether a serialized draft carries nothing worth
// keeping. Whitespace-only content counts as empty.
func emptyDraft(raw string, media []entry.MediaFile) bool {
	return strings.TrimSpace(raw) == "" && len(media) == 0
}

// GetBackup restores a draft snapshot into an entry, or returns (nil, nil)
// when no backup exists.
func (b *Backend) GetBackup(ctx context.Context, collectionName, slug string) (*entry.Entry, error) {
	if b.backups == nil {
		return nil, nil
	}
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}
	codec, err := codecFor(col)
	if err != nil {
		return nil, err
	}

	record, err := b.backups.GetBackup(ctx, backup.EntryKey(col.Name, slug))
	if err != nil || record == nil {
		return nil, err
	}

	data := entry.Data{}
	if record.Raw != "" {
		data, err = codec.FromRaw(record.Raw)
		if err != nil {
			return nil, err
		}
	}
	locales, err := i18n.RestoreBackup(record.I18n, codec.FromRaw)
	if err != nil {
		return nil, err
	}

	e := entry.New(col.Name, slug, record.Path)
	e.Raw = record.Raw
	e.Data = data
	e.I18n = locales
	e.MediaFiles = record.MediaFiles
	e.NewRecord = slug == ""
	return e, nil
}

// DeleteBackup clears an entry's draft snapshot together with the
// collection-level alias a slugless draft may have left behind and the
// anonymous copy.
func (b *Backend) DeleteBackup(ctx context.Context, collectionName, slug string) error {
	if b.backups == nil {
		return nil
	}
	return alock.Run(ctx, b.backupLock, func() error {
		if err := b.backups.DeleteBackup(ctx, backup.EntryKey(collectionName, slug)); err != nil {
			return err
		}
		if slug != "" {
			if err := b.backups.DeleteBackup(ctx, backup.EntryKey(collectionName, "")); err != nil {
				return err
			}
		}
		return b.backups.DeleteBackup(ctx, backup.AnonymousKey)
	})
}
