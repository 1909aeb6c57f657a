// Package i18n implements the file-set policy for internationalized
// collections: computing per-locale sibling paths, expanding one logical
// entry into locale data files for persistence, and grouping listed files
// back into logical entries.
package i18n

import (
	"fmt"
	"path"
	"strings"

	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/entry"
)

// FilePath returns the physical path of one locale's file for an entry
// path. Single-file collections keep all locales in the entry path itself.
func FilePath(structure config.I18nStructure, entryPath, locale string) string {
	switch structure {
	case config.I18nMultipleFiles:
		ext := path.Ext(entryPath)
		return strings.TrimSuffix(entryPath, ext) + "." + locale + ext
	case config.I18nMultipleFolders:
		dir, file := path.Split(entryPath)
		return path.Join(dir, locale, file)
	case config.I18nSingleFile:
		return entryPath
	default:
		return entryPath
	}
}

// FilePaths returns every physical path one logical entry occupies,
// including the default-locale file.
func FilePaths(col *config.Collection, entryPath string) []string {
	if !col.HasI18n() || col.I18n.Structure == config.I18nSingleFile {
		return []string{entryPath}
	}
	paths := make([]string, 0, len(col.I18n.Locales))
	for _, locale := range col.I18n.Locales {
		paths = append(paths, FilePath(col.I18n.Structure, entryPath, locale))
	}
	return paths
}

// DefaultLocaleMatcher returns a predicate selecting only the
// default-locale files of an internationalized folder listing, so the
// complete-set listing does not double-count locale siblings. Collections
// without i18n match everything.
func DefaultLocaleMatcher(col *config.Collection) func(p string) bool {
	if !col.HasI18n() || col.I18n.Structure == config.I18nSingleFile {
		return func(string) bool { return true }
	}
	structure := col.I18n.Structure
	locale := col.I18n.Default()
	return func(p string) bool {
		switch structure {
		case config.I18nMultipleFiles:
			return strings.HasSuffix(strings.TrimSuffix(p, path.Ext(p)), "."+locale)
		case config.I18nMultipleFolders:
			return path.Base(path.Dir(p)) == locale
		default:
			return true
		}
	}
}

// LogicalPath strips the locale component from a physical path, recovering
// the path the entry is addressed by.
func LogicalPath(structure config.I18nStructure, physical string) string {
	switch structure {
	case config.I18nMultipleFiles:
		ext := path.Ext(physical)
		stem := strings.TrimSuffix(physical, ext)
		localeExt := path.Ext(stem)
		if localeExt == "" {
			return physical
		}
		return strings.TrimSuffix(stem, localeExt) + ext
	case config.I18nMultipleFolders:
		dir, file := path.Split(physical)
		return path.Join(path.Dir(strings.TrimSuffix(dir, "/")), file)
	default:
		return physical
	}
}

// Locale extracts the locale encoded in a physical path, or "" when the
// path carries none.
func Locale(structure config.I18nStructure, physical string, locales []string) string {
	switch structure {
	case config.I18nMultipleFiles:
		stem := strings.TrimSuffix(physical, path.Ext(physical))
		candidate := strings.TrimPrefix(path.Ext(stem), ".")
		for _, l := range locales {
			if candidate == l {
				return l
			}
		}
	case config.I18nMultipleFolders:
		candidate := path.Base(path.Dir(physical))
		for _, l := range locales {
			if candidate == l {
				return l
			}
		}
	}
	return ""
}

// ExpandDataFiles expands one logical entry into the physical data files
// the provider must write: one per locale for multi-file structures. The
// default locale carries the entry's primary data; other locales come from
// the entry's I18n map.
func ExpandDataFiles(
	col *config.Collection,
	e *entry.Entry,
	toRaw func(entry.Data) (string, error),
	entryPath, slug, newPath string,
) ([]entry.DataFile, error) {
	raw, err := toRaw(e.Data)
	if err != nil {
		return nil, fmt.Errorf("serialize entry: %w", err)
	}

	if !col.HasI18n() || col.I18n.Structure == config.I18nSingleFile {
		return []entry.DataFile{{Path: entryPath, Slug: slug, Raw: raw, NewPath: newPath}}, nil
	}

	structure := col.I18n.Structure
	defaultLocale := col.I18n.Default()
	files := make([]entry.DataFile, 0, len(col.I18n.Locales))
	for _, locale := range col.I18n.Locales {
		data := e.Data
		if locale != defaultLocale {
			localeData, ok := e.I18n[locale]
			if !ok || len(localeData) == 0 {
				continue
			}
			data = localeData
		}
		localeRaw, err := toRaw(data)
		if err != nil {
			return nil, fmt.Errorf("serialize locale %s: %w", locale, err)
		}
		var localeNewPath string
		if newPath != "" {
			localeNewPath = FilePath(structure, newPath, locale)
		}
		files = append(files, entry.DataFile{
			Path:    FilePath(structure, entryPath, locale),
			Slug:    slug,
			Raw:     localeRaw,
			NewPath: localeNewPath,
		})
	}
	return files, nil
}

// GroupEntries collapses a flat listing of locale files into logical
// entries keyed by their locale-stripped path. Non-default locale data is
// attached under the entry's I18n map.
func GroupEntries(col *config.Collection, entries []*entry.Entry) []*entry.Entry {
	if !col.HasI18n() || col.I18n.Structure == config.I18nSingleFile {
		return entries
	}

	structure := col.I18n.Structure
	defaultLocale := col.I18n.Default()

	grouped := map[string]*entry.Entry{}
	var order []string
	for _, e := range entries {
		logical := LogicalPath(structure, e.Path)
		if _, ok := grouped[logical]; !ok {
			order = append(order, logical)
		}
		locale := Locale(structure, e.Path, col.I18n.Locales)

		base := grouped[logical]
		if locale == defaultLocale || locale == "" {
			if base != nil {
				e.I18n = base.I18n
			}
			e.Path = logical
			e.Slug = col.SlugFromPath(logical)
			grouped[logical] = e
			continue
		}
		if base == nil {
			base = entry.New(col.Name, col.SlugFromPath(logical), logical)
			grouped[logical] = base
		}
		if base.I18n == nil {
			base.I18n = map[string]entry.Data{}
		}
		base.I18n[locale] = e.Data
	}

	out := make([]*entry.Entry, 0, len(order))
	for _, logical := range order {
		out = append(out, grouped[logical])
	}
	return out
}

// Backup serializes every locale of an entry to its raw form for the local
// draft backup record.
func Backup(
	col *config.Collection,
	e *entry.Entry,
	toRaw func(entry.Data) (string, error),
) (map[string]string, error) {
	if !col.HasI18n() || len(e.I18n) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(e.I18n))
	for locale, data := range e.I18n {
		raw, err := toRaw(data)
		if err != nil {
			return nil, fmt.Errorf("serialize locale %s backup: %w", locale, err)
		}
		out[locale] = raw
	}
	return out, nil
}

// RestoreBackup re-parses per-locale raw backups through the format
// pipeline.
func RestoreBackup(
	raws map[string]string,
	fromRaw func(string) (entry.Data, error),
) (map[string]entry.Data, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make(map[string]entry.Data, len(raws))
	for locale, raw := range raws {
		data, err := fromRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("parse locale %s backup: %w", locale, err)
		}
		out[locale] = data
	}
	return out, nil
}
