package config

import (
	"path"
	"strings"
)

// defaultExtension is used when a collection declares neither an extension
// nor a format.
const defaultExtension = "md"

// EntryExtension returns the file extension (no dot) for a folder
// collection's entries.
func (c *Collection) EntryExtension() string {
	if c.Extension != "" {
		return strings.TrimPrefix(c.Extension, ".")
	}
	switch c.Format {
	case "yaml", "yml":
		return "yml"
	case "json":
		return "json"
	case "frontmatter", "":
		return defaultExtension
	default:
		return defaultExtension
	}
}

// IsFileCollection reports whether the collection is a fixed file list
// rather than folder-based.
func (c *Collection) IsFileCollection() bool {
	return len(c.Files) > 0
}

// File returns the named file of a files collection, or nil.
func (c *Collection) File(name string) *CollectionFile {
	for i := range c.Files {
		if c.Files[i].Name == name {
			return &c.Files[i]
		}
	}
	return nil
}

// EntryPath returns the repository-relative path for a slug. For file
// collections the slug names the collection file.
func (c *Collection) EntryPath(slug string) string {
	if c.IsFileCollection() {
		if f := c.File(slug); f != nil {
			return f.File
		}
		return ""
	}
	rel := slug
	if c.Path != "" {
		rel = strings.ReplaceAll(c.Path, "{{slug}}", slug)
	}
	return path.Join(c.Folder, rel) + "." + c.EntryExtension()
}

// SlugFromPath derives the slug for a repository path, stripping the
// collection folder prefix and the extension.
func (c *Collection) SlugFromPath(p string) string {
	if c.IsFileCollection() {
		for i := range c.Files {
			if c.Files[i].File == p {
				return c.Files[i].Name
			}
		}
		return strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	rel := strings.TrimPrefix(p, c.Folder)
	rel = strings.TrimPrefix(rel, "/")
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// AllowsNewEntries reports whether entries may be created in this
// collection.
func (c *Collection) AllowsNewEntries() bool {
	return c.Create && !c.IsFileCollection()
}

// AllowsDeletion reports whether entries may be deleted from this
// collection. Deletion defaults to allowed.
func (c *Collection) AllowsDeletion() bool {
	if c.Delete == nil {
		return true
	}
	return *c.Delete
}

// Depth returns how many path segments below the collection folder the
// listing must descend to find entries.
func (c *Collection) Depth() int {
	if c.NestedDepth > 0 {
		return c.NestedDepth
	}
	depth := 1
	if c.Path != "" {
		depth = strings.Count(c.Path, "/") + 1
	}
	if c.HasI18n() && c.I18n.Structure == I18nMultipleFolders {
		depth++
	}
	return depth
}

// HasI18n reports whether the collection is internationalized.
func (c *Collection) HasI18n() bool {
	return c.I18n != nil && len(c.I18n.Locales) > 0 && c.I18n.Structure != ""
}

// SearchFields returns the field names used for scored search over this
// collection.
func (c *Collection) SearchFields() []string {
	if c.IsFileCollection() {
		seen := map[string]struct{}{}
		var fields []string
		for i := range c.Files {
			for _, f := range c.Files[i].Fields {
				if _, ok := seen[f.Name]; ok {
					continue
				}
				seen[f.Name] = struct{}{}
				fields = append(fields, f.Name)
			}
		}
		return fields
	}
	if len(c.Fields) > 0 {
		fields := make([]string, 0, len(c.Fields))
		for _, f := range c.Fields {
			fields = append(fields, f.Name)
		}
		return fields
	}
	return []string{"title"}
}
