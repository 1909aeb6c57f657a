// Package slugutil derives entry slugs from templates and formats commit
// messages from the configured templates.
package slugutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/statichq/gitcms/internal/config"
	"github.com/statichq/gitcms/internal/entry"
)

var (
	templateVar = regexp.MustCompile(`\{\{([a-zA-Z0-9_.-]+)\}\}`)
	unsafeRuns  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Sanitize lowercases s and collapses every unsafe character run into the
// configured replacement separator.
func Sanitize(s string, cfg config.SlugConfig) string {
	sep := cfg.Replacement()
	out := unsafeRuns.ReplaceAllString(strings.ToLower(s), sep)
	return strings.Trim(out, sep)
}

// Format renders a collection's slug template against entry data. An empty
// template falls back to "{{slug}}", which resolves to the sanitized title
// field. Date variables resolve against now.
func Format(template string, data entry.Data, cfg config.SlugConfig, now time.Time) string {
	if template == "" {
		template = "{{slug}}"
	}
	return templateVar.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.Trim(m, "{}")
		switch name {
		case "slug":
			title, _ := data["title"].(string)
			return Sanitize(title, cfg)
		case "year":
			return fmt.Sprintf("%04d", now.Year())
		case "month":
			return fmt.Sprintf("%02d", int(now.Month()))
		case "day":
			return fmt.Sprintf("%02d", now.Day())
		default:
			name = strings.TrimPrefix(name, "fields.")
			if v, ok := data[name]; ok {
				return Sanitize(fmt.Sprint(v), cfg)
			}
			return ""
		}
	})
}

// SlugFromPath derives a slug from an explicit custom path: the file stem
// of the last segment.
func SlugFromPath(customPath string) string {
	base := customPath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// CommitVars are the variables available to commit message templates.
type CommitVars struct {
	Collection  string
	Slug        string
	Path        string
	AuthorLogin string
	AuthorName  string
}

// Default commit message templates per action.
var defaultMessages = map[string]string{
	"create":      "Create {{collection}} “{{slug}}”",
	"update":      "Update {{collection}} “{{slug}}”",
	"delete":      "Delete {{collection}} “{{slug}}”",
	"uploadMedia": "Upload “{{path}}”",
	"deleteMedia": "Delete “{{path}}”",
}

// CommitMessage renders the commit message for an action.
func CommitMessage(action string, vars CommitVars) string {
	template, ok := defaultMessages[action]
	if !ok {
		template = defaultMessages["update"]
	}
	return templateVar.ReplaceAllStringFunc(template, func(m string) string {
		switch strings.Trim(m, "{}") {
		case "collection":
			return vars.Collection
		case "slug":
			return vars.Slug
		case "path":
			return vars.Path
		case "author-login":
			return vars.AuthorLogin
		case "author-name":
			return vars.AuthorName
		default:
			return ""
		}
	})
}
