// Package cmd provides the CLI commands for gitcms.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/statichq/gitcms/internal/backend"
	"github.com/statichq/gitcms/internal/cursor"
	"github.com/statichq/gitcms/internal/entry"
)

// displayEntries prints an entry listing.
//
//nolint:forbidigo // CLI user output function
func displayEntries(entries []*entry.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries found.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %s", e.Slug, e.Path)
		if e.Author != "" {
			line += fmt.Sprintf("  (by %s", e.Author)
			if !e.UpdatedOn.IsZero() {
				line += ", " + e.UpdatedOn.Format(time.RFC3339)
			}
			line += ")"
		}
		fmt.Println(line)
	}
}

// displayCursorMeta prints the pagination position of a listing page.
//
//nolint:forbidigo // CLI user output function
func displayCursorMeta(c cursor.Cursor) {
	meta := c.Meta()
	if meta.PageCount == 0 {
		return
	}
	fmt.Printf("\nPage %d of %d (%d entries", meta.Page+1, meta.PageCount, meta.Count)
	if actions := c.Actions(); len(actions) > 0 {
		verbs := make([]string, len(actions))
		for i, a := range actions {
			verbs[i] = string(a)
		}
		fmt.Printf(", actions: %s", strings.Join(verbs, ", "))
	}
	fmt.Println(")")
}

// displayEntry prints one entry with its raw content.
//
//nolint:forbidigo // CLI user output function
func displayEntry(e *entry.Entry) {
	fmt.Printf("collection: %s\n", e.Collection)
	fmt.Printf("slug:       %s\n", e.Slug)
	fmt.Printf("path:       %s\n", e.Path)
	if e.Author != "" {
		fmt.Printf("author:     %s\n", e.Author)
	}
	if !e.UpdatedOn.IsZero() {
		fmt.Printf("updated:    %s\n", e.UpdatedOn.Format(time.RFC3339))
	}
	if len(e.MediaFiles) > 0 {
		fmt.Printf("media:      %d file(s)\n", len(e.MediaFiles))
	}
	fmt.Println()
	fmt.Println(e.Raw)
}

// displayNoDraft prints the no-draft message.
//
//nolint:forbidigo // CLI user output function
func displayNoDraft(collection, slug string) {
	if slug == "" {
		fmt.Printf("No draft backup for collection %q.\n", collection)
		return
	}
	fmt.Printf("No draft backup for %s/%s.\n", collection, slug)
}

// displayMedia prints a media listing.
//
//nolint:forbidigo // CLI user output function
func displayMedia(files []entry.MediaFile) {
	if len(files) == 0 {
		fmt.Println("No media files found.")
		return
	}
	for _, f := range files {
		fmt.Printf("  %s  %d bytes  %s\n", f.Path, f.Size, f.ID)
	}
}

// displaySearchResults prints scored search hits.
//
//nolint:forbidigo // CLI user output function
func displaySearchResults(results []backend.SearchResult) {
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		fmt.Printf("  %4d  %s/%s  %s\n", r.Score, r.Entry.Collection, r.Entry.Slug, r.Entry.Path)
	}
}

// displayBranches prints a branch listing.
//
//nolint:forbidigo // CLI user output function
func displayBranches(branches []backend.Branch) {
	for _, br := range branches {
		mark := ""
		if br.Protected {
			mark = " (protected)"
		}
		fmt.Printf("  %s  %s%s\n", br.Name, br.SHA, mark)
	}
}

// displayPulls prints a pull request listing.
//
//nolint:forbidigo // CLI user output function
func displayPulls(pulls []backend.Pull) {
	if len(pulls) == 0 {
		fmt.Println("No open pull requests.")
		return
	}
	for _, p := range pulls {
		fmt.Printf("  #%d  %s  (%s)\n", p.Number, p.Title, p.Head)
	}
}

// displayStatus prints the backend health summary.
//
//nolint:forbidigo // CLI user output function
func displayStatus(s backend.Status) {
	boolWord := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "DOWN"
	}
	fmt.Printf("auth: %s\n", boolWord(s.AuthOK))
	fmt.Printf("api:  %s\n", boolWord(s.APIOK))
	for _, incident := range s.Incidents {
		fmt.Printf("  incident: %s\n", incident)
	}
}

// displayUser prints the authenticated user.
//
//nolint:forbidigo // CLI user output function
func displayUser(u *backend.User) {
	fmt.Printf("backend: %s\n", u.BackendName)
	fmt.Printf("login:   %s\n", u.Login)
	if u.Name != "" {
		fmt.Printf("name:    %s\n", u.Name)
	}
}
