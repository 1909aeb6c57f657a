package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/entry"
)

// TestFrontmatter_RoundTrip verifies fields and body survive a
// serialize/parse cycle.
func TestFrontmatter_RoundTrip(t *testing.T) {
	t.Parallel()

	data := entry.Data{
		"title": "Hello World",
		"draft": true,
		"body":  "Some **markdown** content.",
	}

	raw, err := (Frontmatter{}).ToRaw(data)
	if err != nil {
		t.Fatalf("ToRaw failed: %v", err)
	}
	if !strings.HasPrefix(raw, "---\n") {
		t.Fatalf("expected frontmatter delimiter, got %q", raw)
	}

	parsed, err := (Frontmatter{}).FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}
	if parsed["title"] != "Hello World" {
		t.Errorf("title not preserved: %v", parsed["title"])
	}
	if parsed["draft"] != true {
		t.Errorf("draft not preserved: %v", parsed["draft"])
	}
	if parsed["body"] != "Some **markdown** content." {
		t.Errorf("body not preserved: %q", parsed["body"])
	}
}

// TestFrontmatter_Missing verifies a file without a frontmatter block is
// rejected with the sentinel error.
func TestFrontmatter_Missing(t *testing.T) {
	t.Parallel()

	_, err := (Frontmatter{}).FromRaw("just a body\n")
	if !errors.Is(err, apperrors.ErrNoFrontmatter) {
		t.Fatalf("expected ErrNoFrontmatter, got %v", err)
	}
}

// TestFrontmatter_NotClosed verifies an unterminated block is rejected.
func TestFrontmatter_NotClosed(t *testing.T) {
	t.Parallel()

	_, err := (Frontmatter{}).FromRaw("---\ntitle: x\n")
	if !errors.Is(err, apperrors.ErrFrontmatterNotClosed) {
		t.Fatalf("expected ErrFrontmatterNotClosed, got %v", err)
	}
}

// TestToRaw_EmptyData verifies empty drafts serialize to nothing, for all
// codecs; the backup store relies on this to skip blank drafts.
func TestToRaw_EmptyData(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{Frontmatter{}, YAML{}, JSON{}} {
		raw, err := codec.ToRaw(entry.Data{})
		if err != nil {
			t.Fatalf("%s: ToRaw failed: %v", codec.Name(), err)
		}
		if strings.TrimSpace(raw) != "" {
			t.Errorf("%s: expected empty output, got %q", codec.Name(), raw)
		}
	}
}

// TestJSON_RoundTrip verifies nested values survive the JSON codec.
func TestJSON_RoundTrip(t *testing.T) {
	t.Parallel()

	data := entry.Data{
		"title": "post",
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"weight": int64(3)},
	}

	raw, err := (JSON{}).ToRaw(data)
	if err != nil {
		t.Fatalf("ToRaw failed: %v", err)
	}
	parsed, err := (JSON{}).FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}
	if parsed["title"] != "post" {
		t.Errorf("title not preserved: %v", parsed["title"])
	}
	tags, ok := parsed["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("tags not preserved: %v", parsed["tags"])
	}
}

// TestByExtension verifies extension resolution and the unknown case.
func TestByExtension(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ext  string
		want string
	}{
		{"md", "frontmatter"},
		{".markdown", "frontmatter"},
		{"yml", "yaml"},
		{"yaml", "yaml"},
		{"json", "json"},
	}
	for _, tc := range cases {
		codec, err := ByExtension(tc.ext)
		if err != nil {
			t.Fatalf("ByExtension(%q) failed: %v", tc.ext, err)
		}
		if codec.Name() != tc.want {
			t.Errorf("ByExtension(%q) = %s, want %s", tc.ext, codec.Name(), tc.want)
		}
	}

	if _, err := ByExtension("exe"); !errors.Is(err, apperrors.ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
