// Package format provides the serialization pipeline between an entry's
// structured data and its raw on-disk representation. The same codecs are
// used for real persistence and for local draft backups, so a backup
// round-trips through exactly the bytes a publish would write.
package format

import (
	"fmt"
	"strings"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/entry"
)

// BodyField is the data key holding the content below the frontmatter.
const BodyField = "body"

// Codec converts between raw file content and structured entry data.
type Codec interface {
	Name() string
	FromRaw(raw string) (entry.Data, error)
	ToRaw(data entry.Data) (string, error)
}

// ByExtension resolves the codec for a file extension (without the dot).
func ByExtension(ext string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown", "mdx", "html":
		return Frontmatter{}, nil
	case "yml", "yaml":
		return YAML{}, nil
	case "json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("%w: extension %q", apperrors.ErrUnknownFormat, ext)
	}
}
