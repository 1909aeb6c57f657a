package format

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/entry"
)

const delimiter = "---"

// Frontmatter reads and writes markdown files with a YAML frontmatter
// block. The content below the closing delimiter is kept under BodyField.
type Frontmatter struct{}

// Name implements Codec.
func (Frontmatter) Name() string { return "frontmatter" }

// FromRaw implements Codec.
func (Frontmatter) FromRaw(raw string) (entry.Data, error) {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	if !strings.HasPrefix(normalized, delimiter+"\n") {
		return nil, apperrors.ErrNoFrontmatter
	}

	rest := normalized[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, apperrors.ErrFrontmatterNotClosed
	}

	head := rest[:end+1]
	body := rest[end+len(delimiter)+1:]
	body = strings.TrimPrefix(body, "\n")

	data := entry.Data{}
	if err := yaml.Unmarshal([]byte(head), &data); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if strings.TrimSpace(body) != "" {
		data[BodyField] = strings.TrimRight(body, "\n")
	}
	return data, nil
}

// ToRaw implements Codec. Empty data serializes to an empty string so
// callers can treat a blank draft as nothing to write.
func (Frontmatter) ToRaw(data entry.Data) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	body, _ := data[BodyField].(string)
	fields := make(entry.Data, len(data))
	for k, v := range data {
		if k == BodyField {
			continue
		}
		fields[k] = v
	}

	var sb strings.Builder
	sb.WriteString(delimiter + "\n")
	if len(fields) > 0 {
		head, err := yaml.Marshal(fields)
		if err != nil {
			return "", fmt.Errorf("marshal frontmatter: %w", err)
		}
		sb.Write(head)
	}
	sb.WriteString(delimiter + "\n")
	if body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
