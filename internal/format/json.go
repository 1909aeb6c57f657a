package format

import (
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/statichq/gitcms/internal/entry"
)

const jsonIndent = 2

// JSON reads and writes whole-file JSON entries.
type JSON struct{}

// Name implements Codec.
func (JSON) Name() string { return "json" }

// FromRaw implements Codec.
func (JSON) FromRaw(raw string) (entry.Data, error) {
	parsed, err := oj.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	data, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse json: expected object, got %T", parsed)
	}
	return entry.Data(data), nil
}

// ToRaw implements Codec.
func (JSON) ToRaw(data entry.Data) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	return oj.JSON(map[string]any(data), jsonIndent) + "\n", nil
}
