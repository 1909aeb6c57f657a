package format

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/statichq/gitcms/internal/entry"
)

// YAML reads and writes whole-file YAML entries.
type YAML struct{}

// Name implements Codec.
func (YAML) Name() string { return "yaml" }

// FromRaw implements Codec.
func (YAML) FromRaw(raw string) (entry.Data, error) {
	data := entry.Data{}
	if err := yaml.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return data, nil
}

// ToRaw implements Codec.
func (YAML) ToRaw(data entry.Data) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal yaml: %w", err)
	}
	return string(out), nil
}
