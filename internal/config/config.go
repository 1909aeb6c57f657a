// Package config holds the resolved application configuration the backend
// core consumes: backend connection settings, collections, slug rules and
// the media folder.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment variables read by the loader.
const EnvPrefix = "GITCMS_"

// BackendConfig is the connection section of the configuration.
type BackendConfig struct {
	// Name selects the provider: "github" or "localgit".
	Name    string `yaml:"name"`
	Repo    string `yaml:"repo"`
	Branch  string `yaml:"branch"`
	APIRoot string `yaml:"api_root"`
	// LocalRepoPath is the repository location for the localgit provider.
	LocalRepoPath string `yaml:"local_repo_path"`
}

// SlugConfig controls how slugs are derived and sanitized.
type SlugConfig struct {
	Encoding            string `yaml:"encoding"`
	CleanAccents        bool   `yaml:"clean_accents"`
	SanitizeReplacement string `yaml:"sanitize_replacement"`
}

// Replacement returns the separator used when sanitizing characters and
// when suffixing collision counters.
func (s SlugConfig) Replacement() string {
	if s.SanitizeReplacement == "" {
		return "-"
	}
	return s.SanitizeReplacement
}

// I18nStructure governs whether one entry's locales live in one file or in
// parallel per-locale files.
type I18nStructure string

// Supported i18n structures.
const (
	I18nSingleFile      I18nStructure = "single_file"
	I18nMultipleFiles   I18nStructure = "multiple_files"
	I18nMultipleFolders I18nStructure = "multiple_folders"
)

// I18nConfig describes a collection's internationalization policy.
type I18nConfig struct {
	Structure     I18nStructure `yaml:"structure"`
	Locales       []string      `yaml:"locales"`
	DefaultLocale string        `yaml:"default_locale"`
}

// Default returns the default locale, falling back to the first configured.
func (c *I18nConfig) Default() string {
	if c.DefaultLocale != "" {
		return c.DefaultLocale
	}
	if len(c.Locales) > 0 {
		return c.Locales[0]
	}
	return ""
}

// Field is a content field declaration; the core only needs names for
// search and serialization ordering.
type Field struct {
	Name string `yaml:"name"`
}

// CollectionFile is one named file of a files-type collection.
type CollectionFile struct {
	Name   string  `yaml:"name"`
	Label  string  `yaml:"label"`
	File   string  `yaml:"file"`
	Fields []Field `yaml:"fields"`
}

// Collection is a configured category of entries, either folder-based or a
// fixed file list.
type Collection struct {
	Name        string           `yaml:"name"`
	Label       string           `yaml:"label"`
	Folder      string           `yaml:"folder"`
	Files       []CollectionFile `yaml:"files"`
	Path        string           `yaml:"path"`
	Extension   string           `yaml:"extension"`
	Format      string           `yaml:"format"`
	Create      bool             `yaml:"create"`
	Delete      *bool            `yaml:"delete"`
	Slug        string           `yaml:"slug"`
	Summary     string           `yaml:"summary"`
	Filter      *FilterRule      `yaml:"filter"`
	Fields      []Field          `yaml:"fields"`
	I18n        *I18nConfig      `yaml:"i18n"`
	NestedDepth int              `yaml:"nested_depth"`
	MediaFolder string           `yaml:"media_folder"`
}

// FilterRule restricts a folder collection to entries whose field equals a
// value.
type FilterRule struct {
	Field string `yaml:"field"`
	Value any    `yaml:"value"`
}

// Config is the resolved configuration consumed by the backend core.
type Config struct {
	Backend     BackendConfig `yaml:"backend"`
	MediaFolder string        `yaml:"media_folder"`
	Slug        SlugConfig    `yaml:"slug"`
	Collections []Collection  `yaml:"collections"`
}

// Collection returns the named collection, or nil.
func (c *Config) Collection(name string) *Collection {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i]
		}
	}
	return nil
}

// Load reads a YAML configuration file and applies environment overrides.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is operator controlled
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv overlays GITCMS_-prefixed environment variables on top of the
// file configuration.
func (c *Config) applyEnv() error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if v := k.String("repo"); v != "" {
		c.Backend.Repo = v
	}
	if v := k.String("branch"); v != "" {
		c.Backend.Branch = v
	}
	if v := k.String("api_root"); v != "" {
		c.Backend.APIRoot = v
	}
	if v := k.String("backend"); v != "" {
		c.Backend.Name = v
	}
	if v := k.String("local_repo_path"); v != "" {
		c.Backend.LocalRepoPath = v
	}
	if v := k.String("media_folder"); v != "" {
		c.MediaFolder = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Branch == "" {
		c.Backend.Branch = "main"
	}
	if c.Backend.APIRoot == "" {
		c.Backend.APIRoot = "https://api.github.com"
	}
}
