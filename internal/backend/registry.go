package backend

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/statichq/gitcms/internal/apperrors"
	"github.com/statichq/gitcms/internal/config"
)

// Factory builds a provider from configuration. Providers register a
// factory at application wiring time; the facade never imports them.
type Factory func(cfg *config.Config, token string, logger *slog.Logger) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}

	currentMu sync.RWMutex
	current   *Backend
)

// Register makes a provider available under a configuration name.
// Registering the same name twice replaces the earlier factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Resolve builds the backend selected by the configuration and makes it the
// process-wide current backend.
func Resolve(cfg *config.Config, token string, logger *slog.Logger, opts ...Option) (*Backend, error) {
	if cfg.Backend.Name == "" {
		return nil, apperrors.ErrNoBackendConfigured
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Backend.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", cfg.Backend.Name, apperrors.ErrBackendNotRegistered)
	}

	provider, err := factory(cfg, token, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize %s backend: %w", cfg.Backend.Name, err)
	}

	b := New(cfg, provider, opts...)

	currentMu.Lock()
	current = b
	currentMu.Unlock()
	return b, nil
}

// Current returns the backend from the last successful Resolve.
func Current() (*Backend, error) {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if current == nil {
		return nil, apperrors.ErrNoBackendConfigured
	}
	return current, nil
}
