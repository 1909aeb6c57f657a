// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
)

// APIError represents a provider API error with an HTTP status code.
type APIError struct {
	Status   int
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API: HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API: HTTP %d", e.Provider, e.Status)
}

// NewAPIError creates a new APIError.
func NewAPIError(status int, provider, message string) *APIError {
	return &APIError{Status: status, Provider: provider, Message: message}
}

// IsAPIStatus reports whether err is an APIError with one of the given HTTP statuses.
func IsAPIStatus(err error, statuses ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range statuses {
		if apiErr.Status == s {
			return true
		}
	}
	return false
}

// Common static errors used throughout the application.
var (
	// ErrTokenRequired is returned when an API token is required but not provided.
	ErrTokenRequired = errors.New("token required (--token or GITCMS_TOKEN env var)")

	// ErrRepoRequired is returned when the backend configuration has no repository.
	ErrRepoRequired = errors.New("backend requires a \"repo\" in the configuration")

	// ErrNotAuthenticated is returned when an operation requires authentication first.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoWriteAccess is returned when the authenticated user cannot push to the repository.
	ErrNoWriteAccess = errors.New("user account does not have write access to this repo")

	// ErrMaxRetriesExceeded is returned when the maximum number of retries is exceeded.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrUnknownCursorAction is returned when a cursor is asked for an action it does not offer.
	ErrUnknownCursorAction = errors.New("unknown cursor action")

	// ErrLockNotHeld is returned when Release is called on a lock that is not held.
	ErrLockNotHeld = errors.New("lock not held")

	// ErrCollectionNotFound is returned when a collection name does not resolve.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrEntryNotFound is returned when an entry does not exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrNewEntriesNotAllowed is returned when a collection forbids creating entries.
	ErrNewEntriesNotAllowed = errors.New("not allowed to create new entries in this collection")

	// ErrDeletionNotAllowed is returned when a collection forbids deleting entries.
	ErrDeletionNotAllowed = errors.New("not allowed to delete entries in this collection")

	// ErrUnknownFormat is returned when no format codec matches an entry's extension.
	ErrUnknownFormat = errors.New("unknown entry format")

	// ErrNoBackendConfigured is returned when no backend is defined in the configuration.
	ErrNoBackendConfigured = errors.New("no backend defined in configuration")

	// ErrBackendNotRegistered is returned when the configured backend name is unknown.
	ErrBackendNotRegistered = errors.New("backend not registered")

	// ErrCapabilityNotSupported is returned when a provider lacks an optional capability.
	ErrCapabilityNotSupported = errors.New("operation not supported by this backend")

	// ErrBranchNotFound is returned when a branch name does not resolve.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrNoFrontmatter is returned when no frontmatter is found in a markdown file.
	ErrNoFrontmatter = errors.New("no frontmatter found")

	// ErrFrontmatterNotClosed is returned when frontmatter is not properly closed.
	ErrFrontmatterNotClosed = errors.New("frontmatter not closed")
)
