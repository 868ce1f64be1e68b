package oci

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// ErrNotFound is returned when the registry answers 404 for a repository,
// manifest, or blob.
var ErrNotFound = errors.New("not found in registry")

// NetworkError wraps a transport-level failure: the request never produced
// an HTTP response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("registry network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RegistryError reports an unexpected HTTP status from the registry.
type RegistryError struct {
	Status int
	Body   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry error: HTTP %d: %s", e.Status, e.Body)
}

// IntegrityError reports content whose digest does not match the descriptor
// that named it. The payload must never be trusted.
type IntegrityError struct {
	Expected digest.Digest
	Computed digest.Digest
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("digest mismatch: expected %s, got %s", e.Expected, e.Computed)
}
