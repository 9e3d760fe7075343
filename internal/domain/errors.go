package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrFetch             = errors.New("fetch failure")
	ErrParse             = errors.New("parse failure")
	ErrCache             = errors.New("cache failure")
	ErrInvalidTransition = errors.New("invalid load state transition")
	ErrUnknownDomain     = errors.New("unknown data domain")
)

// LoadError describes why a domain failed to load. Both Kind and the
// underlying cause are reachable through errors.Is and errors.As.
type LoadError struct {
	Kind   error
	Domain DataDomain
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v: %v", e.Domain, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s: %v", e.Domain, e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewFetchError wraps a transport failure.
func NewFetchError(d DataDomain, path string, err error) error {
	return &LoadError{Kind: ErrFetch, Domain: d, Path: path, Err: err}
}

// NewParseError wraps a malformed payload failure.
func NewParseError(d DataDomain, path string, err error) error {
	return &LoadError{Kind: ErrParse, Domain: d, Path: path, Err: err}
}

// NewCacheError wraps a failure surfaced to the waiters of a shared fetch.
func NewCacheError(d DataDomain, err error) error {
	return &LoadError{Kind: ErrCache, Domain: d, Err: err}
}
