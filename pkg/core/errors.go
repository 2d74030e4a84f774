package core

import "errors"

// Common errors.
var (
	ErrReadOnly = errors.New("repository is in read-only mode")

	// ErrInvalidVersion is returned when a checkout names a version that is not a legal successor.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrAlreadyExists is returned when a draft, document, certificate, type or queue entry already occupies an identifier.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyCommitted is returned when a draft operation targets an identifier that holds a committed document.
	ErrAlreadyCommitted = errors.New("already committed")
	// ErrNotFound is returned when a required source is missing.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when a seal does not verify or fetched content is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrRepositoryUnavailable wraps storage and transport failures.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrMalformedIdentifier is returned for identifiers, tags or versions that do not parse.
	ErrMalformedIdentifier = errors.New("malformed identifier")
	// ErrInvalidParameter is returned for structurally invalid inputs.
	ErrInvalidParameter = errors.New("invalid request parameter")
)
