package services

import "errors"

var (
	// ErrSessionNotFound is returned for session ids that are not open
	ErrSessionNotFound = errors.New("wizard session not found")
	// ErrSessionLimit is returned when the configured session limit is reached
	ErrSessionLimit = errors.New("too many open wizard sessions")
	// ErrSigningUnsupported is returned when the store cannot mark documents signed
	ErrSigningUnsupported = errors.New("document signing is not supported by the configured store")
	// ErrListingUnsupported is returned when the store cannot enumerate records
	ErrListingUnsupported = errors.New("record listing is not supported by the configured store")
)
