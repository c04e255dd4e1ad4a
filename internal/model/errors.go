package model

import "errors"

// Common errors used across the application
var (
	// Profile cache errors
	ErrPeerNotFound = errors.New("peer profile not found")
	ErrSelfNotFound = errors.New("no profile is marked as self")

	// Push event errors
	ErrMalformedEvent = errors.New("malformed event")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoCredentials    = errors.New("no stored credentials")
)
