package rag

import "errors"

var (
	// ErrEmptyDocument reports a file that parsed but produced no usable text.
	ErrEmptyDocument = errors.New("no text found in document")

	// ErrSessionNotFound covers both truly unknown sessions and sessions owned
	// by a different user, so callers cannot probe for other users' ids.
	ErrSessionNotFound = errors.New("session not found")
)
