package ai

import (
	"errors"
	"fmt"
)

// Returned by provider constructors when required credentials are absent.
var (
	ErrEmbeddingUnavailable  = errors.New("embedding backend unavailable: missing credentials")
	ErrGenerationUnavailable = errors.New("generation backend unavailable: missing credentials")
)

// RequestError reports a non-success response from an AI backend, carrying
// the backend's status code and message.
type RequestError struct {
	Backend string
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s api error: status %d: %s", e.Backend, e.Status, e.Message)
	}
	return fmt.Sprintf("%s api error: status %d", e.Backend, e.Status)
}
