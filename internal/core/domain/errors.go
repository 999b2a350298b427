package domain

import (
	"errors"
	"fmt"
)

// MaxErrorExcerptBytes bounds how much of an upstream response body is kept
// in a typed HTTP error.
const MaxErrorExcerptBytes = 4096

// ErrUnknownModel is returned when a request names a model the engine does
// not expose.
var ErrUnknownModel = errors.New("unknown model")

// HTTPStatusError is a typed upstream failure carrying the status code and a
// truncated excerpt of the response body.
type HTTPStatusError struct {
	Status  int
	Excerpt string
}

// NewHTTPStatusError truncates body to MaxErrorExcerptBytes and wraps it with
// the status code.
func NewHTTPStatusError(status int, body []byte) *HTTPStatusError {
	excerpt := body
	if len(excerpt) > MaxErrorExcerptBytes {
		excerpt = excerpt[:MaxErrorExcerptBytes]
	}
	return &HTTPStatusError{Status: status, Excerpt: string(excerpt)}
}

func (e *HTTPStatusError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Excerpt)
}
