package embedder

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from an embedding backend.
type HTTPError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s embedder: HTTP %d", e.Backend, e.StatusCode)
}

// retryable reports whether err may succeed on another attempt. Client
// errors other than timeouts and rate limiting will fail again.
func retryable(err error) bool {
	var herr *HTTPError
	if !errors.As(err, &herr) {
		return true
	}
	switch {
	case herr.StatusCode == http.StatusRequestTimeout, herr.StatusCode == http.StatusTooManyRequests:
		return true
	case herr.StatusCode >= 400 && herr.StatusCode < 500:
		return false
	}
	return true
}
