package httpclient

import "fmt"

// HTTPError represents a non-2xx catalog response
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// ProgressFunc receives the number of body bytes read so far and the expected
// total, or -1 when the server did not announce a length.
type ProgressFunc func(received, total int64)
