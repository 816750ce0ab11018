package httpclient

import (
	"errors"
	"fmt"
)

// APIError represents a non-transient error response from a provider.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (URL: %s)", e.StatusCode, e.URL)
}

// IsAPIError extracts an APIError from err.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
