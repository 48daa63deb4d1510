package fetcher

import (
	"errors"
	"fmt"
)

// ErrNotModified reports that the remote feed has not changed since the last fetch
var ErrNotModified = errors.New("feed not modified")

// HTTPError is returned for any response status of 300 and above other than 304
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}
