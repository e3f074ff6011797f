package fetch

import (
	"errors"
	"fmt"
)

// ErrNoNextPage is returned by ListingSource.Next when the pager has no
// further page to offer.
var ErrNoNextPage = errors.New("no next page")

// TransientError wraps a timeout or navigation failure that is worth
// retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a non-success response status. Not retried; the URL is
// recorded with the status instead.
type HTTPStatusError struct {
	Status int
	URL    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.Status, e.URL)
}

// ExtractionError marks a record missing a required field. The record is
// dropped and the page continues.
type ExtractionError struct {
	Field string
	URL   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("missing %s (url=%q)", e.Field, e.URL)
}

// ErrorLabel classifies an error for logs and metrics.
func ErrorLabel(err error) string {
	var transient *TransientError
	if errors.As(err, &transient) {
		return "transient"
	}
	var status *HTTPStatusError
	if errors.As(err, &status) {
		return "http_status"
	}
	var extraction *ExtractionError
	if errors.As(err, &extraction) {
		return "extraction"
	}
	return "unexpected"
}
