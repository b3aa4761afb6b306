package ingest

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownSource  = errors.New("unknown source id")
	ErrNoListingURLs  = errors.New("source has no listing urls")
	ErrUnknownListing = errors.New("unknown listing style")
)

// FetchError reports a failed retrieval. It is always recoverable: the
// caller logs it and moves on to the next URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Time       time.Time
}

func NewFetchError(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Err: err, Time: time.Now()}
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IntegrityError means an assembled record claims a source other than the
// adapter that produced it. The whole batch is rejected when this happens.
type IntegrityError struct {
	SourceID string
	Expected string
	Got      string
	Row      int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("source integrity violation in %s: record %d has source %q, want %q",
		e.SourceID, e.Row, e.Got, e.Expected)
}

// IsIntegrityError reports whether err carries an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
