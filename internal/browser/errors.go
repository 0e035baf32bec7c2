package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked means the platform refused the page: an error status or a bot challenge
	ErrBlocked = errors.New("page blocked")

	// ErrTimeout means a bounded wait expired
	ErrTimeout = errors.New("browser wait timed out")

	// ErrNotFound means a selector matched nothing
	ErrNotFound = errors.New("element not found")
)

// BlockedError carries the reason a page was refused
type BlockedError struct {
	URL    string
	Status int
	Reason string
}

func (e *BlockedError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("page blocked: %s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("page blocked: %s (%s)", e.URL, e.Reason)
}

func (e *BlockedError) Unwrap() error {
	return ErrBlocked
}
