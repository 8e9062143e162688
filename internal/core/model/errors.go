package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrExtraction         = errors.New("extraction failed")
	ErrNoExtractions      = errors.New("no extractor produced a result")
	ErrIdentity           = errors.New("cannot derive identity: full name missing")
	ErrConflictUnresolved = errors.New("conflict unresolved")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// NetworkError is a transient fetch failure.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// GraphWriteError is a failed or rolled back store transaction.
type GraphWriteError struct {
	Op  string
	Err error
}

func (e *GraphWriteError) Error() string {
	return fmt.Sprintf("graph write %s: %v", e.Op, e.Err)
}

func (e *GraphWriteError) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether the same stage may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ge *GraphWriteError
	return errors.As(err, &ge)
}
