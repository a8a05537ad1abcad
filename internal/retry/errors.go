// Package retry provides the error taxonomy and bounded retry policy used at
// every collaborator call boundary in the pipeline.
package retry

import (
	"errors"
	"fmt"
)

// errClass partitions errors into the retry taxonomy. An error's class
// determines whether the policy retries it or escalates immediately.
type errClass int

const (
	classPermanent errClass = iota
	classTransient
	classResource
)

// classifiedError wraps an error with its retry class.
type classifiedError struct {
	class errClass
	err   error
}

func (e *classifiedError) Error() string {
	switch e.class {
	case classTransient:
		return fmt.Sprintf("transient: %v", e.err)
	case classResource:
		return fmt.Sprintf("resource: %v", e.err)
	default:
		return fmt.Sprintf("permanent: %v", e.err)
	}
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks err as retryable (service unavailability, rate limiting,
// temporary file locks). Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: classTransient, err: err}
}

// Permanent marks err as non-retryable (malformed content, explicit
// collaborator rejection). Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: classPermanent, err: err}
}

// Resource marks err as a resource failure (disk full, permission denied).
// Resource errors are not retried but are distinguished in failure records.
func Resource(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: classResource, err: err}
}

// IsTransient reports whether err is marked transient anywhere in its chain.
func IsTransient(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.class == classTransient
	}
	return false
}

// IsResource reports whether err is marked as a resource failure.
func IsResource(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.class == classResource
	}
	return false
}

// ClassOf names err's retry class for diagnostics. Unclassified errors
// report as permanent, matching how the policy treats them.
func ClassOf(err error) string {
	var classified *classifiedError
	if !errors.As(err, &classified) {
		return "permanent"
	}
	switch classified.class {
	case classTransient:
		return "transient"
	case classResource:
		return "resource"
	default:
		return "permanent"
	}
}
