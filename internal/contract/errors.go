package contract

import "errors"

var (
	ErrMutexViolation = errors.New("more than one sub-option selected under a mutually exclusive option")
	ErrInvalidResize  = errors.New("invalid resize")
	ErrNodeNotFound   = errors.New("node not found")
	ErrInvalidTree    = errors.New("invalid section tree")
	// ErrStaleHTML is returned when a commit carries body HTML that was not derived from the body.
	ErrStaleHTML = errors.New("body html does not match body")
)
