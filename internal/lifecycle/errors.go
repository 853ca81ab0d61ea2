package lifecycle

import "errors"

var (
	ErrResourceNotFound = errors.New("resource not found")

	// ErrAlreadySuspended and ErrNotSuspended are expected outcomes when a
	// transition is requested twice; callers branch, nothing is logged as
	// a fault.
	ErrAlreadySuspended = errors.New("resource already suspended")
	ErrNotSuspended     = errors.New("resource not suspended")

	// ErrTerminated rejects any transition on a terminated resource;
	// termination is absorbing.
	ErrTerminated = errors.New("resource is terminated")
)
