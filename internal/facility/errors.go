package facility

import "errors"

var (
	// ErrNotFound reports a missing user, resource, task, job or file.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized reports a credential that did not resolve to an identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument reports a malformed request or task argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported reports an operation the backend does not provide.
	ErrUnsupported = errors.New("unsupported")
	// ErrUnavailable reports a temporarily exhausted capacity, such as a full
	// task queue. Clients may retry.
	ErrUnavailable = errors.New("service unavailable")
	// ErrTaskTerminal is returned when mutating a task that already finished.
	ErrTaskTerminal = errors.New("task is in a terminal state")
	// ErrInvalidTransition is returned for a backward or repeated status change.
	ErrInvalidTransition = errors.New("invalid task status transition")
)
