package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start or after Stop.
	ErrNotStarted = errors.New("service not started")

	// ErrStopped settles queued imports the workers could not reach before Stop gave up.
	ErrStopped = errors.New("service stopped before import")
)
