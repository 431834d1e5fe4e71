package recorder

import "errors"

var (
	// ErrPermissionDenied means continuous location access is not authorized.
	ErrPermissionDenied = errors.New("location permission not granted")

	// ErrNoSession means there is no completed session to hand off.
	ErrNoSession = errors.New("no completed recording session")

	// ErrNotCompleted means the session is still recording or paused.
	ErrNotCompleted = errors.New("recording session has not been stopped")

	// ErrEmptyRoute means the session has no accepted points.
	ErrEmptyRoute = errors.New("recording session has an empty route")
)
