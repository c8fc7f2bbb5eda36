package concern

import "errors"

// Validation errors are detected before any network call and surfaced
// straight to the user; transport errors from the stores are wrapped
// and pass through unchanged.
var (
	ErrEmptyMessage  = errors.New("message text must not be empty")
	ErrNoChild       = errors.New("a child must be selected")
	ErrUnknownStatus = errors.New("unknown thread status")
	ErrThreadSolved  = errors.New("this concern has been solved, conversation is closed")
	ErrNoSelection   = errors.New("no thread selected")
	ErrNotFound      = errors.New("thread not found")

	ErrRoleNotAllowed = errors.New("action not available for this role")
	ErrUnknownAction  = errors.New("unknown action")
)
