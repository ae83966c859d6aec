package agent

import "errors"

// Sentinel errors for the answering pipeline. Check with errors.Is().
var (
	// ErrInvalidSessionID rejects a session id outside 3-100 characters.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrEmptyMessage rejects a blank message.
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrMessageTooLong rejects a message over the size limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrInvalidHistory rejects a caller-supplied history override with
	// unknown roles or oversized contents.
	ErrInvalidHistory = errors.New("invalid history override")

	// ErrSessionBusy reports that another request holds this session's
	// turn lock and it could not be acquired within the lock timeout.
	ErrSessionBusy = errors.New("session busy")

	// ErrGeneration wraps a generation-provider failure. The turn is
	// fatal: no partial text is returned and nothing is persisted.
	ErrGeneration = errors.New("generation failed")
)
