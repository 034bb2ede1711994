package engine

import (
	"errors"

	"strikeline/internal/repo"
)

var (
	// ErrUnauthorized means the actor lacks the role for the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyLocked means another negotiation is already in flight for
	// the same target. Mapped from the store's unique-insert failure.
	ErrAlreadyLocked = errors.New("target already locked by another negotiation")
	// ErrStaleTask means the notification reference no longer matches the
	// task, typically because the task was edited after the message went out.
	ErrStaleTask = errors.New("task is no longer current")
	// ErrNegotiationExpired means the slot outlived its 5-minute TTL and was
	// removed; the negotiation must restart from scratch.
	ErrNegotiationExpired = errors.New("negotiation expired")
	// ErrInvalidInput means malformed point/color/phone text; no state change.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition means the task is not in a state that permits the
	// requested operation.
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// ErrNotFound is re-exported so callers need not import repo for the common case.
var ErrNotFound = repo.ErrNotFound
