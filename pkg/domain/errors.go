package domain

import "errors"

// ErrSessionNotFound is returned when a conversation ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotFound is returned when a referenced record does not exist in the record service.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when the record service rejects a write as a duplicate.
var ErrConflict = errors.New("record conflict")

// ErrCacheUnavailable is returned when the lookup directory could not be refreshed.
var ErrCacheUnavailable = errors.New("lookup cache unavailable")

// ErrInvalidTransition is returned when a step reports a token the routing table does not declare.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrorKind classifies a failure recorded in the conversation state.
type ErrorKind string

const (
	ErrorValidation       ErrorKind = "validation"
	ErrorNotFound         ErrorKind = "not_found"
	ErrorRoutingViolation ErrorKind = "routing_violation"
	ErrorTransport        ErrorKind = "transport"
	ErrorCacheUnavailable ErrorKind = "cache_unavailable"
	ErrorInternal         ErrorKind = "internal"
)

// Failure is the last-failure descriptor kept in State.LastError.
// Turn is the State.Turns value of the turn that recorded it.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Turn    int       `json:"turn"`
}
