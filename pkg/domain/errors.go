package domain

import "errors"

// ErrUnknownFlow is returned when a flow identifier cannot be found in the registry.
var ErrUnknownFlow = errors.New("unknown flow")

// ErrMalformedFlow is returned at load time when a flow graph violates its
// integrity constraints (dangling target, empty classified map, missing start).
var ErrMalformedFlow = errors.New("malformed flow")

// ErrInvalidState is returned when a session's current node is not part of the
// active flow. It signals a broken session, not a transient condition.
var ErrInvalidState = errors.New("conversation sequence broken")

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")
