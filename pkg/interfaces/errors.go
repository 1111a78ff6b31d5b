package interfaces

import "errors"

// Shared sentinel errors crossing component boundaries.
var (
	// ErrChannelClosed marks a channel as unrecoverably gone. Send failures
	// wrapping this error cause eviction from the room; any other send
	// failure is treated as transient.
	ErrChannelClosed = errors.New("channel closed")

	// ErrNoQuestions is returned by question sources when every tier of the
	// pool is empty.
	ErrNoQuestions = errors.New("no questions available")

	// ErrSessionNotFound is returned when a session record does not exist.
	ErrSessionNotFound = errors.New("session not found")
)
