package types

import "errors"

var (
	ErrInvalidSessionKey    = errors.New("session key must be 1-64 characters, alphanumeric + dot/underscore/hyphen")
	ErrInvalidParticipantID = errors.New("participant ID must be 1-64 characters, alphanumeric + dot/underscore/hyphen")
	ErrMissingQuestionID    = errors.New("quiz message missing question ID")
	ErrEmptyQuestionText    = errors.New("question text cannot be empty")
	ErrTooFewOptions        = errors.New("question needs at least two answer options")
	ErrInvalidTimeLimit     = errors.New("time limit cannot be negative")
)
