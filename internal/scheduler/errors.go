package scheduler

import "errors"

var (
	ErrInvalidSessionKey = errors.New("automation requires a valid session key")
	ErrInvalidAliasKey   = errors.New("alias key has invalid format")
	ErrInvalidInterval   = errors.New("interval must be positive")
	ErrInvalidFirstDelay = errors.New("first delay cannot be negative")
)
