package types

import (
	"regexp"
)

var keyRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// IsValidSessionKey checks a session or alias key: 1-64 characters,
// alphanumeric plus dot/underscore/hyphen.
func IsValidSessionKey(key string) bool {
	if len(key) < 1 || len(key) > 64 {
		return false
	}
	return keyRegex.MatchString(key)
}

// IsValidParticipantID applies the same format rules as session keys.
func IsValidParticipantID(id string) bool {
	return IsValidSessionKey(id)
}

// Validate ensures a quiz message is deliverable.
func (m *QuizMessage) Validate() error {
	if !IsValidSessionKey(m.SessionKey) {
		return ErrInvalidSessionKey
	}
	if m.QuestionID == "" {
		return ErrMissingQuestionID
	}
	if len(m.Options) < 2 {
		return ErrTooFewOptions
	}
	if m.TimeLimitSeconds < 0 {
		return ErrInvalidTimeLimit
	}
	return nil
}

// Validate ensures a bank question can produce a valid quiz message.
func (q *Question) Validate() error {
	if q.Text == "" {
		return ErrEmptyQuestionText
	}
	if len(q.Options) < 2 {
		return ErrTooFewOptions
	}
	if q.SessionKey != "" && !IsValidSessionKey(q.SessionKey) {
		return ErrInvalidSessionKey
	}
	if q.TimeLimitSeconds < 0 {
		return ErrInvalidTimeLimit
	}
	return nil
}
