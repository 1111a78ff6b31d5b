package types

import (
	"time"
)

// Message kind tags. Every payload that crosses a participant channel is one
// of these closed variants, so clients never have to guess at payload shape.
const (
	KindQuiz              = "quiz"
	KindParticipantJoined = "participant_joined"
	KindParticipantLeft   = "participant_left"
	KindSessionStarted    = "session_started"
)

// Message is implemented by every wire payload variant.
type Message interface {
	MessageKind() string
}

// QuizMessage carries one question to a room or a single participant.
// Immutable once constructed; the broadcast engine copies it into the
// catch-up cache as-is.
type QuizMessage struct {
	Kind             string    `json:"kind"`
	SessionKey       string    `json:"session_key"`
	QuestionID       string    `json:"question_id"`
	Question         string    `json:"question"`
	Options          []string  `json:"options"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
	TriggeredAt      time.Time `json:"triggered_at"`
	Automated        bool      `json:"automated"`
}

func (m *QuizMessage) MessageKind() string { return KindQuiz }

// NewQuizMessage builds a quiz payload for a session from a bank question.
func NewQuizMessage(sessionKey string, q *Question, automated bool) *QuizMessage {
	return &QuizMessage{
		Kind:             KindQuiz,
		SessionKey:       sessionKey,
		QuestionID:       q.ID,
		Question:         q.Text,
		Options:          q.Options,
		TimeLimitSeconds: q.TimeLimitSeconds,
		TriggeredAt:      time.Now(),
		Automated:        automated,
	}
}

// ParticipantJoined announces a new or reconnected participant, including the
// updated room count so observers can show live attendance.
type ParticipantJoined struct {
	Kind          string    `json:"kind"`
	SessionKey    string    `json:"session_key"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Count         int       `json:"count"`
	Timestamp     time.Time `json:"timestamp"`
}

func (m *ParticipantJoined) MessageKind() string { return KindParticipantJoined }

// ParticipantLeft announces a departure with the updated room count.
type ParticipantLeft struct {
	Kind          string    `json:"kind"`
	SessionKey    string    `json:"session_key"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Count         int       `json:"count"`
	Timestamp     time.Time `json:"timestamp"`
}

func (m *ParticipantLeft) MessageKind() string { return KindParticipantLeft }

// SessionStarted announces that quiz automation was activated for a session.
type SessionStarted struct {
	Kind       string    `json:"kind"`
	SessionKey string    `json:"session_key"`
	AliasKey   string    `json:"alias_key,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (m *SessionStarted) MessageKind() string { return KindSessionStarted }

// Question is a bank entry. SessionKey and OwnerID scope the tiered pool:
// questions tagged to a session outrank the owner's untagged pool, which
// outranks the global untagged pool.
type Question struct {
	ID               string   `json:"id"`
	SessionKey       string   `json:"session_key,omitempty"`
	OwnerID          string   `json:"owner_id,omitempty"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// SessionRecord describes a registered session: its primary key, an optional
// equivalent alias key, and the owning instructor.
type SessionRecord struct {
	SessionKey string    `json:"session_key"`
	AliasKey   string    `json:"alias_key,omitempty"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ParticipantSummary is the read model returned by room listings.
type ParticipantSummary struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Contact       string    `json:"contact,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Participant lifecycle statuses recorded in the audit trail.
const (
	ParticipantStatusJoined  = "joined"
	ParticipantStatusLeft    = "left"
	ParticipantStatusEvicted = "evicted"
)

// ParticipantEvent is the lifecycle fact emitted to the audit store on join,
// leave, and eviction. The core never waits on its persistence.
type ParticipantEvent struct {
	SessionKey    string    `json:"session_key"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Contact       string    `json:"contact,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// ScheduleInfo is the read model of one automation schedule.
type ScheduleInfo struct {
	SessionKey    string        `json:"session_key"`
	AliasKey      string        `json:"alias_key,omitempty"`
	FirstDelay    time.Duration `json:"first_delay"`
	Interval      time.Duration `json:"interval"`
	MaxQuestions  int           `json:"max_questions"`
	QuestionsSent int           `json:"questions_sent"`
	Enabled       bool          `json:"enabled"`
	StartedAt     time.Time     `json:"started_at"`
}
