package catchup

import (
	"context"
	"log"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/metrics"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// DefaultMaxAge is the replay window: entries older than this are never
// replayed to a reconnecting participant.
const DefaultMaxAge = 120 * time.Second

// Cache remembers the most recently broadcast quiz per session and per
// (session, participant) so a participant whose connection flapped
// mid-question can catch up without being shown a question twice.
type Cache struct {
	store  Store
	maxAge time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewCache wraps a store with the replay-window policy. maxAge <= 0 selects
// DefaultMaxAge.
func NewCache(store Store, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{store: store, maxAge: maxAge, now: time.Now}
}

// RecordSessionQuiz remembers the latest shared quiz for a session,
// overwriting any prior entry.
func (c *Cache) RecordSessionQuiz(ctx context.Context, sessionKey string, msg *types.QuizMessage) {
	entry := &Entry{Message: msg, SentAt: c.now()}
	if err := c.store.PutSession(ctx, sessionKey, entry); err != nil {
		log.Printf("catchup: failed to record session quiz session=%s: %v", sessionKey, err)
	}
}

// RecordParticipantQuiz remembers an individualized quiz for one participant.
// A per-participant entry takes precedence over the session entry on replay.
func (c *Cache) RecordParticipantQuiz(ctx context.Context, sessionKey, participantID string, msg *types.QuizMessage) {
	entry := &Entry{Message: msg, SentAt: c.now()}
	if err := c.store.PutParticipant(ctx, sessionKey, participantID, entry); err != nil {
		log.Printf("catchup: failed to record participant quiz session=%s participant=%s: %v",
			sessionKey, participantID, err)
	}
}

// RecentQuizFor returns the freshest still-relevant quiz for a participant:
// the per-participant entry if present and inside the window, otherwise the
// per-session entry, otherwise nil.
func (c *Cache) RecentQuizFor(ctx context.Context, sessionKey, participantID string) *types.QuizMessage {
	if entry, err := c.store.GetParticipant(ctx, sessionKey, participantID); err != nil {
		log.Printf("catchup: participant lookup failed session=%s participant=%s: %v",
			sessionKey, participantID, err)
	} else if c.fresh(entry) {
		return entry.Message
	}

	if entry, err := c.store.GetSession(ctx, sessionKey); err != nil {
		log.Printf("catchup: session lookup failed session=%s: %v", sessionKey, err)
	} else if c.fresh(entry) {
		return entry.Message
	}

	return nil
}

// ReplayIfMissed sends the most recent cached quiz to a freshly connected
// channel, unless the participant already answered it. Returns true only when
// a message was actually sent.
func (c *Cache) ReplayIfMissed(ctx context.Context, sessionKey, participantID string, ch interfaces.Channel, answeredQuestionIDs map[string]bool) bool {
	msg := c.RecentQuizFor(ctx, sessionKey, participantID)
	if msg == nil {
		return false
	}
	if answeredQuestionIDs[msg.QuestionID] {
		return false
	}

	if err := ch.SendJSON(msg); err != nil {
		log.Printf("catchup: replay send failed session=%s participant=%s: %v",
			sessionKey, participantID, err)
		return false
	}

	metrics.CatchupReplays.Inc()
	log.Printf("catchup: replayed question=%s session=%s participant=%s",
		msg.QuestionID, sessionKey, participantID)
	return true
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) fresh(entry *Entry) bool {
	return entry != nil && entry.Message != nil && c.now().Sub(entry.SentAt) <= c.maxAge
}
