package hub

import (
	"context"
	"log"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/broadcast"
	"github.com/TechSnatchers/classpulse2-sub000/internal/catchup"
	"github.com/TechSnatchers/classpulse2-sub000/internal/metrics"
	"github.com/TechSnatchers/classpulse2-sub000/internal/room"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Hub coordinates the participant lifecycle: joins and leaves mutate the
// registry, notify the rest of the room, and emit audit facts. Transport
// handlers and the trigger API talk to the Hub rather than to the registry
// directly.
type Hub struct {
	registry *room.Registry
	engine   *broadcast.Engine
	cache    *catchup.Cache
}

// NewHub creates a hub over the given registry, engine, and catch-up cache.
func NewHub(registry *room.Registry, engine *broadcast.Engine, cache *catchup.Cache) *Hub {
	return &Hub{
		registry: registry,
		engine:   engine,
		cache:    cache,
	}
}

// Join upserts a participant into a session room and returns the updated
// participant count. Reconnection with the same participant ID replaces the
// previous channel. The room is notified so connected observers see live
// counts.
func (h *Hub) Join(ctx context.Context, sessionKey, participantID string, ch interfaces.Channel, name, contact string) int {
	count := h.registry.Join(sessionKey, participantID, ch, name, contact)
	metrics.ConnectedParticipants.Set(float64(h.registry.Stats()["total_participants"]))
	log.Printf("hub: joined participant=%s session=%s count=%d", participantID, sessionKey, count)

	if conn, ok := h.registry.Get(sessionKey, participantID); ok {
		h.engine.EmitAudit(sessionKey, conn, types.ParticipantStatusJoined)
	}

	h.engine.Broadcast(ctx, sessionKey, &types.ParticipantJoined{
		Kind:          types.KindParticipantJoined,
		SessionKey:    sessionKey,
		ParticipantID: participantID,
		Name:          name,
		Count:         count,
		Timestamp:     time.Now(),
	})

	return count
}

// Leave marks a participant as left, notifies the room with the updated
// count, and evicts the entry. Returns false when the participant was not
// present; repeated calls are no-ops.
func (h *Hub) Leave(ctx context.Context, sessionKey, participantID string) bool {
	conn, remaining, ok := h.registry.Evict(sessionKey, participantID)
	if !ok {
		return false
	}

	metrics.ConnectedParticipants.Set(float64(h.registry.Stats()["total_participants"]))
	log.Printf("hub: left participant=%s session=%s remaining=%d", participantID, sessionKey, remaining)

	h.engine.EmitAudit(sessionKey, conn, types.ParticipantStatusLeft)

	h.engine.Broadcast(ctx, sessionKey, &types.ParticipantLeft{
		Kind:          types.KindParticipantLeft,
		SessionKey:    sessionKey,
		ParticipantID: participantID,
		Name:          conn.Name,
		Count:         remaining,
		Timestamp:     time.Now(),
	})

	return true
}

// Replay sends the most recent still-relevant quiz to a participant's fresh
// channel unless they already answered it. Invoked after the join handshake
// and on an explicit reconnect signal.
func (h *Hub) Replay(ctx context.Context, sessionKey, participantID string, ch interfaces.Channel, answeredQuestionIDs map[string]bool) bool {
	return h.cache.ReplayIfMissed(ctx, sessionKey, participantID, ch, answeredQuestionIDs)
}

// IsJoined reports whether a participant is currently joined.
func (h *Hub) IsJoined(sessionKey, participantID string) bool {
	return h.registry.IsJoined(sessionKey, participantID)
}

// ListJoined returns the joined participants of a session.
func (h *Hub) ListJoined(sessionKey string) []types.ParticipantSummary {
	return h.registry.ListJoined(sessionKey)
}

// Count returns the number of joined participants of a session.
func (h *Hub) Count(sessionKey string) int {
	return h.registry.Count(sessionKey)
}
