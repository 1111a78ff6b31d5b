package room

import (
	"sync"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Participant statuses. A "left" entry is transitional: it is evicted from
// the room in the same critical section that marks it.
const (
	StatusJoined = "joined"
	StatusLeft   = "left"
)

// ParticipantConnection is one participant's live association with a room.
// Join replaces the whole struct, so a snapshot taken by the broadcast
// engine always sees internally consistent fields.
type ParticipantConnection struct {
	ParticipantID string
	Name          string
	Contact       string
	Channel       interfaces.Channel
	Status        string
	JoinedAt      time.Time
	LeftAt        *time.Time
}

// Summary converts the connection to its read model.
func (p *ParticipantConnection) Summary() types.ParticipantSummary {
	return types.ParticipantSummary{
		ParticipantID: p.ParticipantID,
		Name:          p.Name,
		Contact:       p.Contact,
		JoinedAt:      p.JoinedAt,
	}
}

// Registry maps session keys to the set of participants currently associated
// with them. Rooms are created implicitly on first join and destroyed the
// instant they become empty. All operations are safe under concurrent access;
// reads on an absent session key return empty/zero, never an error.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*ParticipantConnection // sessionKey -> participantID -> connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*ParticipantConnection),
	}
}

// Join upserts a participant into a room and returns the updated participant
// count. An existing entry for the same participant ID is overwritten,
// channel included, which is how reconnection works. Always succeeds when a
// channel is supplied.
func (r *Registry) Join(sessionKey, participantID string, ch interfaces.Channel, name, contact string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, exists := r.rooms[sessionKey]
	if !exists {
		participants = make(map[string]*ParticipantConnection)
		r.rooms[sessionKey] = participants
	}

	participants[participantID] = &ParticipantConnection{
		ParticipantID: participantID,
		Name:          name,
		Contact:       contact,
		Channel:       ch,
		Status:        StatusJoined,
		JoinedAt:      time.Now(),
	}

	return len(participants)
}

// Evict marks a participant as left and removes them from the room in one
// critical section, deleting the room if it empties. Returns the removed
// entry and the remaining participant count. Idempotent: a second call for
// the same participant returns ok=false.
func (r *Registry) Evict(sessionKey, participantID string) (conn *ParticipantConnection, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked(sessionKey, participantID, nil)
}

// EvictIfSame removes the participant only if the registered channel is the
// given one. This keeps a stale connection's cleanup from evicting the fresh
// entry a reconnecting participant just registered. The channel comparison and
// the removal happen under one lock acquisition, so a Join committing between
// them cannot lose its fresh entry.
func (r *Registry) EvictIfSame(sessionKey, participantID string, ch interfaces.Channel) (conn *ParticipantConnection, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked(sessionKey, participantID, ch)
}

// evictLocked removes a participant while holding r.mu. A non-nil ch makes the
// removal conditional on the registered channel being that exact one.
func (r *Registry) evictLocked(sessionKey, participantID string, ch interfaces.Channel) (conn *ParticipantConnection, remaining int, ok bool) {
	participants, exists := r.rooms[sessionKey]
	if !exists {
		return nil, 0, false
	}

	conn, ok = participants[participantID]
	if !ok {
		return nil, len(participants), false
	}
	if ch != nil && conn.Channel != ch {
		return nil, len(participants), false
	}

	now := time.Now()
	conn.Status = StatusLeft
	conn.LeftAt = &now
	delete(participants, participantID)

	if len(participants) == 0 {
		delete(r.rooms, sessionKey)
		return conn, 0, true
	}
	return conn, len(participants), true
}

// IsJoined reports whether a participant is currently joined to a session.
func (r *Registry) IsJoined(sessionKey, participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.rooms[sessionKey][participantID]
	return ok && conn.Status == StatusJoined
}

// Get returns the live connection for a participant, if joined.
func (r *Registry) Get(sessionKey, participantID string) (*ParticipantConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.rooms[sessionKey][participantID]
	if !ok || conn.Status != StatusJoined {
		return nil, false
	}
	return conn, true
}

// Snapshot returns the joined participants of a room at this instant. Joins
// committing after the snapshot are not part of it; their catch-up path is
// the reconnect cache, not the in-flight broadcast.
func (r *Registry) Snapshot(sessionKey string) []*ParticipantConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := r.rooms[sessionKey]
	if len(participants) == 0 {
		return nil
	}

	snapshot := make([]*ParticipantConnection, 0, len(participants))
	for _, conn := range participants {
		if conn.Status == StatusJoined {
			snapshot = append(snapshot, conn)
		}
	}
	return snapshot
}

// ListJoined returns summaries of the joined participants of a room.
func (r *Registry) ListJoined(sessionKey string) []types.ParticipantSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := r.rooms[sessionKey]
	summaries := make([]types.ParticipantSummary, 0, len(participants))
	for _, conn := range participants {
		if conn.Status == StatusJoined {
			summaries = append(summaries, conn.Summary())
		}
	}
	return summaries
}

// Count returns the number of joined participants in a room.
func (r *Registry) Count(sessionKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionKey])
}

// Stats returns registry-wide counters for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, participants := range r.rooms {
		total += len(participants)
	}
	return map[string]int{
		"active_rooms":       len(r.rooms),
		"total_participants": total,
	}
}
