package broadcast

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/catchup"
	"github.com/TechSnatchers/classpulse2-sub000/internal/metrics"
	"github.com/TechSnatchers/classpulse2-sub000/internal/room"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Send outcome classes. Transient failures keep the connection; closed
// channels are evicted from the room after the fan-out completes.
const (
	outcomeSuccess   = "success"
	outcomeTransient = "transient"
	outcomeClosed    = "closed"
)

// Engine fans messages out to the joined participants of a room. Sends run
// concurrently so every recipient sees a shared quiz at about the same
// wall-clock instant; response time is scored, and a serial loop would favor
// whoever happens to be enumerated first.
type Engine struct {
	registry *room.Registry
	cache    *catchup.Cache
	audit    interfaces.ParticipantAuditStore
}

// NewEngine creates a broadcast engine. audit may be nil.
func NewEngine(registry *room.Registry, cache *catchup.Cache, audit interfaces.ParticipantAuditStore) *Engine {
	return &Engine{
		registry: registry,
		cache:    cache,
		audit:    audit,
	}
}

// Broadcast delivers a message to every participant joined to the room at
// call time and returns the number of successful sends. Joins that commit
// after the snapshot was taken are not included; their catch-up path is the
// reconnect cache. Channels that fail as closed are batch-evicted after the
// fan-out; eviction never blocks the count returned to the caller.
func (e *Engine) Broadcast(ctx context.Context, sessionKey string, msg types.Message) int {
	metrics.Broadcasts.Inc()

	// The cache records what should have been visible to the room,
	// independent of individual delivery failures.
	if quiz, ok := msg.(*types.QuizMessage); ok {
		e.cache.RecordSessionQuiz(ctx, sessionKey, quiz)
	}

	snapshot := e.registry.Snapshot(sessionKey)
	if len(snapshot) == 0 {
		return 0
	}

	outcomes := make([]string, len(snapshot))
	var wg sync.WaitGroup
	for i, conn := range snapshot {
		wg.Add(1)
		go func(i int, conn *room.ParticipantConnection) {
			defer wg.Done()
			outcomes[i] = e.sendOne(conn, msg)
		}(i, conn)
	}
	wg.Wait()

	delivered := 0
	var closed []*room.ParticipantConnection
	for i, outcome := range outcomes {
		metrics.Deliveries.WithLabelValues(outcome).Inc()
		switch outcome {
		case outcomeSuccess:
			delivered++
		case outcomeClosed:
			closed = append(closed, snapshot[i])
		}
	}

	for _, conn := range closed {
		e.evict(sessionKey, conn)
	}

	log.Printf("broadcast: session=%s kind=%s delivered=%d/%d evicted=%d",
		sessionKey, msg.MessageKind(), delivered, len(snapshot), len(closed))
	return delivered
}

// SendToOne delivers a message to a single participant. Returns false, never
// an error, when the participant is absent, not joined, or the send fails. A
// closed channel takes the same evict path as broadcast.
func (e *Engine) SendToOne(ctx context.Context, sessionKey, participantID string, msg types.Message) bool {
	if quiz, ok := msg.(*types.QuizMessage); ok {
		e.cache.RecordParticipantQuiz(ctx, sessionKey, participantID, quiz)
	}

	conn, ok := e.registry.Get(sessionKey, participantID)
	if !ok {
		return false
	}

	outcome := e.sendOne(conn, msg)
	metrics.Deliveries.WithLabelValues(outcome).Inc()
	if outcome == outcomeClosed {
		e.evict(sessionKey, conn)
	}
	return outcome == outcomeSuccess
}

// sendOne performs one send and classifies the result. Each send is
// independent: a slow or stuck channel cannot stall the rest of a fan-out.
func (e *Engine) sendOne(conn *room.ParticipantConnection, msg types.Message) string {
	err := conn.Channel.SendJSON(msg)
	if err == nil {
		return outcomeSuccess
	}
	if errors.Is(err, interfaces.ErrChannelClosed) || !conn.Channel.IsAlive() {
		return outcomeClosed
	}
	log.Printf("broadcast: transient send failure participant=%s: %v", conn.ParticipantID, err)
	return outcomeTransient
}

// evict removes a participant whose channel is unrecoverably gone, emits the
// audit fact, and notifies the remaining room. Guarded on the channel handle
// so an eviction racing a reconnect never removes the fresh registration.
func (e *Engine) evict(sessionKey string, conn *room.ParticipantConnection) {
	evicted, remaining, ok := e.registry.EvictIfSame(sessionKey, conn.ParticipantID, conn.Channel)
	if !ok {
		return
	}

	metrics.Evictions.Inc()
	log.Printf("broadcast: evicted participant=%s session=%s remaining=%d",
		evicted.ParticipantID, sessionKey, remaining)

	e.EmitAudit(sessionKey, evicted, types.ParticipantStatusEvicted)

	if remaining > 0 {
		left := &types.ParticipantLeft{
			Kind:          types.KindParticipantLeft,
			SessionKey:    sessionKey,
			ParticipantID: evicted.ParticipantID,
			Name:          evicted.Name,
			Count:         remaining,
			Timestamp:     time.Now(),
		}
		go e.Broadcast(context.Background(), sessionKey, left)
	}
}

// EmitAudit records a participant lifecycle fact without waiting on the
// store's success.
func (e *Engine) EmitAudit(sessionKey string, conn *room.ParticipantConnection, status string) {
	if e.audit == nil {
		return
	}

	event := &types.ParticipantEvent{
		SessionKey:    sessionKey,
		ParticipantID: conn.ParticipantID,
		Name:          conn.Name,
		Contact:       conn.Contact,
		Status:        status,
		Timestamp:     time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.audit.RecordParticipantEvent(ctx, event); err != nil {
			log.Printf("broadcast: audit emit failed participant=%s status=%s: %v",
				conn.ParticipantID, status, err)
		}
	}()
}
