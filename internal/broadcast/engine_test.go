package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TechSnatchers/classpulse2-sub000/internal/catchup"
	"github.com/TechSnatchers/classpulse2-sub000/internal/room"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

type mockChannel struct {
	mu      sync.Mutex
	sent    []types.Message
	sendErr error
	alive   bool
}

func healthyChannel() *mockChannel { return &mockChannel{alive: true} }

func closedChannel() *mockChannel {
	return &mockChannel{sendErr: interfaces.ErrChannelClosed, alive: false}
}

func flakyChannel() *mockChannel {
	return &mockChannel{sendErr: errors.New("temporary backpressure"), alive: true}
}

func (c *mockChannel) SendJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, v.(types.Message))
	return nil
}

func (c *mockChannel) IsAlive() bool { return c.alive }
func (c *mockChannel) Close() error  { c.alive = false; return nil }

func (c *mockChannel) received() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

type mockAudit struct {
	mu     sync.Mutex
	events []*types.ParticipantEvent
}

func (a *mockAudit) RecordParticipantEvent(ctx context.Context, event *types.ParticipantEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *room.Registry, *catchup.Cache) {
	t.Helper()
	store, err := catchup.NewStore(catchup.StoreTypeMemory)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cache := catchup.NewCache(store, catchup.DefaultMaxAge)
	registry := room.NewRegistry()
	return NewEngine(registry, cache, &mockAudit{}), registry, cache
}

func testQuiz(sessionKey, questionID string) *types.QuizMessage {
	return types.NewQuizMessage(sessionKey, &types.Question{
		ID:      questionID,
		Text:    "?",
		Options: []string{"a", "b"},
	}, false)
}

func TestEngine_BroadcastDeliversToAllHealthy(t *testing.T) {
	engine, registry, _ := newTestEngine(t)

	channels := map[string]*mockChannel{}
	for _, id := range []string{"alice", "bob", "carol"} {
		ch := healthyChannel()
		channels[id] = ch
		registry.Join("s1", id, ch, id, "")
	}

	delivered := engine.Broadcast(context.Background(), "s1", testQuiz("s1", "q1"))
	if delivered != 3 {
		t.Errorf("delivered = %d, want 3", delivered)
	}
	for id, ch := range channels {
		if len(ch.received()) != 1 {
			t.Errorf("participant %s received %d messages, want 1", id, len(ch.received()))
		}
	}
}

func TestEngine_LeftParticipantExcluded(t *testing.T) {
	engine, registry, _ := newTestEngine(t)

	stayed := healthyChannel()
	gone := healthyChannel() // channel object still technically open
	registry.Join("s1", "alice", stayed, "Alice", "")
	registry.Join("s1", "bob", gone, "Bob", "")
	registry.Evict("s1", "bob")

	delivered := engine.Broadcast(context.Background(), "s1", testQuiz("s1", "q1"))
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(gone.received()) != 0 {
		t.Error("a left participant must not receive broadcasts")
	}
}

func TestEngine_ClosedChannelEvicted(t *testing.T) {
	engine, registry, _ := newTestEngine(t)

	registry.Join("s1", "alice", healthyChannel(), "Alice", "")
	registry.Join("s1", "bob", closedChannel(), "Bob", "")
	registry.Join("s1", "carol", healthyChannel(), "Carol", "")

	delivered := engine.Broadcast(context.Background(), "s1", testQuiz("s1", "q1"))
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2 (N-1)", delivered)
	}

	for _, p := range registry.ListJoined("s1") {
		if p.ParticipantID == "bob" {
			t.Error("bob should have been evicted after the closed send")
		}
	}
	if registry.Count("s1") != 2 {
		t.Errorf("Count = %d, want 2 after eviction", registry.Count("s1"))
	}
}

func TestEngine_TransientFailureKeepsConnection(t *testing.T) {
	engine, registry, _ := newTestEngine(t)

	registry.Join("s1", "alice", flakyChannel(), "Alice", "")

	delivered := engine.Broadcast(context.Background(), "s1", testQuiz("s1", "q1"))
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
	if !registry.IsJoined("s1", "alice") {
		t.Error("a transient failure must not evict the participant")
	}
}

func TestEngine_QuizBroadcastRecordsCacheEvenForEmptyRoom(t *testing.T) {
	engine, _, cache := newTestEngine(t)

	delivered := engine.Broadcast(context.Background(), "s1", testQuiz("s1", "q1"))
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}

	if got := cache.RecentQuizFor(context.Background(), "s1", "late-joiner"); got == nil || got.QuestionID != "q1" {
		t.Errorf("cache should hold the attempted quiz, got %+v", got)
	}
}

func TestEngine_NonQuizBroadcastDoesNotTouchCache(t *testing.T) {
	engine, registry, cache := newTestEngine(t)
	registry.Join("s1", "alice", healthyChannel(), "Alice", "")

	engine.Broadcast(context.Background(), "s1", &types.ParticipantJoined{
		Kind:       types.KindParticipantJoined,
		SessionKey: "s1",
		Count:      1,
	})

	if got := cache.RecentQuizFor(context.Background(), "s1", "alice"); got != nil {
		t.Errorf("participant events must not enter the quiz cache, got %+v", got)
	}
}

func TestEngine_SendToOne(t *testing.T) {
	engine, registry, cache := newTestEngine(t)

	ch := healthyChannel()
	registry.Join("s1", "alice", ch, "Alice", "")

	if !engine.SendToOne(context.Background(), "s1", "alice", testQuiz("s1", "q9")) {
		t.Error("SendToOne to a joined healthy participant should return true")
	}
	if len(ch.received()) != 1 {
		t.Errorf("alice received %d messages, want 1", len(ch.received()))
	}

	// Absent participant: false, no error. The attempt is still cached.
	if engine.SendToOne(context.Background(), "s1", "ghost", testQuiz("s1", "q10")) {
		t.Error("SendToOne to an absent participant should return false")
	}
	if got := cache.RecentQuizFor(context.Background(), "s1", "ghost"); got == nil || got.QuestionID != "q10" {
		t.Errorf("attempted individual quiz should be cached for reconnect, got %+v", got)
	}
}

func TestEngine_SendToOneClosedChannelEvicts(t *testing.T) {
	engine, registry, _ := newTestEngine(t)

	registry.Join("s1", "alice", closedChannel(), "Alice", "")

	if engine.SendToOne(context.Background(), "s1", "alice", testQuiz("s1", "q1")) {
		t.Error("send over a closed channel should return false")
	}
	if registry.IsJoined("s1", "alice") {
		t.Error("closed channel should trigger eviction on point-to-point send too")
	}
}
