package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/broadcast"
	"github.com/TechSnatchers/classpulse2-sub000/internal/catchup"
	"github.com/TechSnatchers/classpulse2-sub000/internal/hub"
	"github.com/TechSnatchers/classpulse2-sub000/internal/room"
	"github.com/TechSnatchers/classpulse2-sub000/internal/scheduler"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*types.SessionRecord
	questions []*types.Question
	healthErr error
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*types.SessionRecord)}
}

func (f *fakeStore) RegisterSession(ctx context.Context, record *types.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.sessions[record.SessionKey]; exists {
		return fmt.Errorf("UNIQUE constraint failed: sessions.session_key")
	}
	f.sessions[record.SessionKey] = record
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, key string) (*types.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.sessions[key]; ok {
		return record, nil
	}
	for _, record := range f.sessions {
		if record.AliasKey == key {
			return record, nil
		}
	}
	return nil, interfaces.ErrSessionNotFound
}

func (f *fakeStore) AddQuestion(ctx context.Context, q *types.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q.ID == "" {
		f.nextID++
		q.ID = fmt.Sprintf("q-%d", f.nextID)
	}
	f.questions = append(f.questions, q)
	return nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeStore) PoolFor(ctx context.Context, sessionKey string) ([]*types.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questions, nil
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []interface{}
}

func (c *recordingChannel) SendJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return nil
}

func (c *recordingChannel) IsAlive() bool { return true }
func (c *recordingChannel) Close() error  { return nil }

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type testServer struct {
	server    *Server
	store     *fakeStore
	registry  *room.Registry
	scheduler *scheduler.Scheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catchupStore, err := catchup.NewStore(catchup.StoreTypeMemory)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cache := catchup.NewCache(catchupStore, catchup.DefaultMaxAge)
	registry := room.NewRegistry()
	engine := broadcast.NewEngine(registry, cache, nil)
	h := hub.NewHub(registry, engine, cache)
	store := newFakeStore()
	sched := scheduler.NewScheduler(engine, store)
	t.Cleanup(sched.StopAll)

	return &testServer{
		server:    NewServer(h, engine, sched, store, 5*time.Second, 60*time.Second),
		store:     store,
		registry:  registry,
		scheduler: sched,
	}
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/sessions", CreateSessionRequest{
		SessionKey: "physics-101",
		AliasKey:   "phys",
		OwnerID:    "instructor-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Duplicate key conflicts.
	rec = ts.request(t, http.MethodPost, "/api/sessions", CreateSessionRequest{
		SessionKey: "physics-101",
		OwnerID:    "instructor-2",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	// Invalid key rejected.
	rec = ts.request(t, http.MethodPost, "/api/sessions", CreateSessionRequest{
		SessionKey: "has space",
		OwnerID:    "instructor-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid key status = %d, want 400", rec.Code)
	}
}

func TestGetSession(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPost, "/api/sessions", CreateSessionRequest{
		SessionKey: "s1",
		OwnerID:    "o1",
	})

	ch := &recordingChannel{}
	ts.registry.Join("s1", "alice", ch, "Alice", "")

	rec := ts.request(t, http.MethodGet, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ParticipantCount != 1 {
		t.Errorf("ParticipantCount = %d, want 1", resp.ParticipantCount)
	}

	rec = ts.request(t, http.MethodGet, "/api/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rec.Code)
	}
}

func TestAddQuestion(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/questions", AddQuestionRequest{
		Text:    "2+2?",
		Options: []string{"3", "4"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var q types.Question
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if q.ID == "" {
		t.Error("stored question should carry an assigned ID")
	}

	rec = ts.request(t, http.MethodPost, "/api/questions", AddQuestionRequest{
		Text:    "?",
		Options: []string{"only one"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("too few options status = %d, want 400", rec.Code)
	}
}

func TestBroadcastNow(t *testing.T) {
	ts := newTestServer(t)

	alice := &recordingChannel{}
	bob := &recordingChannel{}
	ts.registry.Join("s1", "alice", alice, "Alice", "")
	ts.registry.Join("s1", "bob", bob, "Bob", "")

	rec := ts.request(t, http.MethodPost, "/api/broadcast", BroadcastRequest{
		SessionKey: "s1",
		Question: AddQuestionRequest{
			Text:    "capital of France?",
			Options: []string{"Paris", "Lyon"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp BroadcastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", resp.Delivered)
	}
	if resp.QuestionID == "" {
		t.Error("response should include the assigned question ID")
	}
	if alice.count() != 1 || bob.count() != 1 {
		t.Errorf("channel counts = %d/%d, want 1/1", alice.count(), bob.count())
	}
}

func TestSendToOne(t *testing.T) {
	ts := newTestServer(t)

	alice := &recordingChannel{}
	ts.registry.Join("s1", "alice", alice, "Alice", "")

	rec := ts.request(t, http.MethodPost, "/api/send", SendRequest{
		SessionKey:    "s1",
		ParticipantID: "alice",
		Question: AddQuestionRequest{
			Text:    "?",
			Options: []string{"a", "b"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Delivered {
		t.Error("send to a joined participant should report delivered")
	}

	// Absent target: request succeeds, delivered=false.
	rec = ts.request(t, http.MethodPost, "/api/send", SendRequest{
		SessionKey:    "s1",
		ParticipantID: "ghost",
		Question: AddQuestionRequest{
			Text:    "?",
			Options: []string{"a", "b"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("absent target status = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Delivered {
		t.Error("send to an absent participant must report delivered=false")
	}
}

func TestAutomationStartAndStop(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddQuestion(context.Background(), &types.Question{
		Text:    "?",
		Options: []string{"a", "b"},
	})

	rec := ts.request(t, http.MethodPost, "/api/automation/start", AutomationStartRequest{
		SessionKey:        "s1",
		FirstDelaySeconds: 1,
		IntervalSeconds:   1,
		MaxQuestions:      5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	var info types.ScheduleInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !info.Enabled || info.SessionKey != "s1" {
		t.Errorf("unexpected schedule info: %+v", info)
	}

	rec = ts.request(t, http.MethodPost, "/api/automation/stop", AutomationStopRequest{SessionKey: "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", rec.Code, rec.Body.String())
	}
	var stop AutomationStopResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stop); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stop.QuestionsSent != 0 {
		t.Errorf("QuestionsSent = %d before first delay elapsed, want 0", stop.QuestionsSent)
	}

	// Stopping again is still a 200 with zero sent.
	rec = ts.request(t, http.MethodPost, "/api/automation/stop", AutomationStopRequest{SessionKey: "s1"})
	if rec.Code != http.StatusOK {
		t.Errorf("idle stop status = %d, want 200", rec.Code)
	}
}

func TestAutomationStartRejectsBadKey(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodPost, "/api/automation/start", AutomationStartRequest{
		SessionKey: "bad key",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	ts.store.healthErr = fmt.Errorf("disk full")
	rec = ts.request(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodDelete, "/api/broadcast", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
