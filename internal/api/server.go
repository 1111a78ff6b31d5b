package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/broadcast"
	"github.com/TechSnatchers/classpulse2-sub000/internal/hub"
	"github.com/TechSnatchers/classpulse2-sub000/internal/scheduler"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Store is the persistence surface the API needs; the database manager
// satisfies it. Narrow interface keeps handlers testable with a fake.
type Store interface {
	RegisterSession(ctx context.Context, record *types.SessionRecord) error
	GetSession(ctx context.Context, key string) (*types.SessionRecord, error)
	AddQuestion(ctx context.Context, q *types.Question) error
	HealthCheck(ctx context.Context) error
}

// Server is the instructor-facing trigger surface. No business logic lives
// here; handlers validate, delegate, and serialize.
type Server struct {
	hub       *hub.Hub
	engine    *broadcast.Engine
	scheduler *scheduler.Scheduler
	store     Store
	router    *http.ServeMux

	defaultFirstDelay time.Duration
	defaultInterval   time.Duration
}

// NewServer wires the trigger API over the hub, engine, scheduler, and store.
// The default delay and interval apply when an automation start request
// omits them.
func NewServer(h *hub.Hub, engine *broadcast.Engine, sched *scheduler.Scheduler, store Store, defaultFirstDelay, defaultInterval time.Duration) *Server {
	s := &Server{
		hub:               h,
		engine:            engine,
		scheduler:         sched,
		store:             store,
		router:            http.NewServeMux(),
		defaultFirstDelay: defaultFirstDelay,
		defaultInterval:   defaultInterval,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByKey))))
	s.router.Handle("/api/questions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleQuestions))))
	s.router.Handle("/api/automation/start", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleAutomationStart))))
	s.router.Handle("/api/automation/stop", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleAutomationStop))))
	s.router.Handle("/api/automation", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleAutomationList))))
	s.router.Handle("/api/broadcast", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleBroadcast))))
	s.router.Handle("/api/send", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSend))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type CreateSessionRequest struct {
	SessionKey string `json:"session_key"`
	AliasKey   string `json:"alias_key,omitempty"`
	OwnerID    string `json:"owner_id"`
}

type AddQuestionRequest struct {
	SessionKey       string   `json:"session_key,omitempty"`
	OwnerID          string   `json:"owner_id,omitempty"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

type AutomationStartRequest struct {
	SessionKey        string `json:"session_key"`
	FirstDelaySeconds int    `json:"first_delay_seconds"`
	IntervalSeconds   int    `json:"interval_seconds"`
	MaxQuestions      int    `json:"max_questions"`
}

type AutomationStopRequest struct {
	SessionKey string `json:"session_key"`
}

type AutomationStopResponse struct {
	SessionKey    string `json:"session_key"`
	QuestionsSent int    `json:"questions_sent"`
}

type BroadcastRequest struct {
	SessionKey string             `json:"session_key"`
	Question   AddQuestionRequest `json:"question"`
}

type BroadcastResponse struct {
	SessionKey string `json:"session_key"`
	QuestionID string `json:"question_id"`
	Delivered  int    `json:"delivered"`
}

type SendRequest struct {
	SessionKey    string             `json:"session_key"`
	ParticipantID string             `json:"participant_id"`
	Question      AddQuestionRequest `json:"question"`
}

type SendResponse struct {
	SessionKey    string `json:"session_key"`
	ParticipantID string `json:"participant_id"`
	QuestionID    string `json:"question_id"`
	Delivered     bool   `json:"delivered"`
}

type SessionResponse struct {
	Session          *types.SessionRecord `json:"session"`
	ParticipantCount int                  `json:"participant_count"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		s.sendError(w, "Owner ID is required", http.StatusBadRequest)
		return
	}
	if !types.IsValidSessionKey(req.SessionKey) {
		s.sendError(w, "Invalid session_key format", http.StatusBadRequest)
		return
	}
	if req.AliasKey != "" && !types.IsValidSessionKey(req.AliasKey) {
		s.sendError(w, "Invalid alias_key format", http.StatusBadRequest)
		return
	}

	record := &types.SessionRecord{
		SessionKey: req.SessionKey,
		AliasKey:   req.AliasKey,
		OwnerID:    req.OwnerID,
		CreatedAt:  time.Now(),
	}
	if err := s.store.RegisterSession(r.Context(), record); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			s.sendError(w, "Session key already registered", http.StatusConflict)
		} else {
			s.sendError(w, "Failed to register session", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SessionResponse{Session: record})
}

func (s *Server) handleSessionByKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	key = strings.Split(key, "/")[0]
	if key == "" {
		s.sendError(w, "Session key required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	record, err := s.store.GetSession(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Session:          record,
		ParticipantCount: s.hub.Count(record.SessionKey),
	})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	question := questionFromRequest(&req)
	if err := question.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.AddQuestion(r.Context(), question); err != nil {
		s.sendError(w, "Failed to store question", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(question)
}

func (s *Server) handleAutomationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AutomationStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	firstDelay := s.defaultFirstDelay
	if req.FirstDelaySeconds > 0 {
		firstDelay = time.Duration(req.FirstDelaySeconds) * time.Second
	}
	interval := s.defaultInterval
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds) * time.Second
	}

	// Sessions registered with an alias get automation on both keys.
	// Unregistered keys still work; their pool resolves to the global bank.
	aliasKey := ""
	if record, err := s.store.GetSession(r.Context(), req.SessionKey); err == nil {
		aliasKey = record.AliasKey
	}

	info, err := s.scheduler.Start(req.SessionKey, aliasKey, firstDelay, interval, req.MaxQuestions)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(info)
}

func (s *Server) handleAutomationStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AutomationStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionKey == "" {
		s.sendError(w, "Session key is required", http.StatusBadRequest)
		return
	}

	sent := s.scheduler.Stop(req.SessionKey)
	json.NewEncoder(w).Encode(AutomationStopResponse{
		SessionKey:    req.SessionKey,
		QuestionsSent: sent,
	})
}

func (s *Server) handleAutomationList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"schedules": s.scheduler.List(),
	})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidSessionKey(req.SessionKey) {
		s.sendError(w, "Invalid session_key format", http.StatusBadRequest)
		return
	}

	question := questionFromRequest(&req.Question)
	if err := question.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.AddQuestion(r.Context(), question); err != nil {
		s.sendError(w, "Failed to store question", http.StatusInternalServerError)
		return
	}

	delivered := s.engine.Broadcast(r.Context(), req.SessionKey, types.NewQuizMessage(req.SessionKey, question, false))
	json.NewEncoder(w).Encode(BroadcastResponse{
		SessionKey: req.SessionKey,
		QuestionID: question.ID,
		Delivered:  delivered,
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidSessionKey(req.SessionKey) {
		s.sendError(w, "Invalid session_key format", http.StatusBadRequest)
		return
	}
	if !types.IsValidParticipantID(req.ParticipantID) {
		s.sendError(w, "Invalid participant_id format", http.StatusBadRequest)
		return
	}

	question := questionFromRequest(&req.Question)
	if err := question.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.AddQuestion(r.Context(), question); err != nil {
		s.sendError(w, "Failed to store question", http.StatusInternalServerError)
		return
	}

	delivered := s.engine.SendToOne(r.Context(), req.SessionKey, req.ParticipantID,
		types.NewQuizMessage(req.SessionKey, question, false))
	json.NewEncoder(w).Encode(SendResponse{
		SessionKey:    req.SessionKey,
		ParticipantID: req.ParticipantID,
		QuestionID:    question.ID,
		Delivered:     delivered,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionKey := r.URL.Query().Get("session_key")
	if sessionKey != "" {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"session_key":  sessionKey,
			"count":        s.hub.Count(sessionKey),
			"participants": s.hub.ListJoined(sessionKey),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"schedules": s.scheduler.List(),
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func questionFromRequest(req *AddQuestionRequest) *types.Question {
	return &types.Question{
		SessionKey:       req.SessionKey,
		OwnerID:          req.OwnerID,
		Text:             req.Text,
		Options:          req.Options,
		TimeLimitSeconds: req.TimeLimitSeconds,
	}
}
