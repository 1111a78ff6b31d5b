package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TechSnatchers/classpulse2-sub000/internal/hub"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking belongs to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// clientMessage is the inbound frame envelope. Participants send a reconnect
// signal carrying the question IDs they already answered, or an explicit
// leave. Anything else is logged and dropped.
type clientMessage struct {
	Type                string   `json:"type"`
	AnsweredQuestionIDs []string `json:"answered_question_ids,omitempty"`
}

// Handler upgrades participant connections and manages their lifecycle
// against the hub.
type Handler struct {
	hub  *hub.Hub
	opts Options
}

// NewHandler creates a websocket handler over the given hub.
func NewHandler(h *hub.Hub, opts Options) *Handler {
	return &Handler{hub: h, opts: opts.withDefaults()}
}

// HandleWebSocket validates the join parameters, upgrades the connection,
// joins the participant to their room, and replays a missed quiz before
// entering the read loop. Validation happens before the upgrade so rejected
// requests get proper HTTP status codes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session_key")
	participantID := r.URL.Query().Get("participant_id")
	name := r.URL.Query().Get("name")
	contact := r.URL.Query().Get("contact")

	if sessionKey == "" || participantID == "" {
		http.Error(w, "Missing required query parameters: session_key, participant_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidSessionKey(sessionKey) {
		http.Error(w, "Invalid session_key format", http.StatusBadRequest)
		return
	}
	if !types.IsValidParticipantID(participantID) {
		http.Error(w, "Invalid participant_id format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	ch := NewConnection(conn, h.opts)
	h.hub.Join(r.Context(), sessionKey, participantID, ch, name, contact)

	// A fresh connection with no answered-set gets the newest cached quiz,
	// if one is still relevant.
	go h.hub.Replay(context.Background(), sessionKey, participantID, ch, nil)

	go h.readLoop(sessionKey, participantID, ch)
}

// readLoop consumes inbound frames until the peer goes away. A vanished
// connection is closed but the participant stays joined; the broadcast path
// evicts them when their channel proves dead, and a quick reconnect replaces
// the channel without ever leaving the room.
func (h *Handler) readLoop(sessionKey, participantID string, ch *Connection) {
	defer func() {
		_ = ch.Close()
	}()

	if err := ch.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("websocket: set read deadline: %v", err)
		return
	}
	ch.conn.SetPongHandler(func(string) error {
		return ch.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ch.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-ch.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error participant=%s: %v", participantID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("websocket: malformed frame participant=%s: %v", participantID, err)
			continue
		}

		switch msg.Type {
		case "reconnect":
			answered := make(map[string]bool, len(msg.AnsweredQuestionIDs))
			for _, id := range msg.AnsweredQuestionIDs {
				answered[id] = true
			}
			h.hub.Replay(context.Background(), sessionKey, participantID, ch, answered)
		case "leave":
			h.hub.Leave(context.Background(), sessionKey, participantID)
			return
		default:
			log.Printf("websocket: unknown frame type %q participant=%s", msg.Type, participantID)
		}
	}
}
