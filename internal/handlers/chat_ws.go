package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MarkusAkitus/Teender/internal/services"
	"github.com/MarkusAkitus/Teender/pkg/clientip"
	"github.com/gorilla/websocket"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatClientMessage represents messages coming from the frontend over WebSocket.
type ChatClientMessage struct {
	Type    string `json:"type"` // "message", "typing_start", "typing_stop", "ping"
	MatchID string `json:"match_id"`
	Text    string `json:"text,omitempty"`
}

func extractBearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// ChatWebSocket handles real-time match chat over WebSocket.
// Authentication uses the session token (Authorization: Bearer <token> or
// ?token=). Each connection is bound to one match via the match_id query
// parameter. Outbound messages still pass through the mediator pipeline, so
// WebSocket traffic gets the same moderation as HTTP traffic.
func ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		cookie, err := r.Cookie(sessionCookieName)
		if err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}

	ip := clientip.RealClientIP(r)
	userID, ok, err := sessionService.ValidateSession(token, ip, r.UserAgent())
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	matchID := r.URL.Query().Get("match_id")
	if matchID == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}

	match, err := services.GetMatch(r.Context(), matchID)
	if err != nil || match == nil || !match.Involves(userID) {
		http.Error(w, "you are not part of this match", http.StatusForbidden)
		return
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	services.RegisterUserConnection(userID, conn)
	defer services.UnregisterUserConnection(userID)
	services.SubscribeUserToMatch(userID, matchID)

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var msg ChatClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.MatchID == "" {
			msg.MatchID = matchID
		}

		switch msg.Type {
		case "message":
			result, err := mediator.SendMessage(r.Context(), userID, ip, msg.MatchID, msg.Text)
			if err != nil {
				_ = conn.WriteJSON(map[string]any{
					"type": "error", "message": err.Error(),
				})
				continue
			}
			_ = conn.WriteJSON(map[string]any{
				"type": "ack", "message_id": result.Message.ID.Hex(),
			})
		case "typing_start", "typing_stop":
			_ = services.PublishChatEvent(r.Context(), services.ChatEvent{
				Type:      msg.Type,
				MatchID:   msg.MatchID,
				SenderID:  userID,
				Timestamp: time.Now().UTC(),
			})
		case "ping":
			_ = conn.WriteJSON(map[string]any{"type": "pong"})
		}
	}
}
