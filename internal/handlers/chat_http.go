package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkusAkitus/Teender/internal/services"
	"github.com/MarkusAkitus/Teender/pkg/clientip"
)

type SendMessageRequest struct {
	MatchID string `json:"match_id"`
	Text    string `json:"text"`
}

// SendMessage runs a chat message through the mediator pipeline.
func SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MatchID == "" || req.Text == "" {
		http.Error(w, "match_id and text are required", http.StatusBadRequest)
		return
	}

	result, err := mediator.SendMessage(r.Context(), userID, clientip.RealClientIP(r), req.MatchID, req.Text)
	if err != nil {
		writeMediatorError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: result})
}

// LoadChatHistory returns paginated chat history for a match the caller
// belongs to. Query params: match_id, before (RFC3339), limit.
func LoadChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	matchID := r.URL.Query().Get("match_id")
	if matchID == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}

	match, err := services.GetMatch(r.Context(), matchID)
	if err != nil {
		http.Error(w, "Failed to load match", http.StatusInternalServerError)
		return
	}
	if match == nil || !match.Involves(userID) {
		writeJSON(w, http.StatusForbidden, APIResponse{Success: false, Message: "Not part of this match"})
		return
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid before timestamp", http.StatusBadRequest)
			return
		}
		before = &t
	}

	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	msgs, hasMore, err := services.LoadChatMessages(r.Context(), matchID, before, limit)
	if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"messages": msgs,
		"has_more": hasMore,
	}})
}
