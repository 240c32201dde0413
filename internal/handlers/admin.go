package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/MarkusAkitus/Teender/internal/services"
)

var adminToken string

// InitAdmin sets the shared secret for the admin API. An empty token
// disables every admin route.
func InitAdmin(token string) {
	adminToken = token
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	provided := r.Header.Get("X-Admin-Token")
	if adminToken == "" || provided == "" ||
		subtle.ConstantTimeCompare([]byte(provided), []byte(adminToken)) != 1 {
		writeJSON(w, http.StatusForbidden, APIResponse{Success: false, Message: "Forbidden"})
		return false
	}
	return true
}

// GetAlerts returns the guard's alert history.
func GetAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: guard.Alerts()})
}

// GetSecurityEvents returns the guard's rolling event log.
func GetSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: guard.Events()})
}

// GetModerationEvents returns the moderation system's rolling event log.
func GetModerationEvents(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: moderator.Events()})
}

// GetBlockedIPs returns the active network-level blocks.
func GetBlockedIPs(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	blocked, err := services.ListBlockedIPs()
	if err != nil {
		http.Error(w, "Failed to load blocked IPs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: blocked})
}

// UnblockIP lifts a block in both the persistent store and the in-memory
// guard blacklist.
func UnblockIP(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	ip := r.URL.Query().Get("ip")
	if ip == "" {
		http.Error(w, "ip is required", http.StatusBadRequest)
		return
	}

	if err := services.UnblockIP(ip); err != nil {
		http.Error(w, "Failed to unblock IP", http.StatusInternalServerError)
		return
	}
	guard.RemoveFromBlacklist(ip)

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "IP unblocked"})
}

// DrainReplayQueue pops queued actions from the Redis replay queue, oldest
// first. Draining is destructive; entries are removed as they are read.
func DrainReplayQueue(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	actions, err := services.DrainQueuedActions(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to drain replay queue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: actions})
}

// LiftRestriction clears a user's temporary restriction ahead of its TTL.
func LiftRestriction(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := services.LiftRestriction(r.Context(), userID); err != nil {
		http.Error(w, "Failed to lift restriction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Restriction lifted"})
}
