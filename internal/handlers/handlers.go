// Package handlers is the HTTP edge. Handlers decode requests, resolve the
// session, and delegate every mutation to the action mediator; they never
// call the guard or moderation system directly except for admin read views.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MarkusAkitus/Teender/internal/moderation"
	"github.com/MarkusAkitus/Teender/internal/security"
	"github.com/MarkusAkitus/Teender/internal/services"
	"github.com/MarkusAkitus/Teender/pkg/clientip"
)

var (
	mediator       *services.ActionMediator
	sessionService *services.SessionService
	guard          *security.Guard
	moderator      *moderation.System
)

// Init wires the shared services into the handler package. Called once from
// main before routes are mounted.
func Init(m *services.ActionMediator, s *services.SessionService, g *security.Guard, mod *moderation.System) {
	mediator = m
	sessionService = s
	guard = g
	moderator = mod
}

// APIResponse is the uniform JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeMediatorError maps pipeline rejections onto HTTP status codes.
func writeMediatorError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrBlockedIP),
		errors.Is(err, services.ErrAccountBlocked),
		errors.Is(err, services.ErrRestricted),
		errors.Is(err, services.ErrNotInMatch):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrRateLimited),
		errors.Is(err, services.ErrTooManyAttempts):
		status = http.StatusTooManyRequests
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrContentRejected),
		errors.Is(err, services.ErrUnsafeFile):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrEmailTaken):
		status = http.StatusConflict
	}
	writeJSON(w, status, APIResponse{Success: false, Message: err.Error()})
}

const sessionCookieName = "session_token"

// currentUser resolves the session cookie to a user ID, enforcing the
// IP/User-Agent binding. Returns "" when unauthenticated.
func currentUser(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	userID, ok, err := sessionService.ValidateSession(cookie.Value,
		clientip.RealClientIP(r), r.UserAgent())
	if err != nil || !ok {
		return ""
	}
	return userID
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := currentUser(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, APIResponse{Success: false, Message: "Authentication required"})
		return "", false
	}
	return userID, true
}
