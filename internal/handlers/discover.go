package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MarkusAkitus/Teender/internal/services"
	"github.com/MarkusAkitus/Teender/pkg/clientip"
)

// Discover returns profile cards the caller has not swiped on yet.
func Discover(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	profiles, err := services.DiscoverProfiles(userID, limit)
	if err != nil {
		http.Error(w, "Failed to load profiles", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: profiles})
}

type SwipeRequest struct {
	TargetID string `json:"target_id"`
}

// Like records a positive swipe and reports a mutual match when one forms.
func Like(w http.ResponseWriter, r *http.Request) {
	swipe(w, r, true)
}

// Pass records a negative swipe.
func Pass(w http.ResponseWriter, r *http.Request) {
	swipe(w, r, false)
}

func swipe(w http.ResponseWriter, r *http.Request, positive bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetID == "" || req.TargetID == userID {
		http.Error(w, "Valid target_id is required", http.StatusBadRequest)
		return
	}

	ip := clientip.RealClientIP(r)
	var result *services.LikeResult
	var err error
	if positive {
		result, err = mediator.LikeProfile(r.Context(), userID, ip, req.TargetID)
	} else {
		result, err = mediator.PassProfile(r.Context(), userID, ip, req.TargetID)
	}
	if err != nil {
		writeMediatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}
