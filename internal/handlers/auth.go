package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MarkusAkitus/Teender/internal/services"
	"github.com/MarkusAkitus/Teender/pkg/clientip"
)

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
	Gender   string `json:"gender,omitempty"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(services.SessionDuration),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// Signup handles user registration
func Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Name, email, and password are required", http.StatusBadRequest)
		return
	}
	if req.Age < 18 {
		http.Error(w, "You must be 18 or older", http.StatusBadRequest)
		return
	}

	ip := clientip.RealClientIP(r)
	user, err := mediator.SignUp(r.Context(), ip, r.UserAgent(), services.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
		Gender:   req.Gender,
	})
	if err != nil {
		writeMediatorError(w, err)
		return
	}

	token, err := sessionService.CreateSession(user.ID, ip, r.UserAgent())
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	setSessionCookie(w, token)

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Message: "Account created successfully",
		Data:    user,
	})
}

// Signin handles user login
func Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	ip := clientip.RealClientIP(r)
	user, err := mediator.SignIn(r.Context(), ip, r.UserAgent(), req.Email, req.Password)
	if err != nil {
		writeMediatorError(w, err)
		return
	}

	token, err := sessionService.CreateSession(user.ID, ip, r.UserAgent())
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	setSessionCookie(w, token)

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Login successful",
		Data:    user,
	})
}

// Signout destroys the current session
func Signout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		sessionService.InvalidateSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "Signed out"})
}

// GetMe returns the authenticated user's own profile
func GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := services.GetUserByID(userID)
	if err != nil || user == nil {
		writeJSON(w, http.StatusNotFound, APIResponse{Success: false, Message: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: user})
}
