package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/internal/security"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionService issues Redis-backed session tokens and registers each one
// with the guard so the IP/User-Agent fingerprint is enforced per request.
type SessionService struct {
	guard *security.Guard
}

func NewSessionService(guard *security.Guard) *SessionService {
	return &SessionService{guard: guard}
}

// CreateSession creates a new session for a user and stores it in Redis.
// Any existing session for the user is invalidated first so the 7-day timer
// resets from the current login. The session is bound to the caller's IP and
// User-Agent; a later mismatch destroys it.
func (s *SessionService) CreateSession(userID, ip, userAgent string) (string, error) {
	s.InvalidateUserSessions(userID)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	sessionToken := base64.URLEncoding.EncodeToString(tokenBytes)

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken
	userSessionKey := UserSessionKeyPrefix + userID

	if err := database.RedisClient.Set(ctx, sessionKey, userID, SessionDuration).Err(); err != nil {
		return "", err
	}
	if err := database.RedisClient.Set(ctx, userSessionKey, sessionToken, SessionDuration).Err(); err != nil {
		return "", err
	}

	s.guard.RegisterSession(sessionToken, ip, userAgent)
	return sessionToken, nil
}

// ValidateSession checks the token in Redis and the IP/User-Agent binding in
// the guard. A fingerprint mismatch destroys the session on both sides.
func (s *SessionService) ValidateSession(sessionToken, ip, userAgent string) (string, bool, error) {
	if sessionToken == "" {
		return "", false, nil
	}

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken

	userID, err := database.RedisClient.Get(ctx, sessionKey).Result()
	if err != nil {
		return "", false, nil
	}

	check := s.guard.ValidateSession(sessionToken, ip, userAgent)
	if !check.IsValid {
		if check.Reason == "session_mismatch" {
			s.InvalidateSession(sessionToken)
		}
		return "", false, nil
	}

	return userID, true, nil
}

// RefreshSession extends the session expiration by 7 days from now.
func (s *SessionService) RefreshSession(sessionToken string) error {
	if sessionToken == "" {
		return fmt.Errorf("session token is empty")
	}

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken

	userID, err := database.RedisClient.Get(ctx, sessionKey).Result()
	if err != nil {
		return err
	}

	userSessionKey := UserSessionKeyPrefix + userID

	if err := database.RedisClient.Expire(ctx, sessionKey, SessionDuration).Err(); err != nil {
		return err
	}
	return database.RedisClient.Expire(ctx, userSessionKey, SessionDuration).Err()
}

// InvalidateSession removes a session from Redis and drops its fingerprint.
func (s *SessionService) InvalidateSession(sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken

	userID, err := database.RedisClient.Get(ctx, sessionKey).Result()
	if err == nil && userID != "" {
		database.RedisClient.Del(ctx, UserSessionKeyPrefix+userID)
	}

	s.guard.DropSession(sessionToken)
	return database.RedisClient.Del(ctx, sessionKey).Err()
}

// InvalidateUserSessions invalidates all sessions for a user (useful when the
// account is blocked or the password changes).
func (s *SessionService) InvalidateUserSessions(userID string) error {
	ctx := context.Background()
	userSessionKey := UserSessionKeyPrefix + userID

	sessionToken, err := database.RedisClient.Get(ctx, userSessionKey).Result()
	if err == nil && sessionToken != "" {
		s.guard.DropSession(sessionToken)
		database.RedisClient.Del(ctx, SessionKeyPrefix+sessionToken)
	}

	return database.RedisClient.Del(ctx, userSessionKey).Err()
}
