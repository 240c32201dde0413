package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/MarkusAkitus/Teender/internal/models"
	"github.com/MarkusAkitus/Teender/internal/moderation"
	"github.com/MarkusAkitus/Teender/internal/security"
	"github.com/MarkusAkitus/Teender/pkg/utils"
)

// Mediator outcomes surfaced to handlers. Handlers map these onto HTTP
// status codes; the mediator itself never touches the transport.
var (
	ErrBlockedIP          = errors.New("ip address is blocked")
	ErrRestricted         = errors.New("account is restricted")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidRequest     = errors.New("request contains disallowed content")
	ErrContentRejected    = errors.New("message rejected by moderation")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnsafeFile         = errors.New("file failed security scan")
	ErrNotInMatch         = errors.New("user is not part of this match")
)

// UserStore is the account persistence the mediator depends on.
type UserStore interface {
	GetByID(id string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Create(name, email, passwordHash string, age int, gender string) (*models.User, error)
	UpdateProfile(id, name, bio, avatarURL string) error
	UpdateModerationState(id string, status models.AccountStatus, riskScore int, riskLevel string, restrictedUntil *time.Time) error
	RecordLike(fromID, toID string, positive bool) (bool, error)
}

// RestrictionStore holds temporary restrictions keyed by user.
type RestrictionStore interface {
	Restrict(ctx context.Context, userID, reason string, duration time.Duration) error
	Get(ctx context.Context, userID string) (*models.Restriction, error)
}

// MessageStore persists chat messages and serves the recent-message window
// the spam detector reads.
type MessageStore interface {
	Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	Recent(ctx context.Context, senderID string, limit int64) ([]models.ChatMessage, error)
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	CreateMatch(ctx context.Context, userA, userB string) (*models.Match, error)
}

// ViolationRecorder persists enforcement audit records.
type ViolationRecorder interface {
	Record(userID, ip string, violationType models.ViolationType, score int, details, actionTaken string) error
}

// Notifier pushes accepted chat events to connected clients.
type Notifier interface {
	Publish(ctx context.Context, event ChatEvent) error
}

// SessionInvalidator tears down sessions when an account is blocked.
type SessionInvalidator interface {
	InvalidateUserSessions(userID string) error
}

// QueueSink receives every accepted mutation for client-side replay. A nil
// sink disables queueing.
type QueueSink func(action string, payload map[string]any)

// Uploader pushes scanned file content to object storage.
type Uploader interface {
	UploadBytes(ctx context.Context, content []byte, folder string) (string, error)
}

// ActionMediator is the single entry point for user actions. Every mutating
// operation runs the same pipeline: IP block check, restriction check,
// content validation, rate limiting, moderation, then the domain mutation.
// A rejection at any stage stops the pipeline before any state changes.
type ActionMediator struct {
	guard     *security.Guard
	moderator *moderation.System

	users        UserStore
	restrictions RestrictionStore
	messages     MessageStore
	violations   ViolationRecorder
	notifier     Notifier
	sessions     SessionInvalidator
	uploader     Uploader
	queue        QueueSink

	// hourly per-user activity counters feeding the bot-behavior check
	likeActivity    *security.RateWindowTracker
	messageActivity *security.RateWindowTracker

	nowFn func() time.Time
}

// MediatorDeps bundles the collaborators for NewActionMediator.
type MediatorDeps struct {
	Guard        *security.Guard
	Moderator    *moderation.System
	Users        UserStore
	Restrictions RestrictionStore
	Messages     MessageStore
	Violations   ViolationRecorder
	Notifier     Notifier
	Sessions     SessionInvalidator
	Uploader     Uploader
	Queue        QueueSink
}

func NewActionMediator(deps MediatorDeps) *ActionMediator {
	return &ActionMediator{
		guard:        deps.Guard,
		moderator:    deps.Moderator,
		users:        deps.Users,
		restrictions: deps.Restrictions,
		messages:     deps.Messages,
		violations:   deps.Violations,
		notifier:     deps.Notifier,
		sessions:     deps.Sessions,
		uploader:     deps.Uploader,
		queue:        deps.Queue,
		likeActivity: security.NewRateWindowTracker(config.RateLimitPolicy{
			Max: 1000, Window: time.Hour,
		}),
		messageActivity: security.NewRateWindowTracker(config.RateLimitPolicy{
			Max: 1000, Window: time.Hour,
		}),
		nowFn: time.Now,
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (m *ActionMediator) SetClock(now func() time.Time) {
	m.nowFn = now
	m.likeActivity.SetClock(now)
	m.messageActivity.SetClock(now)
}

func (m *ActionMediator) enqueue(action string, payload map[string]any) {
	if m.queue != nil {
		m.queue(action, payload)
	}
}

// checkActor loads the user and rejects blocked or restricted accounts.
// Restrictions live in Redis with a TTL, so a lapsed one simply isn't there.
func (m *ActionMediator) checkActor(ctx context.Context, userID string) (*models.User, error) {
	user, err := m.users.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Status == models.StatusBlocked {
		return nil, ErrAccountBlocked
	}

	restriction, err := m.restrictions.Get(ctx, userID)
	if err != nil {
		// Fail open: a restriction lookup error must not take the app down.
		restriction = nil
	}
	if restriction != nil {
		return nil, ErrRestricted
	}
	if !user.CanAct(m.nowFn()) {
		return nil, ErrRestricted
	}
	return user, nil
}

// gatekeep runs the shared IP, content and rate stages for a mutating
// request. Content threats raise a HIGH alert before the rejection.
func (m *ActionMediator) gatekeep(userID, ip, path string, body map[string]any) error {
	if m.guard.CheckBlacklist(ip) && !m.guard.CheckWhitelist(ip) {
		return ErrBlockedIP
	}

	check := m.guard.ValidateRequest(security.Request{Path: path, Body: body})
	if !check.IsValid {
		m.guard.GenerateAlert(map[string]any{
			"type": "invalid_request", "path": path, "threats": check.Threats, "ip": ip,
		}, security.SeverityHigh)
		if userID != "" {
			_ = m.violations.Record(userID, ip, models.ViolationTypeInjection, 0,
				fmt.Sprintf("threats: %v", check.Threats), "rejected")
		}
		return ErrInvalidRequest
	}

	if limit := m.guard.EnforceRateLimit(ip, path); !limit.Allowed {
		return ErrRateLimited
	}

	ddos := m.guard.DetectDDoS(ip)
	if ddos.Action == "block" {
		return ErrBlockedIP
	}

	return nil
}

// activitySnapshot builds the moderation view of a user from the stored
// account plus their recent messages.
func (m *ActionMediator) activitySnapshot(user *models.User, recent []models.ChatMessage) moderation.ActivitySnapshot {
	msgs := make([]moderation.Message, len(recent))
	for i, rm := range recent {
		msgs[i] = moderation.Message{Text: rm.Text, Time: rm.CreatedAt}
	}
	return moderation.ActivitySnapshot{
		AccountAgeHours: int(m.nowFn().Sub(user.CreatedAt).Hours()),
		RecentMessages:  msgs,
	}
}

func (m *ActionMediator) moderationProfile(user *models.User) moderation.Profile {
	return moderation.Profile{
		ID:        user.ID,
		Name:      user.Name,
		Bio:       user.Bio,
		AvatarURL: user.AvatarURL,
	}
}

// applyEnforcement persists the outcome of a moderation action: account
// standing in Postgres, a TTL restriction in Redis for temp restrictions,
// session teardown for blocks, and the audit record in Mongo. The decision
// itself came from the moderation system; this only carries it out.
func (m *ActionMediator) applyEnforcement(ctx context.Context, user *models.User, ip string, violationType models.ViolationType, risk moderation.RiskAssessment, action moderation.Action) error {
	switch action.Action {
	case moderation.ActionWarning:
		_ = m.violations.Record(user.ID, ip, violationType, risk.Score, "", action.Action)
		return m.users.UpdateModerationState(user.ID, models.StatusWarned, risk.Score, risk.Level, nil)

	case moderation.ActionTempRestrict:
		duration := time.Duration(action.DurationMinutes) * time.Minute
		until := m.nowFn().Add(duration)
		_ = m.violations.Record(user.ID, ip, violationType, risk.Score, "", action.Action)
		if err := m.restrictions.Restrict(ctx, user.ID, string(violationType), duration); err != nil {
			return err
		}
		return m.users.UpdateModerationState(user.ID, models.StatusRestricted, risk.Score, risk.Level, &until)

	case moderation.ActionBlock:
		_ = m.violations.Record(user.ID, ip, violationType, risk.Score, "", action.Action)
		if m.sessions != nil {
			_ = m.sessions.InvalidateUserSessions(user.ID)
		}
		return m.users.UpdateModerationState(user.ID, models.StatusBlocked, risk.Score, risk.Level, nil)

	default:
		return m.users.UpdateModerationState(user.ID, models.StatusActive, risk.Score, risk.Level, nil)
	}
}

// SignUpInput is the registration payload.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Age      int
	Gender   string
}

// SignUp validates and rate limits the registration, creates the account,
// then runs the fake-profile check on the fresh profile. A profile that
// trips moderation is still created; its standing just starts degraded.
func (m *ActionMediator) SignUp(ctx context.Context, ip, userAgent string, input SignUpInput) (*models.User, error) {
	body := map[string]any{"name": input.Name, "email": input.Email}
	if err := m.gatekeep("", ip, "/api/register", body); err != nil {
		return nil, err
	}

	existing, err := m.users.GetByEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user, err := m.users.Create(input.Name, input.Email, hash, input.Age, input.Gender)
	if err != nil {
		return nil, err
	}

	m.guard.TrackIP(ip, user.ID, "register")

	fake := m.moderator.AnalyzeFakeProfile(m.moderationProfile(user))
	if fake.IsFake {
		score := int(math.Round(fake.Probability * 100))
		risk := moderation.RiskAssessment{Score: score, Level: moderation.LevelSuspicious}
		action := m.moderator.HandleViolation(user.ID, moderation.ScoreViolation(score))
		if err := m.applyEnforcement(ctx, user, ip, models.ViolationTypeFakeProfile, risk, action); err != nil {
			return nil, err
		}
	}

	m.enqueue("signup", map[string]any{"userId": user.ID})
	return user, nil
}

// SignIn authenticates a user. Brute force detection runs first and counts
// every call, successful or not; its block lapses with the login window, so
// a locked-out IP recovers without an admin unblock. The blacklist gate only
// runs after it, otherwise the brute force blacklisting would shadow its own
// recovery.
func (m *ActionMediator) SignIn(ctx context.Context, ip, userAgent, email, password string) (*models.User, error) {
	brute := m.guard.DetectBruteForce(ip, "/api/login")
	if brute.IsAttack {
		return nil, ErrTooManyAttempts
	}

	if m.guard.CheckBlacklist(ip) && !m.guard.CheckWhitelist(ip) {
		return nil, ErrBlockedIP
	}

	body := map[string]any{"email": email, "password": password}
	check := m.guard.ValidateRequest(security.Request{Path: "/api/login", Body: body})
	if !check.IsValid {
		m.guard.GenerateAlert(map[string]any{
			"type": "invalid_request", "path": "/api/login", "threats": check.Threats, "ip": ip,
		}, security.SeverityHigh)
		return nil, ErrInvalidRequest
	}

	if limit := m.guard.EnforceRateLimit(ip, "/api/login"); !limit.Allowed {
		return nil, ErrRateLimited
	}

	user, err := m.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := utils.VerifyPassword(password, user.Password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if user.Status == models.StatusBlocked {
		return nil, ErrAccountBlocked
	}

	m.guard.TrackIP(ip, user.ID, "login")
	return user, nil
}

// SendMessageResult is the accepted message plus any non-blocking flags.
type SendMessageResult struct {
	Message models.ChatMessage
	Flags   []string
}

// SendMessage runs the full pipeline for a chat message: actor standing,
// content validation, rate limit, toxicity and spam checks, then persistence
// and fan-out. A rejected message is never stored.
func (m *ActionMediator) SendMessage(ctx context.Context, userID, ip, matchID, text string) (*SendMessageResult, error) {
	user, err := m.checkActor(ctx, userID)
	if err != nil {
		return nil, err
	}

	match, err := m.messages.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil || !match.Involves(userID) {
		return nil, ErrNotInMatch
	}

	if err := m.gatekeep(userID, ip, "/api/messages", map[string]any{"text": text}); err != nil {
		return nil, err
	}

	msgCheck := m.moderator.AnalyzeMessage(text)

	recent, err := m.messages.Recent(ctx, userID, 10)
	if err != nil {
		recent = nil // spam check degrades to the new message alone
	}
	window := make([]moderation.Message, 0, len(recent)+1)
	for _, rm := range recent {
		window = append(window, moderation.Message{Text: rm.Text, Time: rm.CreatedAt})
	}
	window = append(window, moderation.Message{Text: text, Time: m.nowFn()})
	spamCheck := m.moderator.DetectSpam(window)

	if msgCheck.IsToxic || spamCheck.IsSpam {
		violationType := models.ViolationTypeToxicity
		if spamCheck.IsSpam && !msgCheck.IsToxic {
			violationType = models.ViolationTypeSpam
		}

		activity := m.activitySnapshot(user, recent)
		risk := m.moderator.CalculateRiskScore(m.moderationProfile(user), activity)
		action := m.moderator.HandleViolation(userID, moderation.ScoreViolation(risk.Score))
		if err := m.applyEnforcement(ctx, user, ip, violationType, risk, action); err != nil {
			return nil, err
		}
		return nil, ErrContentRejected
	}

	saved, err := m.messages.Save(ctx, models.ChatMessage{
		MatchID:    matchID,
		SenderID:   userID,
		SenderName: user.Name,
		Text:       text,
		CreatedAt:  m.nowFn().UTC(),
	})
	if err != nil {
		return nil, err
	}
	m.messageActivity.Record(userID)

	if m.notifier != nil {
		_ = m.notifier.Publish(ctx, ChatEvent{
			Type:       "message",
			MatchID:    matchID,
			SenderID:   userID,
			SenderName: user.Name,
			Message:    saved.Text,
			Timestamp:  saved.CreatedAt,
		})
	}

	m.enqueue("send_message", map[string]any{"matchId": matchID, "messageId": saved.ID.Hex()})
	return &SendMessageResult{Message: saved, Flags: msgCheck.Flags}, nil
}

// LikeResult reports a recorded swipe and the match it may have produced.
type LikeResult struct {
	Matched bool
	Match   *models.Match
}

// LikeProfile records a positive swipe and creates a match when it is mutual.
func (m *ActionMediator) LikeProfile(ctx context.Context, userID, ip, targetID string) (*LikeResult, error) {
	return m.swipe(ctx, userID, ip, targetID, true)
}

// PassProfile records a negative swipe. Passes never produce matches.
func (m *ActionMediator) PassProfile(ctx context.Context, userID, ip, targetID string) (*LikeResult, error) {
	return m.swipe(ctx, userID, ip, targetID, false)
}

func (m *ActionMediator) swipe(ctx context.Context, userID, ip, targetID string, positive bool) (*LikeResult, error) {
	user, err := m.checkActor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := m.gatekeep(userID, ip, "/api/likes", map[string]any{"target": targetID}); err != nil {
		return nil, err
	}

	verb := "pass"
	if positive {
		verb = "like"
	}
	m.guard.TrackIP(ip, userID, verb)

	// Swipes are where bot farms show up, so every accepted one re-scores
	// the actor from their hourly activity before the swipe is recorded.
	// Only swipes that clear the gate count toward the hourly rate.
	snapshot := moderation.ActivitySnapshot{
		LikesPerHour:    m.likeActivity.Record(userID).Count,
		MessagesPerHour: m.messageActivity.Peek(userID).Count,
		AccountAgeHours: int(m.nowFn().Sub(user.CreatedAt).Hours()),
	}
	risk := m.moderator.CalculateRiskScore(m.moderationProfile(user), snapshot)
	if decision := m.moderator.HandleViolation(userID, moderation.ScoreViolation(risk.Score)); decision.Action != moderation.ActionNone {
		if err := m.applyEnforcement(ctx, user, ip, models.ViolationTypeBot, risk, decision); err != nil {
			return nil, err
		}
		switch decision.Action {
		case moderation.ActionTempRestrict:
			return nil, ErrRestricted
		case moderation.ActionBlock:
			return nil, ErrAccountBlocked
		}
	}

	mutual, err := m.users.RecordLike(userID, targetID, positive)
	if err != nil {
		return nil, err
	}

	result := &LikeResult{}
	if mutual {
		match, err := m.messages.CreateMatch(ctx, userID, targetID)
		if err != nil {
			return nil, err
		}
		result.Matched = true
		result.Match = match
	}

	m.enqueue("swipe", map[string]any{"target": targetID, "positive": positive})
	return result, nil
}

// UpdateProfileInput is the editable profile payload.
type UpdateProfileInput struct {
	Name      string
	Bio       string
	AvatarURL string
}

// UpdateProfile validates the new content, re-runs the fake-profile check on
// the resulting profile and persists the edit when it survives moderation.
func (m *ActionMediator) UpdateProfile(ctx context.Context, userID, ip string, input UpdateProfileInput) (*models.User, error) {
	user, err := m.checkActor(ctx, userID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"name": input.Name, "bio": input.Bio}
	if err := m.gatekeep(userID, ip, "/api/profile", body); err != nil {
		return nil, err
	}

	candidate := *user
	candidate.Name = input.Name
	candidate.Bio = input.Bio
	if input.AvatarURL != "" {
		candidate.AvatarURL = input.AvatarURL
	}

	fake := m.moderator.AnalyzeFakeProfile(m.moderationProfile(&candidate))
	if fake.IsFake {
		score := int(math.Round(fake.Probability * 100))
		risk := moderation.RiskAssessment{Score: score, Level: moderation.LevelSuspicious}
		action := m.moderator.HandleViolation(userID, moderation.ScoreViolation(score))
		if err := m.applyEnforcement(ctx, user, ip, models.ViolationTypeFakeProfile, risk, action); err != nil {
			return nil, err
		}
		return nil, ErrContentRejected
	}

	if err := m.users.UpdateProfile(userID, candidate.Name, candidate.Bio, candidate.AvatarURL); err != nil {
		return nil, err
	}

	m.enqueue("update_profile", map[string]any{"userId": userID})
	updated := candidate
	return &updated, nil
}

// UploadAvatar scans the file with the guard and, when safe, pushes it to
// object storage and sets it as the user's avatar. Unsafe files raise a
// MEDIUM alert and are never uploaded.
func (m *ActionMediator) UploadAvatar(ctx context.Context, userID, ip, filename string, content []byte) (string, error) {
	user, err := m.checkActor(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := m.gatekeep(userID, ip, "/api/upload", nil); err != nil {
		return "", err
	}

	header := content
	if len(header) > 4 {
		header = header[:4]
	}

	scan := m.guard.ScanUploadedFile(security.FileUpload{
		Name:   filename,
		Size:   int64(len(content)),
		Header: string(header),
	})
	if !scan.IsSafe {
		m.guard.GenerateAlert(map[string]any{
			"type": "unsafe_upload", "file": filename, "threats": scan.Threats, "userId": userID,
		}, security.SeverityMedium)
		_ = m.violations.Record(userID, ip, models.ViolationTypeUnsafeFile, 0,
			fmt.Sprintf("unsafe upload: %v", scan.Threats), "rejected")
		return "", ErrUnsafeFile
	}

	if m.uploader == nil {
		return "", fmt.Errorf("file uploads are not available")
	}

	url, err := m.uploader.UploadBytes(ctx, content, "avatars")
	if err != nil {
		return "", err
	}

	if err := m.users.UpdateProfile(userID, user.Name, user.Bio, url); err != nil {
		return "", err
	}

	m.enqueue("upload_avatar", map[string]any{"userId": userID})
	return url, nil
}
