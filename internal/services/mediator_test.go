package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/MarkusAkitus/Teender/internal/models"
	"github.com/MarkusAkitus/Teender/internal/moderation"
	"github.com/MarkusAkitus/Teender/internal/security"
	"github.com/MarkusAkitus/Teender/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	users      map[string]*models.User
	byEmail    map[string]*models.User
	likes      map[string]bool
	modUpdates []string
	updated    []string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
		likes:   make(map[string]bool),
	}
}

func (f *fakeUserStore) add(u *models.User) {
	f.users[u.ID] = u
	f.byEmail[u.Email] = u
}

func (f *fakeUserStore) GetByID(id string) (*models.User, error)       { return f.users[id], nil }
func (f *fakeUserStore) GetByEmail(email string) (*models.User, error) { return f.byEmail[email], nil }

func (f *fakeUserStore) Create(name, email, passwordHash string, age int, gender string) (*models.User, error) {
	u := &models.User{
		ID: "u-" + name, Name: name, Email: email, Password: passwordHash,
		Age: age, Gender: gender, Status: models.StatusActive,
		CreatedAt: time.Now(),
	}
	f.add(u)
	return u, nil
}

func (f *fakeUserStore) UpdateProfile(id, name, bio, avatarURL string) error {
	f.updated = append(f.updated, id)
	if u, ok := f.users[id]; ok {
		u.Name, u.Bio, u.AvatarURL = name, bio, avatarURL
	}
	return nil
}

func (f *fakeUserStore) UpdateModerationState(id string, status models.AccountStatus, riskScore int, riskLevel string, restrictedUntil *time.Time) error {
	f.modUpdates = append(f.modUpdates, id+":"+string(status))
	if u, ok := f.users[id]; ok {
		u.Status, u.RiskScore, u.RiskLevel, u.RestrictedUntil = status, riskScore, riskLevel, restrictedUntil
	}
	return nil
}

func (f *fakeUserStore) RecordLike(fromID, toID string, positive bool) (bool, error) {
	f.likes[fromID+">"+toID] = positive
	return positive && f.likes[toID+">"+fromID], nil
}

type fakeRestrictionStore struct {
	restricted map[string]*models.Restriction
}

func newFakeRestrictionStore() *fakeRestrictionStore {
	return &fakeRestrictionStore{restricted: make(map[string]*models.Restriction)}
}

func (f *fakeRestrictionStore) Restrict(_ context.Context, userID, reason string, duration time.Duration) error {
	f.restricted[userID] = &models.Restriction{
		UserID: userID, Reason: reason,
		UntilMs: time.Now().Add(duration).UnixMilli(),
	}
	return nil
}

func (f *fakeRestrictionStore) Get(_ context.Context, userID string) (*models.Restriction, error) {
	return f.restricted[userID], nil
}

type fakeMessageStore struct {
	saved   []models.ChatMessage
	recent  []models.ChatMessage
	matches map[string]*models.Match
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{matches: make(map[string]*models.Match)}
}

func (f *fakeMessageStore) Save(_ context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeMessageStore) Recent(_ context.Context, _ string, _ int64) ([]models.ChatMessage, error) {
	return f.recent, nil
}

func (f *fakeMessageStore) GetMatch(_ context.Context, matchID string) (*models.Match, error) {
	return f.matches[matchID], nil
}

func (f *fakeMessageStore) CreateMatch(_ context.Context, userA, userB string) (*models.Match, error) {
	m := &models.Match{UserA: userA, UserB: userB, CreatedAt: time.Now()}
	f.matches[userA+"|"+userB] = m
	return m, nil
}

type fakeViolationRecorder struct {
	records []string
}

func (f *fakeViolationRecorder) Record(userID, _ string, violationType models.ViolationType, _ int, _, actionTaken string) error {
	f.records = append(f.records, userID+":"+string(violationType)+":"+actionTaken)
	return nil
}

type fakeNotifier struct {
	events []ChatEvent
}

func (f *fakeNotifier) Publish(_ context.Context, event ChatEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeSessions struct {
	invalidated []string
}

func (f *fakeSessions) InvalidateUserSessions(userID string) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakeUploader struct {
	uploads int
}

func (f *fakeUploader) UploadBytes(_ context.Context, _ []byte, folder string) (string, error) {
	f.uploads++
	return "https://cdn.example.com/" + folder + "/file.jpg", nil
}

type mediatorFixture struct {
	mediator     *ActionMediator
	guard        *security.Guard
	users        *fakeUserStore
	restrictions *fakeRestrictionStore
	messages     *fakeMessageStore
	violations   *fakeViolationRecorder
	notifier     *fakeNotifier
	sessions     *fakeSessions
	uploader     *fakeUploader
	queued       []string
}

func newMediatorFixture(t *testing.T) *mediatorFixture {
	t.Helper()
	fx := &mediatorFixture{
		users:        newFakeUserStore(),
		restrictions: newFakeRestrictionStore(),
		messages:     newFakeMessageStore(),
		violations:   &fakeViolationRecorder{},
		notifier:     &fakeNotifier{},
		sessions:     &fakeSessions{},
		uploader:     &fakeUploader{},
	}
	fx.guard = security.NewGuard(config.DefaultSecurity())
	fx.mediator = NewActionMediator(MediatorDeps{
		Guard:        fx.guard,
		Moderator:    moderation.NewSystem(config.DefaultModeration()),
		Users:        fx.users,
		Restrictions: fx.restrictions,
		Messages:     fx.messages,
		Violations:   fx.violations,
		Notifier:     fx.notifier,
		Sessions:     fx.sessions,
		Uploader:     fx.uploader,
		Queue: func(action string, _ map[string]any) {
			fx.queued = append(fx.queued, action)
		},
	})
	return fx
}

func (fx *mediatorFixture) addHealthyUser(id, name string) *models.User {
	u := &models.User{
		ID: id, Name: name, Email: name + "@example.com",
		Bio:       "una bio con suficiente longitud",
		AvatarURL: "https://cdn.example.com/" + id + ".jpg",
		Status:    models.StatusActive,
		CreatedAt: time.Now().Add(-200 * time.Hour),
	}
	fx.users.add(u)
	return u
}

func TestSendMessageHappyPath(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.messages.matches["m1"] = &models.Match{UserA: "u1", UserB: "u2"}

	result, err := fx.mediator.SendMessage(context.Background(), "u1", "10.0.0.1", "m1", "hola, que tal?")
	require.NoError(t, err)
	assert.Equal(t, "hola, que tal?", result.Message.Text)
	assert.Len(t, fx.messages.saved, 1)
	assert.Len(t, fx.notifier.events, 1)
	assert.Equal(t, []string{"send_message"}, fx.queued)
}

func TestSendMessageInjectionRejectedBeforePersistence(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.messages.matches["m1"] = &models.Match{UserA: "u1", UserB: "u2"}

	_, err := fx.mediator.SendMessage(context.Background(), "u1", "10.0.0.1", "m1",
		"'; DROP TABLE users; --")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, fx.messages.saved)
	assert.Empty(t, fx.notifier.events)
	assert.Empty(t, fx.queued)
	assert.Contains(t, fx.violations.records, "u1:injection:rejected")
}

func TestSendMessageRequiresMatchMembership(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.messages.matches["m1"] = &models.Match{UserA: "u2", UserB: "u3"}

	_, err := fx.mediator.SendMessage(context.Background(), "u1", "10.0.0.1", "m1", "hola")
	assert.ErrorIs(t, err, ErrNotInMatch)
	assert.Empty(t, fx.messages.saved)
}

func TestSendMessageSpamTriggersEnforcement(t *testing.T) {
	fx := newMediatorFixture(t)
	user := fx.addHealthyUser("u1", "Marta")
	fx.messages.matches["m1"] = &models.Match{UserA: "u1", UserB: "u2"}

	now := time.Now()
	for i := 0; i < 9; i++ {
		fx.messages.recent = append(fx.messages.recent, models.ChatMessage{
			SenderID: "u1", Text: "compra ya", CreatedAt: now.Add(-time.Duration(9-i) * time.Second),
		})
	}

	_, err := fx.mediator.SendMessage(context.Background(), "u1", "10.0.0.1", "m1", "compra ya")
	assert.ErrorIs(t, err, ErrContentRejected)
	assert.Empty(t, fx.messages.saved)
	assert.NotEmpty(t, fx.violations.records)
	// spam confidence 1.0 alone puts the risk at 40, a warning
	assert.Equal(t, models.StatusWarned, user.Status)
}

func TestSendMessageRestrictedActorRejected(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.restrictions.restricted["u1"] = &models.Restriction{UserID: "u1", Reason: "spam"}

	_, err := fx.mediator.SendMessage(context.Background(), "u1", "10.0.0.1", "m1", "hola")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestSendMessageRateLimited(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.messages.matches["m1"] = &models.Match{UserA: "u1", UserB: "u2"}

	var lastErr error
	for i := 0; i < 51; i++ {
		_, lastErr = fx.mediator.SendMessage(context.Background(), "u1", "10.0.0.2", "m1", "hola, que tal?")
	}
	assert.ErrorIs(t, lastErr, ErrRateLimited)
	assert.Len(t, fx.messages.saved, 50)
}

func TestLikeProfileCreatesMatchWhenMutual(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.addHealthyUser("u2", "Lucia")

	first, err := fx.mediator.LikeProfile(context.Background(), "u1", "10.0.0.1", "u2")
	require.NoError(t, err)
	assert.False(t, first.Matched)

	second, err := fx.mediator.LikeProfile(context.Background(), "u2", "10.0.0.3", "u1")
	require.NoError(t, err)
	assert.True(t, second.Matched)
	require.NotNil(t, second.Match)
	assert.True(t, second.Match.Involves("u1"))
	assert.True(t, second.Match.Involves("u2"))
}

func TestSwipeBotActivityEscalates(t *testing.T) {
	fx := newMediatorFixture(t)
	u := &models.User{
		ID: "bot1", Name: "user99999", Email: "bot1@example.com",
		Status:    models.StatusActive,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	fx.users.add(u)

	// 80 likes in the hour stay under the bot threshold even for a fresh
	// account with a bare profile.
	for i := 0; i < 80; i++ {
		_, err := fx.mediator.LikeProfile(context.Background(), "bot1", "10.0.0.9", fmt.Sprintf("t%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusActive, u.Status)

	_, err := fx.mediator.LikeProfile(context.Background(), "bot1", "10.0.0.9", "t80")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarned, u.Status)
	assert.Contains(t, fx.violations.records, "bot1:bot:warning")
}

func TestSwipeRateLimitedAttemptsDoNotEscalate(t *testing.T) {
	fx := newMediatorFixture(t)
	u := &models.User{
		ID: "bot1", Name: "user99999", Email: "bot1@example.com",
		Status:    models.StatusActive,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	fx.users.add(u)

	// exhaust the likes bucket
	for i := 0; i < 100; i++ {
		_, err := fx.mediator.LikeProfile(context.Background(), "bot1", "10.0.0.9", fmt.Sprintf("t%d", i))
		require.NoError(t, err)
	}
	violationsBefore := len(fx.violations.records)
	updatesBefore := len(fx.users.modUpdates)

	// the rejected swipe must not count activity or run moderation
	_, err := fx.mediator.LikeProfile(context.Background(), "bot1", "10.0.0.9", "t100")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, fx.violations.records, violationsBefore)
	assert.Len(t, fx.users.modUpdates, updatesBefore)
}

func TestPassProfileNeverMatches(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")
	fx.addHealthyUser("u2", "Lucia")

	_, err := fx.mediator.LikeProfile(context.Background(), "u1", "10.0.0.1", "u2")
	require.NoError(t, err)

	result, err := fx.mediator.PassProfile(context.Background(), "u2", "10.0.0.3", "u1")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestSignUpCreatesAccount(t *testing.T) {
	fx := newMediatorFixture(t)

	user, err := fx.mediator.SignUp(context.Background(), "10.0.0.1", "Mozilla/5.0", SignUpInput{
		Name: "Marta", Email: "marta@example.com", Password: "s3cret-pass", Age: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, user.Status)
	assert.Contains(t, fx.queued, "signup")
}

func TestSignUpFakeProfileStartsDegraded(t *testing.T) {
	fx := newMediatorFixture(t)

	// no avatar, short bio, digit-heavy name: probability 0.6 maps to a warning
	user, err := fx.mediator.SignUp(context.Background(), "10.0.0.1", "Mozilla/5.0", SignUpInput{
		Name: "user82731", Email: "bot@example.com", Password: "s3cret-pass", Age: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarned, user.Status)
	assert.Contains(t, fx.violations.records, user.ID+":fake_profile:warning")
}

func TestSignInBruteForceBlocks(t *testing.T) {
	fx := newMediatorFixture(t)

	hash, err := utils.HashPassword("right-password")
	require.NoError(t, err)
	u := fx.addHealthyUser("u1", "Marta")
	u.Password = hash

	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = fx.mediator.SignIn(context.Background(), "10.0.0.9", "Mozilla/5.0",
			"Marta@example.com", "wrong-password")
	}
	assert.ErrorIs(t, lastErr, ErrTooManyAttempts)

	// the block holds even with correct credentials
	_, err = fx.mediator.SignIn(context.Background(), "10.0.0.9", "Mozilla/5.0",
		"Marta@example.com", "right-password")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestSignInBruteForceLiftsAfterWindow(t *testing.T) {
	fx := newMediatorFixture(t)
	now := time.Now()
	fx.guard.SetClock(func() time.Time { return now })

	hash, err := utils.HashPassword("right-password")
	require.NoError(t, err)
	u := fx.addHealthyUser("u1", "Marta")
	u.Password = hash

	for i := 0; i < 6; i++ {
		_, err = fx.mediator.SignIn(context.Background(), "10.0.0.9", "Mozilla/5.0",
			"Marta@example.com", "wrong-password")
	}
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.True(t, fx.guard.CheckBlacklist("10.0.0.9"))

	// past the login window the block and its blacklist entry both lapse
	now = now.Add(16 * time.Minute)
	got, err := fx.mediator.SignIn(context.Background(), "10.0.0.9", "Mozilla/5.0",
		"Marta@example.com", "right-password")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.False(t, fx.guard.CheckBlacklist("10.0.0.9"))
}

func TestSignInRejectsInjectionPayload(t *testing.T) {
	fx := newMediatorFixture(t)

	_, err := fx.mediator.SignIn(context.Background(), "10.0.0.1", "Mozilla/5.0",
		"marta@example.com", "' OR '1'='1")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSignInSuccess(t *testing.T) {
	fx := newMediatorFixture(t)

	hash, err := utils.HashPassword("right-password")
	require.NoError(t, err)
	u := fx.addHealthyUser("u1", "Marta")
	u.Password = hash
	fx.users.byEmail["marta@example.com"] = u

	got, err := fx.mediator.SignIn(context.Background(), "10.0.0.1", "Mozilla/5.0",
		"marta@example.com", "right-password")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestUploadAvatarRejectsDisguisedExecutable(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")

	content := append([]byte("MZ"), make([]byte, 100)...)
	_, err := fx.mediator.UploadAvatar(context.Background(), "u1", "10.0.0.1", "photo.jpg", content)
	assert.ErrorIs(t, err, ErrUnsafeFile)
	assert.Zero(t, fx.uploader.uploads)
	assert.Contains(t, fx.violations.records, "u1:unsafe_file:rejected")
}

func TestUploadAvatarHappyPath(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")

	content := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 100)...)
	url, err := fx.mediator.UploadAvatar(context.Background(), "u1", "10.0.0.1", "photo.jpg", content)
	require.NoError(t, err)
	assert.Contains(t, url, "avatars")
	assert.Equal(t, 1, fx.uploader.uploads)
	assert.Contains(t, fx.users.updated, "u1")
}

func TestUpdateProfileRejectsFakeEdit(t *testing.T) {
	fx := newMediatorFixture(t)
	u := fx.addHealthyUser("u1", "Marta")
	u.AvatarURL = ""

	_, err := fx.mediator.UpdateProfile(context.Background(), "u1", "10.0.0.1", UpdateProfileInput{
		Name: "promo19283", Bio: "x", AvatarURL: "",
	})
	assert.ErrorIs(t, err, ErrContentRejected)
	assert.Empty(t, fx.users.updated)
}

func TestUpdateProfileHappyPath(t *testing.T) {
	fx := newMediatorFixture(t)
	fx.addHealthyUser("u1", "Marta")

	updated, err := fx.mediator.UpdateProfile(context.Background(), "u1", "10.0.0.1", UpdateProfileInput{
		Name: "Marta", Bio: "me encanta el senderismo y la fotografia",
	})
	require.NoError(t, err)
	assert.Equal(t, "me encanta el senderismo y la fotografia", updated.Bio)
	assert.Contains(t, fx.users.updated, "u1")
}
