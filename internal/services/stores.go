package services

import (
	"context"
	"time"

	"github.com/MarkusAkitus/Teender/internal/models"
)

// Concrete bindings of the mediator interfaces onto the storage functions in
// this package. Production wiring uses these; tests substitute fakes.

type PostgresUserStore struct{}

func (PostgresUserStore) GetByID(id string) (*models.User, error)       { return GetUserByID(id) }
func (PostgresUserStore) GetByEmail(email string) (*models.User, error) { return GetUserByEmail(email) }

func (PostgresUserStore) Create(name, email, passwordHash string, age int, gender string) (*models.User, error) {
	return CreateUser(name, email, passwordHash, age, gender)
}

func (PostgresUserStore) UpdateProfile(id, name, bio, avatarURL string) error {
	return UpdateProfile(id, name, bio, avatarURL)
}

func (PostgresUserStore) UpdateModerationState(id string, status models.AccountStatus, riskScore int, riskLevel string, restrictedUntil *time.Time) error {
	return UpdateModerationState(id, status, riskScore, riskLevel, restrictedUntil)
}

func (PostgresUserStore) RecordLike(fromID, toID string, positive bool) (bool, error) {
	return RecordLike(fromID, toID, positive)
}

type RedisRestrictionStore struct{}

func (RedisRestrictionStore) Restrict(ctx context.Context, userID, reason string, duration time.Duration) error {
	return RestrictUser(ctx, userID, reason, duration)
}

func (RedisRestrictionStore) Get(ctx context.Context, userID string) (*models.Restriction, error) {
	return GetRestriction(ctx, userID)
}

type MongoMessageStore struct{}

func (MongoMessageStore) Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	return SaveChatMessage(ctx, msg)
}

func (MongoMessageStore) Recent(ctx context.Context, senderID string, limit int64) ([]models.ChatMessage, error) {
	return RecentChatMessages(ctx, senderID, limit)
}

func (MongoMessageStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	return GetMatch(ctx, matchID)
}

func (MongoMessageStore) CreateMatch(ctx context.Context, userA, userB string) (*models.Match, error) {
	return CreateMatch(ctx, userA, userB)
}

type MongoViolationRecorder struct{}

func (MongoViolationRecorder) Record(userID, ip string, violationType models.ViolationType, score int, details, actionTaken string) error {
	return RecordViolation(userID, ip, violationType, score, details, actionTaken)
}

type RedisChatNotifier struct{}

func (RedisChatNotifier) Publish(ctx context.Context, event ChatEvent) error {
	return PublishChatEvent(ctx, event)
}
