package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/internal/models"
	"github.com/redis/go-redis/v9"
)

// RestrictionKeyPrefix is the Redis key prefix for temporary restrictions
const RestrictionKeyPrefix = "restriction:"

// RestrictUser stores a temporary restriction in Redis. The key TTL is the
// source of truth for expiry, so lapsed restrictions vanish on their own.
func RestrictUser(ctx context.Context, userID, reason string, duration time.Duration) error {
	restriction := models.Restriction{
		UserID:  userID,
		Reason:  reason,
		UntilMs: time.Now().Add(duration).UnixMilli(),
	}

	payload, err := json.Marshal(restriction)
	if err != nil {
		return err
	}

	return database.RedisClient.Set(ctx, RestrictionKeyPrefix+userID, payload, duration).Err()
}

// GetRestriction returns the active restriction for a user, or nil.
func GetRestriction(ctx context.Context, userID string) (*models.Restriction, error) {
	payload, err := database.RedisClient.Get(ctx, RestrictionKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var restriction models.Restriction
	if err := json.Unmarshal(payload, &restriction); err != nil {
		return nil, err
	}
	return &restriction, nil
}

// LiftRestriction removes a restriction before its TTL lapses (admin function)
func LiftRestriction(ctx context.Context, userID string) error {
	return database.RedisClient.Del(ctx, RestrictionKeyPrefix+userID).Err()
}
