package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/pkg/utils"
)

const (
	offlineQueueKey = "offline_queue"
	offlineQueueCap = 1000
	offlineQueueTTL = 24 * time.Hour
)

// QueuedAction is one accepted mutation, recorded for client-side replay
// after reconnection.
type QueuedAction struct {
	Action      string         `json:"action"`
	Payload     map[string]any `json:"payload,omitempty"`
	TimestampMs int64          `json:"timestampMs"`
}

// EnqueueAction appends an obfuscated action record to the Redis-backed
// replay queue. The payload is XOR+base64 encoded, matching the storage
// format clients already read; this is obfuscation, not encryption. Errors
// are logged and swallowed: the queue must never fail the action itself.
func EnqueueAction(action string, payload map[string]any) {
	entry := QueuedAction{
		Action:      action,
		Payload:     payload,
		TimestampMs: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("offline queue: marshal failed: %v", err)
		return
	}
	encoded := utils.EncryptText(string(data))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := database.RedisClient.Pipeline()
	pipe.RPush(ctx, offlineQueueKey, encoded)
	pipe.LTrim(ctx, offlineQueueKey, -offlineQueueCap, -1)
	pipe.Expire(ctx, offlineQueueKey, offlineQueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("offline queue: enqueue failed: %v", err)
	}
}

// DrainQueuedActions pops up to limit decoded entries, oldest first. Entries
// that fail to decode are dropped.
func DrainQueuedActions(ctx context.Context, limit int) ([]QueuedAction, error) {
	if limit <= 0 {
		limit = 100
	}

	var actions []QueuedAction
	for i := 0; i < limit; i++ {
		encoded, err := database.RedisClient.LPop(ctx, offlineQueueKey).Result()
		if err != nil {
			break // empty or unavailable
		}

		decoded := utils.DecryptText(encoded)
		if decoded == "" {
			continue
		}

		var entry QueuedAction
		if err := json.Unmarshal([]byte(decoded), &entry); err != nil {
			continue
		}
		actions = append(actions, entry)
	}
	return actions, nil
}
