package services

import (
	"context"
	"sync"
	"time"

	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// RecordViolation stores a violation record in MongoDB for audit
func RecordViolation(userID, ipAddress string, violationType models.ViolationType, score int, details string, actionTaken string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	violation := models.Violation{
		ID:          primitive.NewObjectID(),
		CreatedAt:   time.Now(),
		UserID:      userID,
		IPAddress:   ipAddress,
		Type:        violationType,
		Score:       score,
		Details:     details,
		ActionTaken: actionTaken,
	}

	_, err := database.DB.Collection("violations").InsertOne(ctx, violation)
	return err
}

// GetViolationCount gets the number of violations for a user in the last 24 hours
func GetViolationCount(userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := database.DB.Collection("violations").CountDocuments(ctx, bson.M{
		"user_id": userID,
		"created_at": bson.M{
			"$gte": time.Now().Add(-24 * time.Hour),
		},
	})

	return count, err
}

// IsIPBlocked checks if an IP address is currently blocked
func IsIPBlocked(ipAddress string) (bool, *models.BlockedIP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var blockedIP models.BlockedIP
	err := database.DB.Collection("blocked_ips").FindOne(ctx, bson.M{
		"ip_address": ipAddress,
		"is_active":  true,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&blockedIP)

	if err == mongo.ErrNoDocuments {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	return true, &blockedIP, nil
}

// BlockIP blocks an IP address for a specified duration
func BlockIP(ipAddress string, reason string, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Deactivate any existing blocks for this IP first
	_, err := database.DB.Collection("blocked_ips").UpdateMany(ctx, bson.M{
		"ip_address": ipAddress,
		"is_active":  true,
	}, bson.M{
		"$set": bson.M{"is_active": false},
	})
	if err != nil {
		return err
	}

	blockedIP := models.BlockedIP{
		ID:        primitive.NewObjectID(),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
		IPAddress: ipAddress,
		Reason:    reason,
		IsActive:  true,
	}

	_, err = database.DB.Collection("blocked_ips").InsertOne(ctx, blockedIP)
	return err
}

// UnblockIP unblocks an IP address (admin function)
func UnblockIP(ipAddress string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := database.DB.Collection("blocked_ips").UpdateMany(ctx, bson.M{
		"ip_address": ipAddress,
		"is_active":  true,
	}, bson.M{
		"$set": bson.M{"is_active": false},
	})

	return err
}

// ListBlockedIPs returns all currently active IP blocks
func ListBlockedIPs() ([]models.BlockedIP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cursor, err := database.DB.Collection("blocked_ips").Find(ctx, bson.M{
		"is_active":  true,
		"expires_at": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var blocked []models.BlockedIP
	if err := cursor.All(ctx, &blocked); err != nil {
		return nil, err
	}
	return blocked, nil
}

// CleanupOldViolations removes violations older than the given age.
// Blocked IPs are kept separately and never deleted here.
func CleanupOldViolations(age time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoffTime := time.Now().Add(-age)

	_, err := database.DB.Collection("violations").DeleteMany(ctx, bson.M{
		"created_at": bson.M{
			"$lt": cutoffTime,
		},
	})

	return err
}

// indirection so the cleanup loop can be exercised without a live Mongo
var cleanupViolations = CleanupOldViolations

// StartViolationCleanup starts a background goroutine that periodically
// cleans up old violations. Defaults: run hourly, delete after 7 days.
// The returned stop func ends the loop; calling it twice is safe.
func StartViolationCleanup(interval, age time.Duration) func() {
	if interval <= 0 {
		interval = time.Hour
	}
	if age <= 0 {
		age = 7 * 24 * time.Hour
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_ = cleanupViolations(age)

		for {
			select {
			case <-ticker.C:
				_ = cleanupViolations(age)
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}
}
