package services

import (
	"context"
	"time"

	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureChatIndexes configures indexes for the chat_messages and matches
// collections. Called on startup from main after Mongo has connected.
func EnsureChatIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "match_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_match_created"),
		},
	}

	col := database.DB.Collection("chat_messages")
	for _, m := range indexModels {
		if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}

	matches := database.DB.Collection("matches")
	_, err := matches.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_a", Value: 1},
			{Key: "user_b", Value: 1},
		},
		Options: options.Index().SetName("idx_match_pair").SetUnique(true),
	})
	return err
}

// SaveChatMessage persists a message to MongoDB and returns it with its ID.
func SaveChatMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusSent
	}
	msg.ID = primitive.NewObjectID()

	col := database.DB.Collection("chat_messages")
	_, err := col.InsertOne(ctx, msg)
	return msg, err
}

// LoadChatMessages returns paginated chat history for a match.
// Pagination is based on created_at + limit (newest-first scrolling).
func LoadChatMessages(ctx context.Context, matchID string, before *time.Time, limit int64) ([]models.ChatMessage, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	col := database.DB.Collection("chat_messages")

	filter := bson.M{"match_id": matchID}
	if before != nil {
		filter["created_at"] = bson.M{"$lt": before.UTC()}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit + 1)

	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var msgs []models.ChatMessage
	for cur.Next(ctx) {
		var m models.ChatMessage
		if err := cur.Decode(&m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	hasMore := int64(len(msgs)) > limit
	if hasMore {
		msgs = msgs[:len(msgs)-1]
	}

	// Reverse to oldest-first for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, hasMore, nil
}

// RecentChatMessages returns the newest messages a user sent, across all
// matches, oldest first. Used to feed the spam detector.
func RecentChatMessages(ctx context.Context, senderID string, limit int64) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	col := database.DB.Collection("chat_messages")
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := col.Find(ctx, bson.M{"sender_id": senderID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []models.ChatMessage
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CreateMatch records a mutual like. The pair is stored in sorted order so
// the unique index catches duplicates regardless of who swiped last.
func CreateMatch(ctx context.Context, userA, userB string) (*models.Match, error) {
	if userB < userA {
		userA, userB = userB, userA
	}

	match := models.Match{
		ID:        primitive.NewObjectID(),
		UserA:     userA,
		UserB:     userB,
		CreatedAt: time.Now().UTC(),
	}

	_, err := database.DB.Collection("matches").InsertOne(ctx, match)
	if mongo.IsDuplicateKeyError(err) {
		return GetMatchByPair(ctx, userA, userB)
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// GetMatch returns a match by ID, or nil when not found.
func GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	oid, err := primitive.ObjectIDFromHex(matchID)
	if err != nil {
		return nil, err
	}

	var match models.Match
	err = database.DB.Collection("matches").FindOne(ctx, bson.M{"_id": oid}).Decode(&match)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// GetMatchByPair returns the match between two users, or nil.
func GetMatchByPair(ctx context.Context, userA, userB string) (*models.Match, error) {
	if userB < userA {
		userA, userB = userB, userA
	}

	var match models.Match
	err := database.DB.Collection("matches").FindOne(ctx, bson.M{
		"user_a": userA, "user_b": userB,
	}).Decode(&match)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}
