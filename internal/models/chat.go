package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatMessageStatus represents the delivery/read status of a message.
// Valid values: "sent", "delivered", "read".
type ChatMessageStatus string

const (
	MessageStatusSent      ChatMessageStatus = "sent"
	MessageStatusDelivered ChatMessageStatus = "delivered"
	MessageStatusRead      ChatMessageStatus = "read"
)

// ChatMessage is stored in MongoDB, one document per message, flat per match
// for pagination.
type ChatMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatchID    string             `bson:"match_id" json:"match_id"`
	SenderID   string             `bson:"sender_id" json:"sender_id"`
	SenderName string             `bson:"sender_name" json:"sender_name"`
	Text       string             `bson:"text" json:"text"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	Status     ChatMessageStatus  `bson:"status" json:"status"`
}

// Match pairs two users who liked each other. Messages reference it by ID.
type Match struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserA     string             `bson:"user_a" json:"user_a"`
	UserB     string             `bson:"user_b" json:"user_b"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Involves reports whether the user is one of the two sides of the match.
func (m *Match) Involves(userID string) bool {
	return m.UserA == userID || m.UserB == userID
}

// Like is one swipe decision, stored in Postgres.
type Like struct {
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Positive   bool      `json:"positive"`
	CreatedAt  time.Time `json:"created_at"`
}
