package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ViolationType string

const (
	ViolationTypeBot         ViolationType = "bot"
	ViolationTypeToxicity    ViolationType = "toxicity"
	ViolationTypeFakeProfile ViolationType = "fake_profile"
	ViolationTypeSpam        ViolationType = "spam"
	ViolationTypeInjection   ViolationType = "injection"
	ViolationTypeBruteForce  ViolationType = "brute_force"
	ViolationTypeUnsafeFile  ViolationType = "unsafe_file"
)

// Violation is the persistent audit record behind an enforcement decision.
type Violation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	UserID    string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	IPAddress string `bson:"ip_address,omitempty" json:"ip_address,omitempty"`

	Type    ViolationType `bson:"type" json:"type"`
	Score   int           `bson:"score" json:"score"`
	Details string        `bson:"details,omitempty" json:"details,omitempty"`

	ActionTaken string `bson:"action_taken" json:"action_taken"` // "warning", "temp_restrict", "block"
}

// BlockedIP records a network-level block, kept even after expiry for audit.
type BlockedIP struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at" json:"expires_at"`

	IPAddress string `bson:"ip_address" json:"ip_address"`
	Reason    string `bson:"reason" json:"reason"`
	IsActive  bool   `bson:"is_active" json:"is_active"`
}

// Restriction is the Redis-side record of a temporary restriction. The TTL
// on the key is the source of truth; UntilMs is carried for clients.
type Restriction struct {
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
	UntilMs int64  `json:"until_ms"`
}
