package models

import "time"

// AccountStatus is the moderation standing of an account.
// Valid values: "active", "warned", "restricted", "blocked".
type AccountStatus string

const (
	StatusActive     AccountStatus = "active"
	StatusWarned     AccountStatus = "warned"
	StatusRestricted AccountStatus = "restricted"
	StatusBlocked    AccountStatus = "blocked"
)

// User is stored in Postgres. Moderation fields are updated by the mediator
// whenever a risk assessment changes the account standing.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"-"` // argon2id hash, never serialized

	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Country   string `json:"country,omitempty"`

	Status          AccountStatus `json:"status"`
	RiskScore       int           `json:"risk_score"`
	RiskLevel       string        `json:"risk_level,omitempty"`
	RestrictedUntil *time.Time    `json:"restricted_until,omitempty"`
}

// CanAct reports whether the account may perform mutating actions at the
// given instant. Restricted accounts regain access when the window lapses.
func (u *User) CanAct(now time.Time) bool {
	if u.Status == StatusBlocked {
		return false
	}
	if u.Status == StatusRestricted {
		return u.RestrictedUntil == nil || now.After(*u.RestrictedUntil)
	}
	return true
}

// PublicProfile is the discovery-card view of a user, stripped of contact
// and moderation internals.
type PublicProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// Public returns the discovery-card view of the user.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		Name:      u.Name,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		Age:       u.Age,
		Gender:    u.Gender,
	}
}
