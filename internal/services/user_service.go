package services

import (
	"database/sql"
	"time"

	"github.com/MarkusAkitus/Teender/internal/database"
	"github.com/MarkusAkitus/Teender/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, created_at, updated_at, name, email, password_hash,
	bio, avatar_url, age, gender, country, status, risk_score, risk_level, restricted_until`

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var id uuid.UUID
	err := row.Scan(&id, &user.CreatedAt, &user.UpdatedAt, &user.Name, &user.Email,
		&user.Password, &user.Bio, &user.AvatarURL, &user.Age, &user.Gender,
		&user.Country, &user.Status, &user.RiskScore, &user.RiskLevel, &user.RestrictedUntil)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	user.ID = id.String()
	return &user, nil
}

// CreateUser inserts a new account and returns it with the generated ID.
func CreateUser(name, email, passwordHash string, age int, gender string) (*models.User, error) {
	row := database.PostgresDB.QueryRow(`
		INSERT INTO users (name, email, password_hash, age, gender)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns, name, email, passwordHash, age, gender)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID. Returns nil when not found.
func GetUserByID(userID string) (*models.User, error) {
	parsedID, err := uuid.Parse(userID)
	if err != nil {
		return nil, err
	}
	row := database.PostgresDB.QueryRow(`
		SELECT `+userColumns+` FROM users WHERE id = $1`, parsedID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email. Returns nil when not found.
func GetUserByEmail(email string) (*models.User, error) {
	row := database.PostgresDB.QueryRow(`
		SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return scanUser(row)
}

// UpdateProfile updates the editable profile fields.
func UpdateProfile(userID, name, bio, avatarURL string) error {
	_, err := database.PostgresDB.Exec(`
		UPDATE users SET name = $2, bio = $3, avatar_url = $4, updated_at = NOW()
		WHERE id = $1`, userID, name, bio, avatarURL)
	return err
}

// UpdateModerationState persists the account standing after an enforcement
// decision. restrictedUntil is nil unless status is "restricted".
func UpdateModerationState(userID string, status models.AccountStatus, riskScore int, riskLevel string, restrictedUntil *time.Time) error {
	_, err := database.PostgresDB.Exec(`
		UPDATE users SET status = $2, risk_score = $3, risk_level = $4,
			restricted_until = $5, updated_at = NOW()
		WHERE id = $1`, userID, status, riskScore, riskLevel, restrictedUntil)
	return err
}

// RecordLike upserts a swipe decision and reports whether it produced a new
// mutual match.
func RecordLike(fromUserID, toUserID string, positive bool) (bool, error) {
	_, err := database.PostgresDB.Exec(`
		INSERT INTO likes (from_user_id, to_user_id, positive)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_user_id, to_user_id) DO UPDATE SET positive = $3, created_at = NOW()`,
		fromUserID, toUserID, positive)
	if err != nil || !positive {
		return false, err
	}

	var mutual bool
	err = database.PostgresDB.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM likes WHERE from_user_id = $2 AND to_user_id = $1 AND positive
		)`, fromUserID, toUserID).Scan(&mutual)
	return mutual, err
}

// DiscoverProfiles returns active users the given user has not yet swiped on.
func DiscoverProfiles(userID string, limit int) ([]models.PublicProfile, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := database.PostgresDB.Query(`
		SELECT id, name, bio, avatar_url, age, gender FROM users
		WHERE id != $1
		  AND status NOT IN ('blocked', 'restricted')
		  AND id NOT IN (SELECT to_user_id FROM likes WHERE from_user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.PublicProfile
	for rows.Next() {
		var p models.PublicProfile
		var id uuid.UUID
		if err := rows.Scan(&id, &p.Name, &p.Bio, &p.AvatarURL, &p.Age, &p.Gender); err != nil {
			return nil, err
		}
		p.ID = id.String()
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
