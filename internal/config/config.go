package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MongoURI            string
	PostgresURI         string
	RedisURI            string
	Port                string
	FrontendURL         string
	AllowedOrigins      []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	AdminToken          string // shared secret for the admin API
	AllowedHost         string // bare hostname for the Host check, empty disables it
	Environment         string // ENV: production, development, etc.

	Security   SecurityConfig
	Moderation ModerationConfig
}

// RateLimitPolicy is a per-bucket sliding-window policy.
type RateLimitPolicy struct {
	Max    int
	Window time.Duration
}

// SecurityConfig holds the guard thresholds. All fields have working defaults;
// env overrides exist for the ones operators actually tune.
type SecurityConfig struct {
	MaxLoginAttempts       int
	LoginTimeout           time.Duration
	MaxRequestsPerMinute   int
	DDoSThreshold          int
	MaxFileSizeMB          int
	AllowedFileTypes       []string
	IPChangeAlertThreshold int
	RateLimits             map[string]RateLimitPolicy
	IPRetention            time.Duration // idle IpRecord retention before sweep
}

// ModerationConfig holds the moderation scoring thresholds and violation tiers.
type ModerationConfig struct {
	BotScoreThreshold    int
	ToxicityThreshold    int
	FakeProfileThreshold float64
	SpamThreshold        float64
	RiskSafeMax          int
	RiskSuspiciousMax    int
	RestrictDuration     time.Duration
}

// DefaultSecurity returns the stock guard thresholds.
func DefaultSecurity() SecurityConfig {
	return SecurityConfig{
		MaxLoginAttempts:       5,
		LoginTimeout:           15 * time.Minute,
		MaxRequestsPerMinute:   100,
		DDoSThreshold:          500,
		MaxFileSizeMB:          5,
		AllowedFileTypes:       []string{"jpg", "jpeg", "png", "gif"},
		IPChangeAlertThreshold: 3,
		RateLimits: map[string]RateLimitPolicy{
			"login":    {Max: 5, Window: 15 * time.Minute},
			"register": {Max: 3, Window: time.Hour},
			"messages": {Max: 50, Window: time.Minute},
			"likes":    {Max: 100, Window: time.Hour},
			"upload":   {Max: 10, Window: time.Hour},
		},
		IPRetention: 24 * time.Hour,
	}
}

// DefaultModeration returns the stock moderation thresholds.
func DefaultModeration() ModerationConfig {
	return ModerationConfig{
		BotScoreThreshold:    6,
		ToxicityThreshold:    3,
		FakeProfileThreshold: 0.6,
		SpamThreshold:        0.6,
		RiskSafeMax:          30,
		RiskSuspiciousMax:    60,
		RestrictDuration:     60 * time.Minute,
	}
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	sec := DefaultSecurity()
	sec.MaxLoginAttempts = getEnvInt("MAX_LOGIN_ATTEMPTS", sec.MaxLoginAttempts)
	sec.LoginTimeout = time.Duration(getEnvInt("LOGIN_TIMEOUT_MINUTES", 15)) * time.Minute
	sec.MaxRequestsPerMinute = getEnvInt("MAX_REQUESTS_PER_MINUTE", sec.MaxRequestsPerMinute)
	sec.DDoSThreshold = getEnvInt("DDOS_THRESHOLD", sec.DDoSThreshold)
	sec.MaxFileSizeMB = getEnvInt("MAX_FILE_SIZE_MB", sec.MaxFileSizeMB)
	sec.IPChangeAlertThreshold = getEnvInt("IP_CHANGE_ALERT_THRESHOLD", sec.IPChangeAlertThreshold)

	return &Config{
		MongoURI:            getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/teender")),
		PostgresURI:         getEnv("POSTGRES_URI", "postgres://localhost:5432/teender?sslmode=disable"),
		RedisURI:            getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Environment:         env,
		Port:                getEnv("PORT", "8080"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins:      allowedOrigins,
		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		AdminToken:          getEnv("ADMIN_TOKEN", ""),
		AllowedHost:         getEnv("ALLOWED_HOST", ""),
		Security:            sec,
		Moderation:          DefaultModeration(),
	}
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
