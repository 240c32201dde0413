package security

import (
	"testing"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable timestamp source for deterministic detector runs.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuard(t *testing.T) (*Guard, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	guard := NewGuard(config.DefaultSecurity())
	guard.SetClock(clock.Now)
	return guard, clock
}

func TestDetectBruteForceBlocksOnFifthAttempt(t *testing.T) {
	guard, clock := newTestGuard(t)

	for i := 1; i <= 4; i++ {
		result := guard.DetectBruteForce("10.0.0.1", "/login")
		assert.False(t, result.IsAttack, "attempt %d must not block", i)
		assert.Equal(t, i, result.Attempts)
		clock.Advance(time.Second)
	}

	fifth := guard.DetectBruteForce("10.0.0.1", "/login")
	assert.True(t, fifth.IsAttack)
	assert.Equal(t, 5, fifth.Attempts)
	assert.False(t, fifth.BlockedUntil.IsZero())
	assert.True(t, guard.CheckBlacklist("10.0.0.1"))

	// still blocked while the timeout has not elapsed
	clock.Advance(time.Minute)
	assert.True(t, guard.DetectBruteForce("10.0.0.1", "/login").IsAttack)
}

func TestDetectBruteForceUnblocksAfterTimeout(t *testing.T) {
	guard, clock := newTestGuard(t)

	for i := 0; i < 5; i++ {
		guard.DetectBruteForce("10.0.0.2", "/login")
	}
	assert.True(t, guard.DetectBruteForce("10.0.0.2", "/login").IsAttack)

	clock.Advance(16 * time.Minute)
	result := guard.DetectBruteForce("10.0.0.2", "/login")
	assert.False(t, result.IsAttack)
	assert.Equal(t, 1, result.Attempts, "old attempts must be pruned out of the window")
}

func TestDetectBruteForceBlacklistLapsesWithBlock(t *testing.T) {
	guard, clock := newTestGuard(t)

	for i := 0; i < 5; i++ {
		guard.DetectBruteForce("10.0.0.3", "/login")
	}
	assert.True(t, guard.CheckBlacklist("10.0.0.3"))

	clock.Advance(16 * time.Minute)
	assert.False(t, guard.DetectBruteForce("10.0.0.3", "/login").IsAttack)
	assert.False(t, guard.CheckBlacklist("10.0.0.3"),
		"a lapsed brute force block must lift its blacklist entry")
}

func TestEnforceRateLimitAllowsExactlyMax(t *testing.T) {
	guard, clock := newTestGuard(t)

	// login bucket: max 5 per 15 minutes
	for i := 1; i <= 5; i++ {
		result := guard.EnforceRateLimit("10.0.0.3", "/api/login")
		assert.True(t, result.Allowed, "call %d within max must be allowed", i)
		clock.Advance(time.Second)
	}

	denied := guard.EnforceRateLimit("10.0.0.3", "/api/login")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)

	// full window elapsed from the first call: bucket resets
	clock.Advance(16 * time.Minute)
	assert.True(t, guard.EnforceRateLimit("10.0.0.3", "/api/login").Allowed)
}

func TestEnforceRateLimitUnknownEndpointFailsOpen(t *testing.T) {
	guard, _ := newTestGuard(t)
	result := guard.EnforceRateLimit("10.0.0.4", "/api/settings")
	assert.True(t, result.Allowed)
	assert.Equal(t, unmatchedRemaining, result.Remaining)
}

func TestEnforceRateLimitBucketsAreIndependent(t *testing.T) {
	guard, _ := newTestGuard(t)
	for i := 0; i < 6; i++ {
		guard.EnforceRateLimit("10.0.0.5", "/api/login")
	}
	assert.False(t, guard.EnforceRateLimit("10.0.0.5", "/api/login").Allowed)
	assert.True(t, guard.EnforceRateLimit("10.0.0.5", "/api/messages").Allowed)
}

func TestTrackIPFlagsMultipleAccounts(t *testing.T) {
	guard, _ := newTestGuard(t)

	for _, userID := range []string{"u1", "u2", "u3"} {
		result := guard.TrackIP("10.0.1.1", userID, "signin")
		assert.False(t, result.IsSuspicious)
	}
	result := guard.TrackIP("10.0.1.1", "u4", "signin")
	assert.True(t, result.IsSuspicious)
	assert.Equal(t, 40, result.RiskLevel)
	assert.Equal(t, "multiple accounts from same IP", result.Reason)
}

func TestTrackIPFlagsFrequentIPChanges(t *testing.T) {
	guard, _ := newTestGuard(t)

	guard.TrackIP("10.0.1.2", "u1", "signin")
	guard.TrackIP("10.0.1.2", "u1", "signin")
	result := guard.TrackIP("10.0.1.2", "u1", "signin")
	assert.True(t, result.IsSuspicious)
	assert.Equal(t, 50, result.RiskLevel)
	assert.Equal(t, "frequent IP changes", result.Reason)
}

func TestDetectDDoS(t *testing.T) {
	guard, _ := newTestGuard(t)

	assert.Equal(t, "none", guard.DetectDDoS("unknown-ip").Action)

	for i := 0; i < 150; i++ {
		guard.TrackIP("10.0.2.1", "", "browse")
	}
	warn := guard.DetectDDoS("10.0.2.1")
	assert.Equal(t, "warn", warn.Action)
	assert.False(t, warn.IsDDoS)

	for i := 0; i < 350; i++ {
		guard.TrackIP("10.0.2.1", "", "browse")
	}
	block := guard.DetectDDoS("10.0.2.1")
	assert.True(t, block.IsDDoS)
	assert.Equal(t, "block", block.Action)
	assert.Equal(t, 500, block.RequestsPerMinute)
}

func TestValidateRequestDetectsInjection(t *testing.T) {
	guard, _ := newTestGuard(t)

	result := guard.ValidateRequest(Request{
		Path: "/api/messages",
		Body: map[string]any{"text": "1 UNION SELECT password FROM users"},
	})
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Threats, "blocked_pattern")
	assert.Contains(t, result.Threats, "sql_injection")
}

func TestValidateRequestDetectsXSSAndSanitizes(t *testing.T) {
	guard, _ := newTestGuard(t)

	result := guard.ValidateRequest(Request{
		Path: "/api/profile",
		Body: map[string]any{"bio": "<script>alert(1)</script>hola", "age": 30},
	})
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Threats, "xss")
	assert.Equal(t, "hola", result.Sanitized["bio"])
	assert.Equal(t, 30, result.Sanitized["age"])
}

func TestValidateRequestCleanBody(t *testing.T) {
	guard, _ := newTestGuard(t)

	result := guard.ValidateRequest(Request{
		Path: "/api/messages",
		Body: map[string]any{"text": "hola, como estas"},
	})
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Threats)
}

func TestValidateRequestNilBody(t *testing.T) {
	guard, _ := newTestGuard(t)
	result := guard.ValidateRequest(Request{Path: "/api/likes"})
	assert.True(t, result.IsValid)
}

func TestDetectAnomalies(t *testing.T) {
	guard, _ := newTestGuard(t)

	quiet := guard.DetectAnomalies(AnomalyUser{ID: "u1"}, AnomalyActivity{})
	assert.False(t, quiet.IsAnomaly)
	assert.Equal(t, 0, quiet.Severity)

	spike := guard.DetectAnomalies(
		AnomalyUser{ID: "u1", LastCountry: "ES"},
		AnomalyActivity{Country: "RU", ActionsPerMinute: 120},
	)
	assert.True(t, spike.IsAnomaly)
	assert.Equal(t, 4, spike.Severity)
	assert.Equal(t, "country_change", spike.AnomalyType)
}

func TestValidateSessionFingerprint(t *testing.T) {
	guard, _ := newTestGuard(t)
	guard.RegisterSession("sess-1", "10.0.3.1", "Mozilla/5.0")

	ok := guard.ValidateSession("sess-1", "10.0.3.1", "Mozilla/5.0")
	assert.True(t, ok.IsValid)
	assert.Equal(t, "ok", ok.Reason)

	hijack := guard.ValidateSession("sess-1", "10.9.9.9", "Mozilla/5.0")
	assert.False(t, hijack.IsValid)
	assert.Equal(t, "session_mismatch", hijack.Reason)

	// mismatch deletes the session: no grace period
	gone := guard.ValidateSession("sess-1", "10.0.3.1", "Mozilla/5.0")
	assert.False(t, gone.IsValid)
	assert.Equal(t, "session_not_found", gone.Reason)
}

func TestCSRFTokens(t *testing.T) {
	guard, _ := newTestGuard(t)
	guard.RegisterSession("sess-2", "10.0.3.2", "Mozilla/5.0")

	token := guard.GenerateCSRFToken("sess-2")
	require.NotEmpty(t, token)
	assert.True(t, guard.ValidateCSRFToken(token, "sess-2"))
	assert.False(t, guard.ValidateCSRFToken("forged", "sess-2"))
	assert.Empty(t, guard.GenerateCSRFToken("missing-session"))
}

func TestDetectBot(t *testing.T) {
	guard, _ := newTestGuard(t)

	human := guard.DetectBot("Mozilla/5.0 (X11; Linux x86_64)", BotBehavior{ClicksPerSecond: 2})
	assert.False(t, human.IsBot)

	crawler := guard.DetectBot("python-scraper/1.0", BotBehavior{ClicksPerSecond: 9})
	assert.True(t, crawler.IsBot)
	assert.InDelta(t, 0.7, crawler.Confidence, 1e-9)
	assert.Equal(t, []string{"user_agent", "click_speed"}, crawler.Evidence)

	// no user agent alone is never enough
	quiet := guard.DetectBot("", BotBehavior{})
	assert.False(t, quiet.IsBot)
	assert.Zero(t, quiet.Confidence)
}

func TestScanUploadedFile(t *testing.T) {
	guard, _ := newTestGuard(t)

	exe := guard.ScanUploadedFile(FileUpload{Name: "shell.exe", Size: 1024, Header: "MZ\x90\x00"})
	assert.False(t, exe.IsSafe)
	assert.Contains(t, exe.Threats, "ext_no_permitida")
	assert.Contains(t, exe.Threats, "ejecutable_disfrazado")

	photo := guard.ScanUploadedFile(FileUpload{Name: "photo.jpg", Size: 2 * 1024 * 1024})
	assert.True(t, photo.IsSafe)
	assert.Equal(t, "jpg", photo.FileType)

	huge := guard.ScanUploadedFile(FileUpload{Name: "big.png", Size: 6 * 1024 * 1024})
	assert.False(t, huge.IsSafe)
	assert.Equal(t, []string{"tamano_excesivo"}, huge.Threats)
}

func TestGenerateAlertActionMapping(t *testing.T) {
	guard, _ := newTestGuard(t)

	cases := map[Severity]string{
		SeverityLow:      "log",
		SeverityMedium:   "email",
		SeverityHigh:     "block_and_notify",
		SeverityCritical: "lockdown_and_call",
	}
	for severity, action := range cases {
		alert := guard.GenerateAlert([]string{"xss"}, severity)
		assert.Equal(t, action, alert.Action)
		assert.NotEmpty(t, alert.AlertID)
	}
	assert.Len(t, guard.Alerts(), 4)
}

func TestWhitelistBlacklist(t *testing.T) {
	guard, _ := newTestGuard(t)

	assert.False(t, guard.CheckWhitelist("10.0.4.1"))
	guard.AddToWhitelist("10.0.4.1")
	assert.True(t, guard.CheckWhitelist("10.0.4.1"))

	for i := 0; i < 5; i++ {
		guard.DetectBruteForce("10.0.4.2", "/login")
	}
	assert.True(t, guard.CheckBlacklist("10.0.4.2"))
	guard.RemoveFromBlacklist("10.0.4.2")
	assert.False(t, guard.CheckBlacklist("10.0.4.2"))
	assert.False(t, guard.DetectBruteForce("10.0.4.2", "/login").IsAttack, "unblocking lifts the active block")
}

func TestSweepIdleRecordsKeepsActiveBlocks(t *testing.T) {
	clock := newFakeClock()
	cfg := config.DefaultSecurity()
	cfg.IPRetention = 10 * time.Minute
	guard := NewGuard(cfg)
	guard.SetClock(clock.Now)

	guard.TrackIP("10.0.5.1", "u1", "browse")
	for i := 0; i < 5; i++ {
		guard.DetectBruteForce("10.0.5.2", "/login")
	}

	clock.Advance(11 * time.Minute)
	evicted := guard.SweepIdleRecords()
	assert.Equal(t, 1, evicted, "idle record evicted, blocked record kept")

	_, idleKept := guard.ips.lookup("10.0.5.1")
	assert.False(t, idleKept)
	_, blockedKept := guard.ips.lookup("10.0.5.2")
	assert.True(t, blockedKept)

	// once the block expires the record becomes sweepable too
	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, guard.SweepIdleRecords())
}

func TestMonitoringRestartAndStopAreIdempotent(t *testing.T) {
	guard, _ := newTestGuard(t)

	guard.StartMonitoring()
	first := guard.monitorStop
	guard.StartMonitoring() // must cancel the previous timer, not leak it
	second := guard.monitorStop
	assert.NotEqual(t, first, second)

	guard.StopMonitoring()
	assert.Nil(t, guard.monitorStop)
	guard.StopMonitoring() // safe to repeat
}

func TestSecurityLogIsCapped(t *testing.T) {
	guard, _ := newTestGuard(t)
	for i := 0; i < 250; i++ {
		guard.TrackIP("10.0.6.1", "", "browse")
	}
	assert.Len(t, guard.Events(), securityLogCap)
}
