package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/MarkusAkitus/Teender/internal/metrics"
	"github.com/MarkusAkitus/Teender/pkg/ringlog"
)

// Severity levels for generated alerts.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is an immutable record of a detected threat and the mandated response.
type Alert struct {
	AlertID     string   `json:"alertId"`
	TimestampMs int64    `json:"timestampMs"`
	Severity    Severity `json:"severity"`
	Threat      any      `json:"threat"`
	Action      string   `json:"action"`
}

// Request is the validated view of an incoming action: the endpoint path plus
// the pre-sanitized body fields.
type Request struct {
	Path string
	Body map[string]any
}

// TrackResult is the informational signal from TrackIP. It never blocks.
type TrackResult struct {
	IsSuspicious bool
	Reason       string
	RiskLevel    int
}

// BruteForceResult reports login-attempt pressure for an IP.
type BruteForceResult struct {
	IsAttack     bool
	Attempts     int
	BlockedUntil time.Time // zero when not blocked
}

// DDoSResult reports request throughput classification for an IP.
type DDoSResult struct {
	IsDDoS            bool
	RequestsPerMinute int
	Action            string // none, warn, throttle, block
}

// RequestCheck is the outcome of content validation.
type RequestCheck struct {
	IsValid   bool
	Threats   []string
	Sanitized map[string]any
}

// AnomalyResult reports behavioral anomalies for a user's activity snapshot.
type AnomalyResult struct {
	IsAnomaly   bool
	AnomalyType string
	Severity    int
}

// SessionCheck is the outcome of session fingerprint validation.
type SessionCheck struct {
	IsValid bool
	Reason  string
}

// RateLimitResult is the outcome of per-endpoint rate limiting.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// BotBehavior is the interaction snapshot fed to DetectBot.
type BotBehavior struct {
	ClicksPerSecond float64
	RepeatPattern   bool
}

// BotResult is an evidence-weighted bot classification.
type BotResult struct {
	IsBot      bool
	Confidence float64
	Evidence   []string
}

// FileUpload describes an uploaded file: name, byte size, and the leading
// bytes of content for signature sniffing.
type FileUpload struct {
	Name   string
	Size   int64
	Header string
}

// FileScanResult is the outcome of upload scanning.
type FileScanResult struct {
	IsSafe   bool
	FileType string
	Threats  []string
}

// AnomalyUser is the read-only user view for anomaly detection.
type AnomalyUser struct {
	ID          string
	LastCountry string
}

// AnomalyActivity is the activity snapshot for anomaly detection.
type AnomalyActivity struct {
	Country          string
	Hour             int
	ActionsPerMinute int
	UnknownEndpoints int
}

type sessionRecord struct {
	IP        string
	UserAgent string
	CSRFToken string
}

const (
	securityLogCap     = 200
	monitorInterval    = 10 * time.Second
	reportInterval     = time.Hour
	unmatchedRemaining = 999 // sentinel for endpoints outside every bucket
)

// Guard is the security orchestrator. It exclusively owns the IP records, the
// session fingerprints, the alert list and the security event log; all access
// goes through its methods, serialized by one mutex so no caller ever observes
// a partially updated record.
type Guard struct {
	mu       sync.Mutex
	cfg      config.SecurityConfig
	ips      *ipStore
	sessions map[string]*sessionRecord
	alerts   []Alert
	events   *ringlog.Log

	whitelist map[string]struct{}
	blacklist map[string]struct{}

	nowFn       func() time.Time
	monitorStop chan struct{}
}

// NewGuard creates a guard with the given thresholds. Construct once at
// process start and pass the handle to the action mediator.
func NewGuard(cfg config.SecurityConfig) *Guard {
	if cfg.RateLimits == nil {
		cfg = config.DefaultSecurity()
	}
	return &Guard{
		cfg:       cfg,
		ips:       newIPStore(),
		sessions:  make(map[string]*sessionRecord),
		events:    ringlog.New(securityLogCap),
		whitelist: make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
		nowFn:     time.Now,
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.nowFn = now
	g.mu.Unlock()
	g.events.SetClock(now)
}

// TrackIP updates the per-IP record for one observed action and reports an
// informational risk signal. It never blocks by itself.
func (g *Guard) TrackIP(ip, userID, action string) TrackResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	record := g.ips.get(ip, now)
	record.RequestCount++
	record.LastSeen = now
	if userID != "" {
		record.Users[userID] = struct{}{}
	}

	riskLevel := 0
	reason := ""
	if len(record.Users) >= 4 {
		riskLevel = 40
		reason = "multiple accounts from same IP"
	}
	if userID != "" {
		record.IPChangesByUser[userID]++
		if record.IPChangesByUser[userID] >= g.cfg.IPChangeAlertThreshold {
			if riskLevel < 50 {
				riskLevel = 50
			}
			if reason == "" {
				reason = "frequent IP changes"
			}
		}
	}

	g.logEvent("ip_track", map[string]any{
		"ip": ip, "userId": userID, "action": action,
		"riskLevel": riskLevel, "reason": reason,
	})
	return TrackResult{IsSuspicious: riskLevel >= 30, Reason: reason, RiskLevel: riskLevel}
}

// DetectBruteForce counts one login attempt for the IP and blocks the IP once
// the attempt count reaches the limit within the login window. Every call
// counts as an attempt, so callers invoke it on the sign-in path before
// validating credentials.
func (g *Guard) DetectBruteForce(ip, endpoint string) BruteForceResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	record := g.ips.get(ip, now)

	window := g.cfg.LoginTimeout
	if policy, ok := g.cfg.RateLimits["login"]; ok {
		window = policy.Window
	}
	cutoff := now.Add(-window)
	kept := record.FailedLogins[:0]
	for _, t := range record.FailedLogins {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	record.FailedLogins = append(kept, now)
	attempts := len(record.FailedLogins)

	// A lapsed block lifts the blacklist entry it created, so the IP gets a
	// fresh start after the timeout instead of a permanent ban.
	if !record.BlockedUntil.IsZero() && !record.BlockedUntil.After(now) {
		record.BlockedUntil = time.Time{}
		delete(g.blacklist, ip)
	}

	if attempts >= g.cfg.MaxLoginAttempts {
		record.BlockedUntil = now.Add(g.cfg.LoginTimeout)
		g.blacklist[ip] = struct{}{}
	}

	isAttack := record.blockedAt(now)
	if isAttack {
		metrics.ThreatsDetected.WithLabelValues("bruteforce").Inc()
	}
	g.logEvent("bruteforce_check", map[string]any{
		"ip": ip, "endpoint": endpoint,
		"attemptsCount": attempts, "blockedUntil": unixMsOrNil(record.BlockedUntil),
	})
	return BruteForceResult{IsAttack: isAttack, Attempts: attempts, BlockedUntil: record.BlockedUntil}
}

// DetectDDoS classifies an IP's request throughput. Unknown IPs are benign.
func (g *Guard) DetectDDoS(ip string) DDoSResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.detectDDoSLocked(ip)
}

func (g *Guard) detectDDoSLocked(ip string) DDoSResult {
	now := g.nowFn()
	var requestCount uint64
	lastSeen := now
	if record, ok := g.ips.lookup(ip); ok {
		requestCount = record.RequestCount
		lastSeen = record.LastSeen
	}

	elapsedMinutes := math.Max(1, now.Sub(lastSeen).Minutes())
	rpm := int(math.Round(float64(requestCount) / elapsedMinutes))

	action := "none"
	switch {
	case rpm >= g.cfg.DDoSThreshold:
		action = "block"
	case rpm >= 200:
		action = "throttle"
	case rpm >= g.cfg.MaxRequestsPerMinute:
		action = "warn"
	}

	isDDoS := action == "block"
	if isDDoS {
		metrics.ThreatsDetected.WithLabelValues("ddos").Inc()
	}
	g.logEvent("ddos_check", map[string]any{
		"ip": ip, "requestsPerMinute": rpm, "action": action,
	})
	return DDoSResult{IsDDoS: isDDoS, RequestsPerMinute: rpm, Action: action}
}

// ValidateRequest tests the serialized body plus path against the blocked and
// explicit threat signatures. Matched tags are collected with duplicates, and
// a best-effort sanitized copy of string body fields is returned for optional
// use by the caller.
func (g *Guard) ValidateRequest(req Request) RequestCheck {
	payload := "{}"
	if req.Body != nil {
		if b, err := json.Marshal(req.Body); err == nil {
			payload = string(b)
		}
	}
	combined := payload + " " + req.Path

	var threats []string
	for _, pattern := range BlockedPatterns {
		if pattern.MatchString(combined) {
			threats = append(threats, "blocked_pattern")
		}
	}
	for _, pattern := range SQLInjectionPatterns {
		if pattern.MatchString(combined) {
			threats = append(threats, "sql_injection")
		}
	}
	for _, pattern := range XSSPatterns {
		if pattern.MatchString(combined) {
			threats = append(threats, "xss")
		}
	}

	sanitized := make(map[string]any, len(req.Body))
	for key, value := range req.Body {
		if s, ok := value.(string); ok {
			sanitized[key] = SanitizeString(s)
		} else {
			sanitized[key] = value
		}
	}

	for _, tag := range threats {
		metrics.ThreatsDetected.WithLabelValues(tag).Inc()
	}
	g.mu.Lock()
	g.logEvent("request_validate", map[string]any{"threats": threats, "path": req.Path})
	g.mu.Unlock()
	return RequestCheck{IsValid: len(threats) == 0, Threats: threats, Sanitized: sanitized}
}

// DetectAnomalies scores a user's activity snapshot against behavioral rules.
func (g *Guard) DetectAnomalies(user AnomalyUser, activity AnomalyActivity) AnomalyResult {
	severity := 0
	anomalyType := ""

	if activity.Country != "" && user.LastCountry != "" && activity.Country != user.LastCountry {
		severity += 2
		anomalyType = "country_change"
	}
	// TODO: hour > 2 makes this fire for every non-zero hour except hour 0,
	// which the presence check skips; confirm whether the intended night
	// window was hour > 22 before tightening.
	if activity.Hour != 0 && (activity.Hour < 5 || activity.Hour > 2) {
		severity++
		if anomalyType == "" {
			anomalyType = "unusual_hours"
		}
	}
	if activity.ActionsPerMinute > 80 {
		severity += 2
		if anomalyType == "" {
			anomalyType = "sudden_activity_spike"
		}
	}
	if activity.UnknownEndpoints > 3 {
		severity += 2
		if anomalyType == "" {
			anomalyType = "unusual_endpoints"
		}
	}

	g.mu.Lock()
	g.logEvent("anomaly_check", map[string]any{
		"userId": user.ID, "anomalyType": anomalyType, "severity": severity,
	})
	g.mu.Unlock()
	return AnomalyResult{IsAnomaly: severity >= 2, AnomalyType: anomalyType, Severity: severity}
}

// RegisterSession records the IP and user-agent fingerprint for a session.
func (g *Guard) RegisterSession(sessionID, ip, userAgent string) {
	g.mu.Lock()
	g.sessions[sessionID] = &sessionRecord{IP: ip, UserAgent: userAgent}
	g.mu.Unlock()
}

// ValidateSession checks the session fingerprint exactly. Any IP or
// user-agent mismatch invalidates and deletes the session; there is no grace
// period or rotation.
func (g *Guard) ValidateSession(sessionID, ip, userAgent string) SessionCheck {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return SessionCheck{IsValid: false, Reason: "session_not_found"}
	}
	if session.IP != ip || session.UserAgent != userAgent {
		delete(g.sessions, sessionID)
		g.logEvent("session_hijack", map[string]any{
			"sessionId": sessionID, "ip": ip, "userAgent": userAgent,
		})
		return SessionCheck{IsValid: false, Reason: "session_mismatch"}
	}
	return SessionCheck{IsValid: true, Reason: "ok"}
}

// DropSession removes a session fingerprint, e.g. on sign-out.
func (g *Guard) DropSession(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
}

// classifyEndpoint maps an endpoint to a rate-limit bucket; first matching
// substring wins, unmatched endpoints get no bucket (fail open).
func classifyEndpoint(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "login"):
		return "login"
	case strings.Contains(endpoint, "register"):
		return "register"
	case strings.Contains(endpoint, "messages"):
		return "messages"
	case strings.Contains(endpoint, "like"):
		return "likes"
	case strings.Contains(endpoint, "upload"):
		return "upload"
	}
	return ""
}

// EnforceRateLimit counts one request for the IP against the endpoint's
// bucket policy. Endpoints outside every bucket are always allowed: the
// limiter fails open for unclassified traffic.
func (g *Guard) EnforceRateLimit(ip, endpoint string) RateLimitResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	bucket := classifyEndpoint(endpoint)
	policy, ok := g.cfg.RateLimits[bucket]
	if bucket == "" || !ok {
		return RateLimitResult{Allowed: true, Remaining: unmatchedRemaining, ResetAt: now}
	}

	record := g.ips.get(ip, now)
	kept, result := slideWindow(record.RateBuckets[bucket], now, policy.Window, policy.Max)
	record.RateBuckets[bucket] = kept

	if !result.Allowed {
		metrics.RateLimitDenied.WithLabelValues(bucket).Inc()
	}
	g.logEvent("rate_limit", map[string]any{
		"ip": ip, "endpoint": endpoint, "allowed": result.Allowed, "remaining": result.Remaining,
	})
	return RateLimitResult{Allowed: result.Allowed, Remaining: result.Remaining, ResetAt: result.ResetAt}
}

// DetectBot weighs user-agent signatures and interaction behavior into a bot
// confidence. A missing user agent is not flagged by that signal alone.
func (g *Guard) DetectBot(userAgent string, behavior BotBehavior) BotResult {
	var evidence []string
	confidence := 0.0

	if IsSuspiciousUserAgent(userAgent) {
		evidence = append(evidence, "user_agent")
		confidence += 0.4
	}
	if behavior.ClicksPerSecond > 6 {
		evidence = append(evidence, "click_speed")
		confidence += 0.3
	}
	if behavior.RepeatPattern {
		evidence = append(evidence, "pattern_repeat")
		confidence += 0.3
	}

	isBot := confidence >= 0.6
	if isBot {
		metrics.ThreatsDetected.WithLabelValues("bot").Inc()
	}
	g.mu.Lock()
	g.logEvent("bot_detect", map[string]any{
		"isBot": isBot, "confidence": confidence, "evidence": evidence,
	})
	g.mu.Unlock()
	return BotResult{IsBot: isBot, Confidence: confidence, Evidence: evidence}
}

// ScanUploadedFile checks extension, size and content signature of an upload.
func (g *Guard) ScanUploadedFile(file FileUpload) FileScanResult {
	var threats []string

	ext := ""
	if idx := strings.LastIndex(file.Name, "."); idx != -1 {
		ext = strings.ToLower(file.Name[idx+1:])
	}
	allowed := false
	for _, allowedExt := range g.cfg.AllowedFileTypes {
		if ext == allowedExt {
			allowed = true
			break
		}
	}
	if !allowed {
		threats = append(threats, "ext_no_permitida")
	}
	if float64(file.Size)/(1024*1024) > float64(g.cfg.MaxFileSizeMB) {
		threats = append(threats, "tamano_excesivo")
	}
	if strings.HasPrefix(file.Header, "MZ") {
		threats = append(threats, "ejecutable_disfrazado")
	}

	isSafe := len(threats) == 0
	if !isSafe {
		metrics.ThreatsDetected.WithLabelValues("file").Inc()
	}
	g.mu.Lock()
	g.logEvent("file_scan", map[string]any{
		"isSafe": isSafe, "fileType": ext, "threats": threats,
	})
	g.mu.Unlock()
	return FileScanResult{IsSafe: isSafe, FileType: ext, Threats: threats}
}

// GenerateAlert records an alert for a detected threat. The response action is
// derived deterministically from the severity.
func (g *Guard) GenerateAlert(threat any, severity Severity) Alert {
	g.mu.Lock()
	defer g.mu.Unlock()

	action := "log"
	switch severity {
	case SeverityMedium:
		action = "email"
	case SeverityHigh:
		action = "block_and_notify"
	case SeverityCritical:
		action = "lockdown_and_call"
	}

	ms := g.nowFn().UnixMilli()
	alert := Alert{
		AlertID:     fmt.Sprintf("%d-%06x", ms, mrand.Intn(1<<24)),
		TimestampMs: ms,
		Severity:    severity,
		Threat:      threat,
		Action:      action,
	}
	g.alerts = append(g.alerts, alert)
	metrics.AlertsGenerated.WithLabelValues(string(severity)).Inc()
	g.logEvent("alert", map[string]any{
		"alertId": alert.AlertID, "severity": string(severity), "action": action,
	})
	return alert
}

// CheckBlacklist reports whether the IP is denylisted.
func (g *Guard) CheckBlacklist(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blacklist[ip]
	return ok
}

// CheckWhitelist reports whether the IP is allowlisted.
func (g *Guard) CheckWhitelist(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.whitelist[ip]
	return ok
}

// AddToWhitelist allowlists an IP.
func (g *Guard) AddToWhitelist(ip string) {
	g.mu.Lock()
	g.whitelist[ip] = struct{}{}
	g.mu.Unlock()
}

// RemoveFromBlacklist clears an IP from the denylist and lifts its block.
// The failed-login history resets too, otherwise the surviving attempts
// would re-block the IP on its very next sign-in.
func (g *Guard) RemoveFromBlacklist(ip string) {
	g.mu.Lock()
	delete(g.blacklist, ip)
	if record, ok := g.ips.lookup(ip); ok {
		record.BlockedUntil = time.Time{}
		record.FailedLogins = nil
	}
	g.mu.Unlock()
}

// GenerateCSRFToken issues a token bound to the session. Returns "" for
// unknown sessions.
func (g *Guard) GenerateCSRFToken(sessionID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return ""
	}
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return ""
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	session.CSRFToken = token
	return token
}

// ValidateCSRFToken checks a token against the session's issued token.
func (g *Guard) ValidateCSRFToken(token, sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.sessions[sessionID]
	return ok && token != "" && session.CSRFToken == token
}

// Alerts returns a copy of the alert list.
func (g *Guard) Alerts() []Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Alert, len(g.alerts))
	copy(out, g.alerts)
	return out
}

// Events returns a copy of the security event log, oldest first.
func (g *Guard) Events() []ringlog.Entry {
	return g.events.Entries()
}

// SweepIdleRecords evicts IP records idle past the retention horizon. Records
// with an unexpired block always survive.
func (g *Guard) SweepIdleRecords() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ips.sweep(g.nowFn(), g.cfg.IPRetention)
}

// StartMonitoring starts the recurring background checks: a DDoS sweep across
// all tracked IPs every 10 seconds and an hourly heartbeat that also evicts
// idle IP records. Restarting cancels the previous run first, so timers never
// leak. Stop with StopMonitoring.
func (g *Guard) StartMonitoring() {
	g.mu.Lock()
	if g.monitorStop != nil {
		close(g.monitorStop)
	}
	stop := make(chan struct{})
	g.monitorStop = stop
	g.mu.Unlock()

	go func() {
		sweep := time.NewTicker(monitorInterval)
		report := time.NewTicker(reportInterval)
		defer sweep.Stop()
		defer report.Stop()
		for {
			select {
			case <-sweep.C:
				g.mu.Lock()
				for _, ip := range g.ips.ips() {
					g.detectDDoSLocked(ip)
				}
				g.mu.Unlock()
			case <-report.C:
				g.SweepIdleRecords()
				g.mu.Lock()
				g.logEvent("hourly_report", nil)
				g.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// StopMonitoring cancels the background checks. Safe to call repeatedly.
func (g *Guard) StopMonitoring() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.monitorStop != nil {
		close(g.monitorStop)
		g.monitorStop = nil
	}
}

// logEvent appends to the security log. Callers hold g.mu.
func (g *Guard) logEvent(eventType string, fields map[string]any) {
	g.events.Append(eventType, fields)
}

func unixMsOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
