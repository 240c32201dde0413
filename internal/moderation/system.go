package moderation

import (
	"math"
	"sync"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/MarkusAkitus/Teender/internal/metrics"
	"github.com/MarkusAkitus/Teender/pkg/ringlog"
)

// Risk levels for the composite 0-100 score.
const (
	LevelSafe       = "seguro"
	LevelSuspicious = "sospechoso"
	LevelDangerous  = "peligroso"
)

// Enforcement tiers returned by HandleViolation.
const (
	ActionNone         = "none"
	ActionWarning      = "warning"
	ActionTempRestrict = "temp_restrict"
	ActionBlock        = "block"
)

// RiskAssessment is a derived value recomputed per call, never stored.
type RiskAssessment struct {
	Score int
	Level string
}

// Violation carries the numeric basis for an enforcement decision. Callers
// construct it explicitly from either a 0-100 score or a raw severity; there
// is no implicit fallback between the two.
type Violation struct {
	score float64
}

// ScoreViolation builds a violation from a 0-100 risk score.
func ScoreViolation(score int) Violation {
	return Violation{score: float64(score)}
}

// SeverityViolation builds a violation from a raw detector severity, compared
// against the same tier thresholds without rescaling.
func SeverityViolation(severity float64) Violation {
	return Violation{score: severity}
}

// Action is an enforcement decision. The caller persists any resulting
// restriction; the system only decides.
type Action struct {
	Action          string
	DurationMinutes int
}

const (
	moderationLogCap  = 200
	heartbeatInterval = 30 * time.Second
)

// System combines the analyzer outputs into risk assessments and enforcement
// decisions. It owns only its rolling event log; user records are read-only
// snapshots and persistence stays with the caller.
type System struct {
	cfg      config.ModerationConfig
	analyzer *Analyzer
	events   *ringlog.Log

	mu          sync.Mutex
	nowFn       func() time.Time
	monitorStop chan struct{}
}

// NewSystem creates a moderation system with the given thresholds.
func NewSystem(cfg config.ModerationConfig) *System {
	if cfg.RiskSuspiciousMax == 0 {
		cfg = config.DefaultModeration()
	}
	return &System{
		cfg:      cfg,
		analyzer: NewAnalyzer(cfg),
		events:   ringlog.New(moderationLogCap),
		nowFn:    time.Now,
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *System) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.nowFn = now
	s.mu.Unlock()
	s.events.SetClock(now)
}

// DetectBotBehavior scores a user's activity snapshot for bot signals.
func (s *System) DetectBotBehavior(userID string, activity ActivitySnapshot) BotCheck {
	check := s.analyzer.DetectBotBehavior(activity)
	s.events.Append("bot_check", map[string]any{
		"userId": userID, "score": check.Score, "reasons": check.Reasons,
	})
	return check
}

// AnalyzeMessage scores one message for toxicity.
func (s *System) AnalyzeMessage(text string) MessageCheck {
	check := s.analyzer.AnalyzeMessage(text)
	s.events.Append("message_check", map[string]any{
		"isToxic": check.IsToxic, "severity": check.Severity, "flags": check.Flags,
	})
	return check
}

// AnalyzeFakeProfile scores a profile for fake-account signals.
func (s *System) AnalyzeFakeProfile(profile Profile) ProfileCheck {
	check := s.analyzer.AnalyzeFakeProfile(profile)
	s.events.Append("profile_check", map[string]any{
		"isFake": check.IsFake, "probability": check.Probability, "warnings": check.Warnings,
	})
	return check
}

// DetectSpam inspects a message window for repeats and bursts.
func (s *System) DetectSpam(messages []Message) SpamCheck {
	check := s.analyzer.DetectSpam(messages)
	s.events.Append("spam_check", map[string]any{
		"isSpam": check.IsSpam, "confidence": check.Confidence, "pattern": check.Pattern,
	})
	return check
}

// CalculateRiskScore combines bot, fake-profile and spam sub-scores into the
// composite 0-100 risk score and its level.
func (s *System) CalculateRiskScore(profile Profile, activity ActivitySnapshot) RiskAssessment {
	profile.Activity = activity
	bot := s.analyzer.DetectBotBehavior(activity)
	fake := s.analyzer.AnalyzeFakeProfile(profile)
	spam := s.analyzer.DetectSpam(activity.RecentMessages)

	raw := float64(bot.Score)*6 + fake.Probability*30 + spam.Confidence*40
	score := int(math.Round(math.Min(100, math.Max(0, raw))))

	level := LevelSafe
	if score > s.cfg.RiskSuspiciousMax {
		level = LevelDangerous
	} else if score > s.cfg.RiskSafeMax {
		level = LevelSuspicious
	}

	s.events.Append("risk_score", map[string]any{
		"score": score, "level": level, "userId": profile.ID,
	})
	return RiskAssessment{Score: score, Level: level}
}

// HandleViolation is the single authority translating a violation score into
// an enforcement tier. Tiers are inclusive on their lower bound: <=30 none,
// <=60 warning, <=80 temp_restrict, >80 block.
func (s *System) HandleViolation(userID string, violation Violation) Action {
	score := violation.score

	if score <= float64(s.cfg.RiskSafeMax) {
		return Action{Action: ActionNone}
	}
	if score <= float64(s.cfg.RiskSuspiciousMax) {
		s.events.Append("action", map[string]any{"action": ActionWarning, "userId": userID})
		metrics.ModerationActions.WithLabelValues(ActionWarning).Inc()
		return Action{Action: ActionWarning}
	}
	if score <= 80 {
		s.events.Append("action", map[string]any{"action": ActionTempRestrict, "userId": userID})
		metrics.ModerationActions.WithLabelValues(ActionTempRestrict).Inc()
		return Action{
			Action:          ActionTempRestrict,
			DurationMinutes: int(s.cfg.RestrictDuration / time.Minute),
		}
	}
	s.events.Append("action", map[string]any{"action": ActionBlock, "userId": userID})
	metrics.ModerationActions.WithLabelValues(ActionBlock).Inc()
	return Action{Action: ActionBlock}
}

// Events returns a copy of the moderation event log, oldest first.
func (s *System) Events() []ringlog.Entry {
	return s.events.Entries()
}

// StartMonitoring starts the recurring heartbeat tick. Restarting cancels the
// previous run first, so timers never leak.
func (s *System) StartMonitoring() {
	s.mu.Lock()
	if s.monitorStop != nil {
		close(s.monitorStop)
	}
	stop := make(chan struct{})
	s.monitorStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.events.Append("monitor_tick", nil)
			case <-stop:
				return
			}
		}
	}()
}

// StopMonitoring cancels the heartbeat. Safe to call repeatedly.
func (s *System) StopMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitorStop != nil {
		close(s.monitorStop)
		s.monitorStop = nil
	}
}
