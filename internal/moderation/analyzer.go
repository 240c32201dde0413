// Package moderation scores user behavior (bots, toxicity, fake profiles,
// spam), combines the sub-scores into a 0-100 risk score and translates risk
// into a graduated enforcement decision. Scoring functions are pure:
// malformed or missing input degrades to a benign score, never to an error.
package moderation

import (
	"sort"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/MarkusAkitus/Teender/internal/security"
)

// ActivitySnapshot is the read-only activity view fed to the analyzers.
// AvgResponseTimeSec of zero means unknown and is not treated as fast.
type ActivitySnapshot struct {
	LikesPerHour       int
	MessagesPerHour    int
	AccountAgeHours    int
	AvgResponseTimeSec float64
	RecentMessages     []Message
}

// Profile is the read-only profile view for fake-profile analysis.
type Profile struct {
	ID        string
	Name      string
	Bio       string
	AvatarURL string
	Activity  ActivitySnapshot
}

// Message is one chat message with its send time.
type Message struct {
	Text string
	Time time.Time
}

// BotCheck is the bot-behavior score for an activity snapshot.
type BotCheck struct {
	IsBot   bool
	Score   int
	Reasons []string
}

// MessageCheck is the toxicity assessment for one message.
type MessageCheck struct {
	IsToxic  bool
	Severity int
	Flags    []string
}

// ProfileCheck is the fake-profile assessment.
type ProfileCheck struct {
	IsFake      bool
	Probability float64
	Warnings    []string
}

// SpamCheck is the spam assessment over a message window.
type SpamCheck struct {
	IsSpam     bool
	Confidence float64
	Pattern    string // most-repeated text, "burst", or "none"
}

// Analyzer holds the scoring thresholds. All methods are stateless.
type Analyzer struct {
	cfg config.ModerationConfig
}

// NewAnalyzer creates an analyzer with the given thresholds.
func NewAnalyzer(cfg config.ModerationConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// DetectBotBehavior scores four independent activity signals.
func (a *Analyzer) DetectBotBehavior(activity ActivitySnapshot) BotCheck {
	var reasons []string
	score := 0

	if activity.LikesPerHour > 80 {
		score += 2
		reasons = append(reasons, "likes excesivos")
	}
	if activity.MessagesPerHour > 60 {
		score += 2
		reasons = append(reasons, "mensajes excesivos")
	}
	if activity.AccountAgeHours < 6 {
		score++
		reasons = append(reasons, "cuenta muy nueva")
	}
	if activity.AvgResponseTimeSec > 0 && activity.AvgResponseTimeSec < 5 {
		score++
		reasons = append(reasons, "respuestas demasiado rapidas")
	}

	return BotCheck{IsBot: score >= a.cfg.BotScoreThreshold, Score: score, Reasons: reasons}
}

// AnalyzeMessage scores a message for toxicity: contact-info leaks, shouting
// and the first matching banned word.
func (a *Analyzer) AnalyzeMessage(text string) MessageCheck {
	var flags []string
	severity := 0

	if security.URLRegex.MatchString(text) {
		flags = append(flags, "url")
		severity++
	}
	if security.EmailRegex.MatchString(text) {
		flags = append(flags, "email")
		severity++
	}
	if security.PhoneRegex.MatchString(text) {
		flags = append(flags, "telefono")
		severity++
	}
	if security.AllCapsRegex.MatchString(text) {
		flags = append(flags, "mayusculas")
		severity++
	}
	if word := security.FindBannedWord(text); word != "" {
		flags = append(flags, "lenguaje_ofensivo")
		severity += 2
	}

	return MessageCheck{IsToxic: severity >= a.cfg.ToxicityThreshold, Severity: severity, Flags: flags}
}

// AnalyzeFakeProfile accumulates fake-profile probability from profile
// completeness and early-account activity.
func (a *Analyzer) AnalyzeFakeProfile(profile Profile) ProfileCheck {
	probability := 0.0
	var warnings []string

	if profile.AvatarURL == "" {
		probability += 0.2
		warnings = append(warnings, "sin_foto")
	}
	if len(profile.Bio) < 12 {
		probability += 0.2
		warnings = append(warnings, "bio_corta")
	}
	if security.SuspiciousNameRegex.MatchString(profile.Name) {
		probability += 0.2
		warnings = append(warnings, "nombre_sospechoso")
	}
	if profile.Activity.AccountAgeHours < 12 && profile.Activity.LikesPerHour > 50 {
		probability += 0.2
		warnings = append(warnings, "actividad_anormal")
	}

	return ProfileCheck{
		IsFake:      probability >= a.cfg.FakeProfileThreshold,
		Probability: probability,
		Warnings:    warnings,
	}
}

// DetectSpam inspects the last 10 messages for repeats and bursts.
func (a *Analyzer) DetectSpam(messages []Message) SpamCheck {
	recent := messages
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	frequency := make(map[string]int, len(recent))
	order := make([]string, 0, len(recent))
	for _, msg := range recent {
		if _, seen := frequency[msg.Text]; !seen {
			order = append(order, msg.Text)
		}
		frequency[msg.Text]++
	}

	maxRepeat := 0
	repeatedText := ""
	for _, text := range order {
		if frequency[text] > maxRepeat {
			maxRepeat = frequency[text]
			repeatedText = text
		}
	}

	isBurst := false
	if len(recent) >= 3 {
		times := make([]time.Time, len(recent))
		for i, msg := range recent {
			times[i] = msg.Time
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		isBurst = times[len(times)-1].Sub(times[0]) < time.Minute
	}

	confidence := 0.0
	if maxRepeat >= 3 {
		confidence += 0.6
	}
	if isBurst {
		confidence += 0.3
	}
	if maxRepeat >= 5 {
		confidence += 0.1
	}

	pattern := "none"
	switch {
	case maxRepeat >= 2:
		pattern = repeatedText
	case isBurst:
		pattern = "burst"
	}

	return SpamCheck{IsSpam: confidence >= a.cfg.SpamThreshold, Confidence: confidence, Pattern: pattern}
}
