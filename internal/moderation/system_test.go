package moderation

import (
	"fmt"
	"testing"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestSystem() *System {
	return NewSystem(config.DefaultModeration())
}

func TestAnalyzeMessageContactAndShouting(t *testing.T) {
	s := newTestSystem()

	check := s.AnalyzeMessage("visit http://x.com now CALLMEASAP")
	assert.GreaterOrEqual(t, check.Severity, 2)
	assert.False(t, check.IsToxic)
	assert.Contains(t, check.Flags, "url")
	assert.Contains(t, check.Flags, "mayusculas")

	toxic := s.AnalyzeMessage("visit http://x.com now CALLMEASAP idiota")
	assert.GreaterOrEqual(t, toxic.Severity, 3)
	assert.True(t, toxic.IsToxic)
	assert.Contains(t, toxic.Flags, "lenguaje_ofensivo")
}

func TestAnalyzeMessageBenign(t *testing.T) {
	s := newTestSystem()
	check := s.AnalyzeMessage("hey, how's it going?")
	assert.Zero(t, check.Severity)
	assert.False(t, check.IsToxic)
	assert.Empty(t, check.Flags)
}

func TestAnalyzeMessageBannedWordAlone(t *testing.T) {
	s := newTestSystem()
	check := s.AnalyzeMessage("eres un IDIOTA de verdad")
	// banned word (+2) plus all-caps run of six letters would need IDIOTA to
	// reach six; it does, so severity is 3
	assert.Equal(t, 3, check.Severity)
	assert.True(t, check.IsToxic)
}

func TestDetectSpamRepeatedBurst(t *testing.T) {
	s := newTestSystem()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var messages []Message
	for i := 0; i < 10; i++ {
		messages = append(messages, Message{Text: "buy now", Time: base.Add(time.Duration(i) * 500 * time.Millisecond)})
	}

	check := s.DetectSpam(messages)
	assert.True(t, check.IsSpam)
	assert.InDelta(t, 1.0, check.Confidence, 1e-9)
	assert.Equal(t, "buy now", check.Pattern)
}

func TestDetectSpamDistinctSlowMessages(t *testing.T) {
	s := newTestSystem()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var messages []Message
	for i := 0; i < 10; i++ {
		messages = append(messages, Message{Text: fmt.Sprintf("mensaje %d", i), Time: base.Add(time.Duration(i) * 6 * time.Minute)})
	}

	check := s.DetectSpam(messages)
	assert.False(t, check.IsSpam)
	assert.Zero(t, check.Confidence)
	assert.Equal(t, "none", check.Pattern)
}

func TestDetectSpamBurstWithoutRepeats(t *testing.T) {
	s := newTestSystem()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	messages := []Message{
		{Text: "uno", Time: base},
		{Text: "dos", Time: base.Add(2 * time.Second)},
		{Text: "tres", Time: base.Add(4 * time.Second)},
	}

	check := s.DetectSpam(messages)
	assert.False(t, check.IsSpam)
	assert.InDelta(t, 0.3, check.Confidence, 1e-9)
	assert.Equal(t, "burst", check.Pattern)
}

func TestDetectSpamOnlyConsidersLastTen(t *testing.T) {
	s := newTestSystem()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var messages []Message
	for i := 0; i < 5; i++ {
		messages = append(messages, Message{Text: "repetido", Time: base.Add(time.Duration(i) * time.Hour)})
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, Message{Text: fmt.Sprintf("nuevo %d", i), Time: base.Add(time.Duration(5+i) * time.Hour)})
	}

	check := s.DetectSpam(messages)
	assert.False(t, check.IsSpam)
	assert.Equal(t, "none", check.Pattern)
}

func TestDetectSpamEmpty(t *testing.T) {
	s := newTestSystem()
	check := s.DetectSpam(nil)
	assert.False(t, check.IsSpam)
	assert.Zero(t, check.Confidence)
	assert.Equal(t, "none", check.Pattern)
}

func TestDetectBotBehavior(t *testing.T) {
	s := newTestSystem()

	bot := s.DetectBotBehavior("u1", ActivitySnapshot{
		LikesPerHour:       100,
		MessagesPerHour:    70,
		AccountAgeHours:    2,
		AvgResponseTimeSec: 1,
	})
	assert.True(t, bot.IsBot)
	assert.Equal(t, 6, bot.Score)

	// unknown response time is not treated as instant
	almost := s.DetectBotBehavior("u2", ActivitySnapshot{
		LikesPerHour:    100,
		MessagesPerHour: 70,
		AccountAgeHours: 2,
	})
	assert.False(t, almost.IsBot)
	assert.Equal(t, 5, almost.Score)
}

func TestAnalyzeFakeProfile(t *testing.T) {
	s := newTestSystem()

	real := s.AnalyzeFakeProfile(Profile{
		Name:      "Lucia",
		Bio:       "me gusta el cine y viajar por el mundo",
		AvatarURL: "https://cdn.example.com/lucia.jpg",
		Activity:  ActivitySnapshot{AccountAgeHours: 400},
	})
	assert.False(t, real.IsFake)
	assert.Zero(t, real.Probability)

	fake := s.AnalyzeFakeProfile(Profile{
		Name:     "user19283",
		Bio:      "hola",
		Activity: ActivitySnapshot{AccountAgeHours: 2},
	})
	assert.True(t, fake.IsFake)
	assert.InDelta(t, 0.6, fake.Probability, 1e-9)
	assert.Contains(t, fake.Warnings, "sin_foto")
	assert.Contains(t, fake.Warnings, "bio_corta")
	assert.Contains(t, fake.Warnings, "nombre_sospechoso")
}

func TestCalculateRiskScoreLevels(t *testing.T) {
	s := newTestSystem()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	safe := s.CalculateRiskScore(Profile{
		ID:        "u1",
		Name:      "Marta",
		Bio:       "una bio suficientemente larga",
		AvatarURL: "https://cdn.example.com/marta.jpg",
	}, ActivitySnapshot{AccountAgeHours: 100})
	assert.Equal(t, LevelSafe, safe.Level)
	assert.LessOrEqual(t, safe.Score, 30)

	var spam []Message
	for i := 0; i < 10; i++ {
		spam = append(spam, Message{Text: "gana dinero ya", Time: base.Add(time.Duration(i) * time.Second)})
	}
	dangerous := s.CalculateRiskScore(Profile{
		ID:   "u2",
		Name: "promo88887777",
		Bio:  "x",
	}, ActivitySnapshot{
		LikesPerHour:       120,
		MessagesPerHour:    90,
		AccountAgeHours:    1,
		AvgResponseTimeSec: 1,
		RecentMessages:     spam,
	})
	assert.Equal(t, LevelDangerous, dangerous.Level)
	assert.Equal(t, 100, dangerous.Score)
}

func TestHandleViolationStepFunction(t *testing.T) {
	s := newTestSystem()

	cases := []struct {
		score  int
		action string
	}{
		{0, ActionNone},
		{30, ActionNone},
		{31, ActionWarning},
		{60, ActionWarning},
		{61, ActionTempRestrict},
		{80, ActionTempRestrict},
		{81, ActionBlock},
		{100, ActionBlock},
	}
	for _, tc := range cases {
		action := s.HandleViolation("u1", ScoreViolation(tc.score))
		assert.Equal(t, tc.action, action.Action, "score %d", tc.score)
		if tc.action == ActionTempRestrict {
			assert.Equal(t, 60, action.DurationMinutes)
		}
	}
}

func TestHandleViolationSeverityBased(t *testing.T) {
	s := newTestSystem()

	// raw detector severities sit far below the tier thresholds
	assert.Equal(t, ActionNone, s.HandleViolation("u1", SeverityViolation(0.6)).Action)
	assert.Equal(t, ActionNone, s.HandleViolation("u1", SeverityViolation(4)).Action)
	assert.Equal(t, ActionWarning, s.HandleViolation("u1", SeverityViolation(45.5)).Action)
}

func TestModerationLogIsCapped(t *testing.T) {
	s := newTestSystem()
	for i := 0; i < 250; i++ {
		s.AnalyzeMessage("hola")
	}
	assert.Len(t, s.Events(), moderationLogCap)
}

func TestMonitoringRestartIsIdempotent(t *testing.T) {
	s := newTestSystem()
	s.StartMonitoring()
	s.StartMonitoring()
	s.StopMonitoring()
	s.StopMonitoring()
	assert.Nil(t, s.monitorStop)
}
