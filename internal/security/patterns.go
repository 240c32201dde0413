// Package security implements the trust-and-safety guard: IP intelligence,
// brute-force/DDoS/bot detection, request validation, rate limiting, file
// scanning and alerting. All detectors are non-throwing: malformed input
// degrades to "no threat detected", never to an error on the hot path.
package security

import (
	"regexp"
	"strings"
)

// Blocked request patterns: SQL keywords, comment/quote injection, inline
// script vectors and path traversal. Matched against path + serialized body.
var BlockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bSELECT\b|\bDROP\b|\bUNION\b|\bINSERT\b|\bDELETE\b)`),
	regexp.MustCompile(`('|--|;|/\*|\*/)`),
	regexp.MustCompile(`(?i)(<script|javascript:|onerror=|onload=)`),
	regexp.MustCompile(`(?i)(\.\./|\.\.\\|/etc/passwd)`),
}

// SQLInjectionPatterns are the explicit SQLi signatures checked on top of the
// blocked patterns. Each hit is reported separately, duplicates included.
var SQLInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bOR\b.*=.*)`),
	regexp.MustCompile(`(?i)(\bAND\b.*=.*)`),
	regexp.MustCompile(`(?i)(UNION.*SELECT)`),
	regexp.MustCompile(`(?i)(DROP.*TABLE)`),
}

// XSSPatterns are the explicit cross-site-scripting signatures.
var XSSPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script.*?>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
}

// suspiciousUserAgentTokens flag automated clients by substring.
var suspiciousUserAgentTokens = []string{"bot", "crawler", "spider", "scraper", "curl", "wget"}

// BannedWords is the shared profanity/abuse word list (substring match on
// lowercased text). Shared with the moderation analyzer.
var BannedWords = []string{
	"idiota", "imbecil", "estupido", "tonto", "puta", "puto", "mierda",
	"cabron", "gilipollas", "pendejo", "maricon", "zorra", "perra",
	"maldito", "asco", "nazi", "violacion", "matar", "golpear", "droga",
	"porno", "sexo",
}

// Content detectors used by message analysis and profile checks.
var (
	URLRegex            = regexp.MustCompile(`(?i)https?://[^\s]+`)
	EmailRegex          = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	PhoneRegex          = regexp.MustCompile(`\d{3}[-.\s]?\d{3}[-.\s]?\d{4}`)
	SuspiciousNameRegex = regexp.MustCompile(`\d{4,}`)
	AllCapsRegex        = regexp.MustCompile(`[A-ZÁÉÍÓÚÑ]{6,}`)
)

// best-effort strip of inline script vectors; callers may use the result or not
var (
	sanitizeScriptRegex  = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	sanitizeJSProtoRegex = regexp.MustCompile(`(?i)javascript:`)
	sanitizeHandlerRegex = regexp.MustCompile(`(?i)on\w+=`)
)

// IsSuspiciousUserAgent reports whether the user agent carries a known
// bot/crawler token. Empty user agents are not flagged by this signal alone.
func IsSuspiciousUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, token := range suspiciousUserAgentTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

// FindBannedWord returns the first banned word contained in the text, or "".
func FindBannedWord(text string) string {
	lower := strings.ToLower(text)
	for _, word := range BannedWords {
		if strings.Contains(lower, word) {
			return word
		}
	}
	return ""
}

// SanitizeString strips script tags, javascript: protocols and inline event
// handlers from a string field.
func SanitizeString(s string) string {
	s = sanitizeScriptRegex.ReplaceAllString(s, "")
	s = sanitizeJSProtoRegex.ReplaceAllString(s, "")
	s = sanitizeHandlerRegex.ReplaceAllString(s, "")
	return s
}
