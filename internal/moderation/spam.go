package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Confidence buckets for a spam score.
const (
	ConfidenceMinimal  = "minimal"
	ConfidenceLow      = "low"
	ConfidenceMedium   = "medium"
	ConfidenceHigh     = "high"
	ConfidenceVeryHigh = "very_high"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)https?://[^\s]+|www\.[^\s]+`)
	emailInText  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\d{11}`)
)

// repeatedRuns counts maximal runs of 4 or more identical characters.
func repeatedRuns(runes []rune) int {
	runs := 0
	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if j-i >= 4 {
			runs++
		}
		i = j
	}
	return runs
}

// SpamSignals carries the commenter context feeding the score.
type SpamSignals struct {
	Reputation  int
	NewUser     bool
	RateLimited bool
}

// SpamScore computes the 0-100 weighted spam score for a comment body
// plus the reasons that contributed.
func SpamScore(content string, sig SpamSignals) (int, []string) {
	score := 0
	var reasons []string
	add := func(n int, reason string) {
		score += n
		reasons = append(reasons, reason)
	}

	runes := []rune(content)
	if len(runes) < 5 {
		add(20, "content very short")
	}
	if len(runes) > 500 {
		add(10, "content very long")
	}

	if runs := repeatedRuns(runes); runs > 0 {
		score += 15 * runs
		reasons = append(reasons, "repeated character runs")
	}
	if urls := urlPattern.FindAllString(content, -1); len(urls) > 0 {
		score += 25 * len(urls)
		reasons = append(reasons, "contains links")
	}
	if emails := emailInText.FindAllString(content, -1); len(emails) > 0 {
		score += 30 * len(emails)
		reasons = append(reasons, "contains email addresses")
	}
	if phones := phonePattern.FindAllString(content, -1); len(phones) > 0 {
		score += 35 * len(phones)
		reasons = append(reasons, "contains phone numbers")
	}
	if len(runes) > 10 && strings.ToUpper(content) == content && strings.ToLower(content) != content {
		add(15, "all uppercase")
	}
	if specialDensity(runes) > 0.3 {
		add(20, "high special character density")
	}

	if sig.Reputation < 20 {
		add(25, "low reputation")
	}
	if sig.Reputation < 10 {
		add(40, "very low reputation")
	}
	if sig.NewUser {
		add(15, "new commenter")
	}
	if sig.RateLimited {
		add(30, "commenting too fast")
	}

	if score > 100 {
		score = 100
	}
	return score, reasons
}

func specialDensity(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	special := 0
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	return float64(special) / float64(len(runes))
}

// ConfidenceFor maps a spam score to its confidence bucket.
func ConfidenceFor(score int) string {
	switch {
	case score >= 90:
		return ConfidenceVeryHigh
	case score >= 70:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	case score >= 30:
		return ConfidenceLow
	default:
		return ConfidenceMinimal
	}
}
