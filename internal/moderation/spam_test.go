package moderation

import (
	"strings"
	"testing"
)

func TestSpamScoreCleanComment(t *testing.T) {
	score, reasons := SpamScore("Great article, thanks!", SpamSignals{Reputation: 50})
	if score != 0 {
		t.Fatalf("score = %d (%v), want 0", score, reasons)
	}
}

func TestSpamScoreShortContent(t *testing.T) {
	score, _ := SpamScore("hi", SpamSignals{Reputation: 50})
	if score != 20 {
		t.Fatalf("score = %d, want 20", score)
	}
}

func TestSpamScoreLinksAndEmails(t *testing.T) {
	score, _ := SpamScore("visit https://spam.example and http://more.example mail me@spam.example", SpamSignals{Reputation: 50})
	// Two URLs (50) plus one email (30).
	if score != 80 {
		t.Fatalf("score = %d, want 80", score)
	}
}

func TestSpamScorePhoneNumber(t *testing.T) {
	score, _ := SpamScore("call me on 12345678901 now", SpamSignals{Reputation: 50})
	if score != 35 {
		t.Fatalf("score = %d, want 35", score)
	}
}

func TestSpamScoreRepeatedRuns(t *testing.T) {
	score, _ := SpamScore("loooooong and weeeeeird", SpamSignals{Reputation: 50})
	// Two runs of four-plus characters.
	if score != 30 {
		t.Fatalf("score = %d, want 30", score)
	}
}

func TestSpamScoreAllCaps(t *testing.T) {
	score, _ := SpamScore("BUY GOLD RIGHT NOW", SpamSignals{Reputation: 50})
	if score != 15 {
		t.Fatalf("score = %d, want 15", score)
	}
}

func TestSpamScoreReputationTiers(t *testing.T) {
	base, _ := SpamScore("an ordinary comment", SpamSignals{Reputation: 50})
	low, _ := SpamScore("an ordinary comment", SpamSignals{Reputation: 15})
	veryLow, _ := SpamScore("an ordinary comment", SpamSignals{Reputation: 5})
	if low-base != 25 {
		t.Fatalf("low reputation delta = %d, want 25", low-base)
	}
	// Below 10 both tiers stack.
	if veryLow-base != 65 {
		t.Fatalf("very low reputation delta = %d, want 65", veryLow-base)
	}
}

func TestSpamScoreClampsAtHundred(t *testing.T) {
	content := strings.Repeat("aaaa ", 50) + "https://spam.example me@spam.example"
	score, _ := SpamScore(content, SpamSignals{NewUser: true, RateLimited: true, Reputation: 5})
	if score != 100 {
		t.Fatalf("score = %d, want clamp at 100", score)
	}
}

func TestConfidenceBands(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{10, ConfidenceMinimal},
		{30, ConfidenceLow},
		{50, ConfidenceMedium},
		{70, ConfidenceHigh},
		{90, ConfidenceVeryHigh},
		{100, ConfidenceVeryHigh},
	}
	for _, tc := range cases {
		if got := ConfidenceFor(tc.score); got != tc.want {
			t.Errorf("ConfidenceFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
