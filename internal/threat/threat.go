// Package threat derives a severity classification from an identity's
// aggregated behavior. Scoring is a pure function of the counters; the
// ledger recomputes it on every update and never caches the result.
package threat

import (
	"time"

	"github.com/blogshield/blogshield/internal/signature"
)

// Level is the coarse threat classification of an identity.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
)

// typeWeights is the per-attack-type contribution for each distinct
// type ever observed from an identity. Types not listed weigh 5.
var typeWeights = map[signature.AttackType]int{
	signature.SQLInjection:     20,
	signature.XSS:              15,
	signature.CommandInjection: 25,
	signature.PathTraversal:    15,
	signature.BruteForce:       10,
	signature.Scanning:         5,
}

const (
	attackCountWeight = 2
	attackCountCap    = 50
	honeypotHitWeight = 10
	recencyBonus      = 20
	recencyWindow     = 24 * time.Hour
	recencyMinAttacks = 10
)

// Input is the counter snapshot the scorer operates on.
type Input struct {
	TotalAttacks  int
	DistinctTypes []signature.AttackType
	HoneypotHits  int
	FirstSeen     time.Time
	Now           time.Time
}

// Score maps aggregated counters to a level and a 0-100 score.
// Identical inputs always yield identical outputs.
func Score(in Input) (Level, int) {
	score := in.TotalAttacks * attackCountWeight
	if score > attackCountCap {
		score = attackCountCap
	}

	for _, t := range in.DistinctTypes {
		if w, ok := typeWeights[t]; ok {
			score += w
		} else {
			score += 5
		}
	}

	score += in.HoneypotHits * honeypotHitWeight

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if now.Sub(in.FirstSeen) < recencyWindow && in.TotalAttacks > recencyMinAttacks {
		score += recencyBonus
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return levelFor(score), score
}

func levelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}
