package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blogshield/blogshield/internal/ratewindow"
	"github.com/blogshield/blogshield/internal/signature"
)

const (
	rateLimit      = 5
	spamHoldScore  = 70
	lowRepCutoff   = 30
	blockSpamScore = 70
)

// GateConfig tunes the moderation gate.
type GateConfig struct {
	// ReviewNewUsers holds first-time commenters for review.
	ReviewNewUsers bool
}

// Gate runs the comment state machine and applies reputation feedback.
type Gate struct {
	words      *WordList
	reputation *ReputationStore
	rate       ratewindow.Window
	queue      *Queue
	cfg        GateConfig
	logger     *slog.Logger
}

// NewGate wires the gate. The rate window should span 60 seconds; a
// nil window gets an in-process default.
func NewGate(words *WordList, reputation *ReputationStore, rate ratewindow.Window, queue *Queue, cfg GateConfig, logger *slog.Logger) *Gate {
	if rate == nil {
		rate = ratewindow.NewMemory(time.Minute)
	}
	return &Gate{
		words:      words,
		reputation: reputation,
		rate:       rate,
		queue:      queue,
		cfg:        cfg,
		logger:     logger,
	}
}

// Moderate runs the comment through the gate and returns the terminal
// decision. Approved and blocked outcomes adjust the commenter's
// reputation immediately; queued comments adjust it when resolved.
func (g *Gate) Moderate(ctx context.Context, c Comment) Result {
	if c.Submitted.IsZero() {
		c.Submitted = time.Now()
	}

	if errs := Validate(c); len(errs) > 0 {
		return g.blocked(c, errs, 0)
	}

	var reasons []string
	var triggers queueTriggers

	if scan, found := g.words.Scan(c.Content); found {
		if scan.Severity == signature.SeverityCritical {
			return g.blocked(c, append(reasons, fmt.Sprintf("prohibited terms: %v", scan.Matches)), 0)
		}
		reasons = append(reasons, fmt.Sprintf("sensitive terms: %v", scan.Matches))
		triggers.sensitive = true
	}

	rep, seen, err := g.reputation.Score(c.Identity)
	if err != nil {
		g.logger.Error("reputation lookup failed", "identity", c.Identity, "error", err)
		rep, seen = defaultReputation, true
	}
	newUser := !seen

	rateCount, err := g.rate.Hit(ctx, c.Identity)
	if err != nil {
		g.logger.Error("rate window unavailable", "identity", c.Identity, "error", err)
		rateCount = 0
	}
	rateLimited := rateCount > rateLimit

	score, spamReasons := SpamScore(c.Content, SpamSignals{
		Reputation:  rep,
		NewUser:     newUser,
		RateLimited: rateLimited,
	})
	confidence := ConfidenceFor(score)

	if score >= blockSpamScore && confidence == ConfidenceVeryHigh {
		return g.blocked(c, append(reasons, spamReasons...), score)
	}
	if score >= spamHoldScore {
		reasons = append(reasons, spamReasons...)
		triggers.spam = true
	}

	if rateLimited {
		return g.blocked(c, append(reasons, "comment rate limit exceeded"), score)
	}

	if g.cfg.ReviewNewUsers && newUser {
		reasons = append(reasons, "first-time commenter")
		triggers.newUser = true
	}
	if rep < lowRepCutoff {
		reasons = append(reasons, fmt.Sprintf("low reputation (%d)", rep))
		triggers.lowRep = true
	}

	if triggers.sensitive || triggers.spam || triggers.newUser || triggers.lowRep {
		item := g.queue.Push(c, reasons, triggers)
		g.logger.Info("comment held for review",
			"identity", c.Identity,
			"priority", item.Priority,
			"reasons", reasons)
		return Result{Status: StatusPendingReview, Reasons: reasons, SpamScore: score, Confidence: confidence}
	}

	if _, err := g.reputation.Adjust(c.Identity, deltaApprove, "comment approved"); err != nil {
		g.logger.Error("reputation update failed", "identity", c.Identity, "error", err)
	}
	return Result{Status: StatusApproved, SpamScore: score, Confidence: confidence}
}

// Resolve settles a queued item and applies the reputation delta for
// the moderator's decision.
func (g *Gate) Resolve(id, moderator string, approve bool) (Item, error) {
	item, err := g.queue.Resolve(id, moderator, approve)
	if err != nil {
		return Item{}, err
	}
	delta, reason := deltaApprove, "comment approved by moderator"
	if !approve {
		delta, reason = deltaReject, "comment rejected by moderator"
	}
	if _, err := g.reputation.Adjust(item.Comment.Identity, delta, reason); err != nil {
		g.logger.Error("reputation update failed", "identity", item.Comment.Identity, "error", err)
	}
	return item, nil
}

func (g *Gate) blocked(c Comment, reasons []string, score int) Result {
	if _, err := g.reputation.Adjust(c.Identity, deltaReject, "comment blocked"); err != nil {
		g.logger.Error("reputation update failed", "identity", c.Identity, "error", err)
	}
	g.logger.Info("comment blocked", "identity", c.Identity, "reasons", reasons)
	return Result{Status: StatusBlocked, Reasons: reasons, SpamScore: score, Confidence: ConfidenceFor(score)}
}
