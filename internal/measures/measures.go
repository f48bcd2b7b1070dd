// Package measures decides and applies the automated responses taken
// against an identity after each recorded attack: blocking, honeypot
// redirection, throttling, monitoring, and the one-time legal warning.
package measures

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/internal/threat"
)

// Action identifies a counter-measure kind.
type Action string

const (
	ActionBlock              Action = "BLOCK"
	ActionFlagSuspicious     Action = "FLAG_SUSPICIOUS"
	ActionHoneypotRedirect   Action = "HONEYPOT_REDIRECT"
	ActionResourceLimit      Action = "RESOURCE_LIMIT"
	ActionEnhancedMonitoring Action = "ENHANCED_MONITORING"
	ActionLegalWarning       Action = "LEGAL_WARNING"
)

const defaultBlockDuration = 24 * time.Hour

// Measure is one action decided for an identity, with the reason that
// triggered it.
type Measure struct {
	Action    Action    `json:"action"`
	Identity  string    `json:"identity"`
	Reason    string    `json:"reason"`
	Expiry    time.Time `json:"expiry,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine evaluates profiles against the response rules. It writes
// block state back into the ledger so the gate sees it on the next
// request.
type Engine struct {
	store         *ledger.Store
	logger        *slog.Logger
	blockDuration time.Duration

	mu        sync.Mutex
	redirects map[string]struct{}
	history   []Measure

	now func() time.Time
}

// historyCap bounds the in-memory record of applied measures.
const historyCap = 500

// NewEngine creates an engine bound to the given ledger.
func NewEngine(store *ledger.Store, logger *slog.Logger, blockDuration time.Duration) *Engine {
	if blockDuration <= 0 {
		blockDuration = defaultBlockDuration
	}
	return &Engine{
		store:         store,
		logger:        logger,
		blockDuration: blockDuration,
		redirects:     make(map[string]struct{}),
		now:           time.Now,
	}
}

// Decide evaluates the rules against the profile state after a
// finding was recorded and applies every measure that fires. The
// returned slice lists them in rule order.
func (e *Engine) Decide(p ledger.ProfileView, f signature.Finding) []Measure {
	now := e.now()
	var applied []Measure

	add := func(a Action, reason string, expiry time.Time) {
		m := Measure{Action: a, Identity: p.IP, Reason: reason, Expiry: expiry, Timestamp: now}
		applied = append(applied, m)
		e.record(m)
		e.logger.Warn("counter-measure applied",
			"action", string(a),
			"identity", p.IP,
			"reason", reason,
			"threat_level", string(p.Level),
			"attack_type", string(f.Type))
	}

	if !p.Blocked {
		switch {
		case p.HoneypotHits > 0:
			e.block(p.IP, now)
			add(ActionBlock, "honeypot access", now.Add(e.blockDuration))
		case p.Level == threat.LevelCritical:
			e.block(p.IP, now)
			add(ActionBlock, "critical threat level", now.Add(e.blockDuration))
		case p.TotalAttacks >= 3:
			e.block(p.IP, now)
			add(ActionBlock, fmt.Sprintf("%d recorded attacks", p.TotalAttacks), now.Add(e.blockDuration))
		}
	}

	if p.Level == threat.LevelMedium {
		add(ActionFlagSuspicious, "sustained suspicious activity", time.Time{})
	}

	if p.TotalAttacks >= 2 && p.Level != threat.LevelLow {
		e.mu.Lock()
		e.redirects[p.IP] = struct{}{}
		e.mu.Unlock()
		add(ActionHoneypotRedirect, "repeat attacker above low threat", time.Time{})
	}

	if p.Level == threat.LevelHigh || p.Level == threat.LevelCritical {
		add(ActionResourceLimit, fmt.Sprintf("threat level %s", p.Level), time.Time{})
	}

	add(ActionEnhancedMonitoring, "attack activity observed", time.Time{})

	if p.TotalAttacks > 5 && e.store.MarkLegalWarningSent(p.IP) {
		add(ActionLegalWarning, fmt.Sprintf("persistent attacker, %d attacks", p.TotalAttacks), time.Time{})
	}

	return applied
}

func (e *Engine) block(identity string, now time.Time) {
	e.store.Block(identity, now.Add(e.blockDuration))
}

func (e *Engine) record(m Measure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, m)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
}

// History returns the most recent applied measures, newest last, up to
// limit entries (all retained entries when limit <= 0).
func (e *Engine) History(limit int) []Measure {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.history
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	cp := make([]Measure, len(out))
	copy(cp, out)
	return cp
}

// ShouldRedirect reports whether the identity has been marked for
// honeypot redirection.
func (e *Engine) ShouldRedirect(identity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.redirects[identity]
	return ok
}

// LegalWarningText renders the warning notice delivered to a
// persistent attacker.
func LegalWarningText(identity string, attacks int) string {
	return fmt.Sprintf(`NOTICE OF UNAUTHORIZED ACCESS

Your address %s has been identified as the source of %d attack
attempts against this site. All activity from this address is being
recorded, including request contents, timing, and network metadata.

Continued attempts at unauthorized access may be reported to your
network provider and to the relevant authorities together with the
collected evidence. Cease this activity immediately.`, identity, attacks)
}
