package measures

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/signature"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(t *testing.T, s *ledger.Store, identity string, kind signature.AttackType, n int) ledger.ProfileView {
	t.Helper()
	var v ledger.ProfileView
	for i := 0; i < n; i++ {
		v = s.Record(identity, signature.Finding{
			Identity:  identity,
			Type:      kind,
			Severity:  signature.SeverityOf(kind),
			Timestamp: time.Now(),
		}, ledger.RequestMeta{})
	}
	return v
}

func actions(ms []Measure) []Action {
	out := make([]Action, len(ms))
	for i, m := range ms {
		out[i] = m.Action
	}
	return out
}

func has(ms []Measure, a Action) bool {
	for _, m := range ms {
		if m.Action == a {
			return true
		}
	}
	return false
}

func TestMonitoringAlwaysApplied(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	v := record(t, s, "ip", signature.Scanning, 1)
	ms := e.Decide(v, v.History[0])
	if len(ms) != 1 || ms[0].Action != ActionEnhancedMonitoring {
		t.Fatalf("measures = %v, want only ENHANCED_MONITORING", actions(ms))
	}
	if s.IsBlocked("ip") {
		t.Fatal("single low-severity attack must not block")
	}
}

func TestBlockOnThirdAttack(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	v := record(t, s, "ip", signature.XSS, 2)
	if ms := e.Decide(v, v.History[len(v.History)-1]); has(ms, ActionBlock) {
		t.Fatalf("blocked at 2 attacks: %v", actions(ms))
	}

	v = record(t, s, "ip", signature.XSS, 1)
	ms := e.Decide(v, v.History[len(v.History)-1])
	if !has(ms, ActionBlock) {
		t.Fatalf("no block at 3 attacks: %v", actions(ms))
	}
	if !s.IsBlocked("ip") {
		t.Fatal("block not written to ledger")
	}
}

func TestFlagSuspiciousAtMediumThreat(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	// Two distinct types, 2 attacks: 4 + 20 + 25 = 49, MEDIUM.
	v := record(t, s, "ip", signature.SQLInjection, 1)
	v = record(t, s, "ip", signature.CommandInjection, 1)
	ms := e.Decide(v, v.History[len(v.History)-1])
	if !has(ms, ActionFlagSuspicious) {
		t.Fatalf("no suspicious flag at level %s: %v", v.Level, actions(ms))
	}
}

func TestBlockOnHoneypotHit(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	v := record(t, s, "ip", signature.HoneypotAccess, 1)
	ms := e.Decide(v, v.History[0])
	if !has(ms, ActionBlock) {
		t.Fatalf("honeypot hit must block: %v", actions(ms))
	}
	if ms[0].Reason != "honeypot access" {
		t.Fatalf("reason = %q", ms[0].Reason)
	}
}

func TestBlockNotReappliedWhileActive(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	v := record(t, s, "ip", signature.XSS, 3)
	e.Decide(v, v.History[len(v.History)-1])

	v = record(t, s, "ip", signature.XSS, 1)
	ms := e.Decide(v, v.History[len(v.History)-1])
	if has(ms, ActionBlock) {
		t.Fatalf("block re-applied while already active: %v", actions(ms))
	}
}

func TestHoneypotRedirectNeedsMediumThreat(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	// Two scans score 2*2+5 = 9, LOW: no redirect.
	v := record(t, s, "low", signature.Scanning, 2)
	if ms := e.Decide(v, v.History[len(v.History)-1]); has(ms, ActionHoneypotRedirect) {
		t.Fatalf("redirect at LOW threat: %v", actions(ms))
	}

	// Command injection attacks push score past 40.
	v = record(t, s, "med", signature.CommandInjection, 8)
	ms := e.Decide(v, v.History[len(v.History)-1])
	if !has(ms, ActionHoneypotRedirect) {
		t.Fatalf("no redirect for repeat attacker: %v", actions(ms))
	}
	if !e.ShouldRedirect("med") {
		t.Fatal("ShouldRedirect false after redirect measure")
	}
	if e.ShouldRedirect("low") {
		t.Fatal("ShouldRedirect true for untargeted identity")
	}
}

func TestResourceLimitAtHighThreat(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	// 10 sqli: 20+20+10*? no honeypot, score = min(20,50)+20 = 40 MEDIUM;
	// push further with honeypot hits to reach HIGH.
	v := record(t, s, "ip", signature.SQLInjection, 10)
	v = record(t, s, "ip", signature.HoneypotAccess, 2)
	ms := e.Decide(v, v.History[len(v.History)-1])
	if !has(ms, ActionResourceLimit) {
		t.Fatalf("no resource limit at level %s: %v", v.Level, actions(ms))
	}
}

func TestLegalWarningOncePastFiveAttacks(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	v := record(t, s, "ip", signature.XSS, 5)
	if ms := e.Decide(v, v.History[len(v.History)-1]); has(ms, ActionLegalWarning) {
		t.Fatalf("legal warning at exactly 5 attacks: %v", actions(ms))
	}

	v = record(t, s, "ip", signature.XSS, 1)
	ms := e.Decide(v, v.History[len(v.History)-1])
	if !has(ms, ActionLegalWarning) {
		t.Fatalf("no legal warning past 5 attacks: %v", actions(ms))
	}

	v = record(t, s, "ip", signature.XSS, 1)
	ms = e.Decide(v, v.History[len(v.History)-1])
	if has(ms, ActionLegalWarning) {
		t.Fatalf("legal warning repeated: %v", actions(ms))
	}
}

func TestLegalWarningText(t *testing.T) {
	text := LegalWarningText("203.0.113.9", 7)
	if !strings.Contains(text, "203.0.113.9") || !strings.Contains(text, "7 attack") {
		t.Fatalf("warning text missing identity or count:\n%s", text)
	}
}

func TestBlockExpiryHonorsConfiguredDuration(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	v := record(t, s, "ip", signature.HoneypotAccess, 1)
	ms := e.Decide(v, v.History[0])
	if !has(ms, ActionBlock) {
		t.Fatal("expected block")
	}
	if want := base.Add(time.Hour); !ms[0].Expiry.Equal(want) {
		t.Fatalf("block expiry = %v, want %v", ms[0].Expiry, want)
	}
}

func TestHistoryRetainsAppliedMeasures(t *testing.T) {
	s := ledger.NewStore()
	e := NewEngine(s, discard(), 0)

	v := record(t, s, "203.0.113.5", signature.XSS, 1)
	e.Decide(v, signature.Finding{Identity: "203.0.113.5", Type: signature.XSS})

	all := e.History(0)
	if len(all) == 0 {
		t.Fatal("no measures retained")
	}
	if all[len(all)-1].Identity != "203.0.113.5" {
		t.Fatalf("identity = %s", all[len(all)-1].Identity)
	}

	if got := e.History(1); len(got) != 1 {
		t.Fatalf("limited history = %d entries", len(got))
	}
}
