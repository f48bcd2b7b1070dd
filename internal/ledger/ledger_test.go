package ledger

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/internal/threat"
)

func finding(t signature.AttackType, at time.Time) signature.Finding {
	return signature.Finding{
		Identity:  "203.0.113.10",
		Type:      t,
		Severity:  signature.SeverityOf(t),
		Pattern:   "x",
		Excerpt:   "x",
		Source:    "url",
		Timestamp: at,
	}
}

func TestRecordUpsertsProfile(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	v := s.Record("203.0.113.10", finding(signature.XSS, base), RequestMeta{
		UserAgent: "curl/8.0",
		Path:      "/post?q=<script>",
	})
	if v.TotalAttacks != 1 {
		t.Fatalf("TotalAttacks = %d, want 1", v.TotalAttacks)
	}
	if v.CountsByType[signature.XSS] != 1 {
		t.Fatalf("xss count = %d, want 1", v.CountsByType[signature.XSS])
	}
	if !v.FirstSeen.Equal(base) || !v.LastSeen.Equal(base) {
		t.Fatalf("first/last seen = %v/%v", v.FirstSeen, v.LastSeen)
	}

	later := base.Add(time.Minute)
	s.now = func() time.Time { return later }
	v = s.Record("203.0.113.10", finding(signature.SQLInjection, later), RequestMeta{UserAgent: "curl/8.0"})
	if v.TotalAttacks != 2 {
		t.Fatalf("TotalAttacks = %d, want 2", v.TotalAttacks)
	}
	if !v.FirstSeen.Equal(base) {
		t.Fatalf("FirstSeen moved to %v", v.FirstSeen)
	}
	if !v.LastSeen.Equal(later) {
		t.Fatalf("LastSeen = %v, want %v", v.LastSeen, later)
	}
	if len(v.UserAgents) != 1 {
		t.Fatalf("UserAgents = %v, want deduped single entry", v.UserAgents)
	}
	if len(v.DistinctTypes) != 2 {
		t.Fatalf("DistinctTypes = %v", v.DistinctTypes)
	}
}

func TestRecordRescoresThreat(t *testing.T) {
	s := NewStore()
	now := time.Now()
	var v ProfileView
	for i := 0; i < 4; i++ {
		v = s.Record("198.51.100.1", finding(signature.SQLInjection, now), RequestMeta{})
	}
	// 4 attacks * 2 + sqli weight 20 = 28.
	if v.Score != 28 {
		t.Fatalf("Score = %d, want 28", v.Score)
	}
	if v.Level != threat.LevelLow {
		t.Fatalf("Level = %s, want %s", v.Level, threat.LevelLow)
	}
}

func TestHoneypotHitCounted(t *testing.T) {
	s := NewStore()
	v := s.Record("198.51.100.2", finding(signature.HoneypotAccess, time.Now()), RequestMeta{Path: "/.env"})
	if v.HoneypotHits != 1 {
		t.Fatalf("HoneypotHits = %d, want 1", v.HoneypotHits)
	}
}

func TestHistoryCap(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for i := 0; i < historyCap+25; i++ {
		s.Record("198.51.100.3", finding(signature.Scanning, now.Add(time.Duration(i)*time.Second)), RequestMeta{})
	}
	v, ok := s.Get("198.51.100.3")
	if !ok {
		t.Fatal("profile missing")
	}
	if len(v.History) != historyCap {
		t.Fatalf("history len = %d, want %d", len(v.History), historyCap)
	}
	// Oldest entries were evicted: first retained is entry 25.
	if got, want := v.History[0].Timestamp, now.Add(25*time.Second); !got.Equal(want) {
		t.Fatalf("oldest history entry at %v, want %v", got, want)
	}
	if v.TotalAttacks != historyCap+25 {
		t.Fatalf("TotalAttacks = %d, counters must survive eviction", v.TotalAttacks)
	}
}

func TestCountRecentWindow(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.Record("ip", finding(signature.BruteForce, base.Add(-2*time.Hour)), RequestMeta{})
	s.Record("ip", finding(signature.BruteForce, base.Add(-30*time.Minute)), RequestMeta{})
	s.Record("ip", finding(signature.BruteForce, base.Add(-5*time.Minute)), RequestMeta{})
	s.Record("ip", finding(signature.XSS, base.Add(-time.Minute)), RequestMeta{})

	if n := s.CountRecent("ip", signature.BruteForce, time.Hour); n != 2 {
		t.Fatalf("CountRecent = %d, want 2", n)
	}
	if n := s.CountRecent("absent", signature.BruteForce, time.Hour); n != 0 {
		t.Fatalf("CountRecent for unknown identity = %d, want 0", n)
	}
	if s.IsOverThreshold("ip", signature.BruteForce, time.Hour, 2) {
		t.Fatal("IsOverThreshold true at exactly the threshold")
	}
	if !s.IsOverThreshold("ip", signature.BruteForce, time.Hour, 1) {
		t.Fatal("IsOverThreshold false above the threshold")
	}
}

func TestBlockExpiry(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.Block("ip", base.Add(24*time.Hour))
	if !s.IsBlocked("ip") {
		t.Fatal("expected blocked")
	}

	s.now = func() time.Time { return base.Add(24*time.Hour + time.Second) }
	if s.IsBlocked("ip") {
		t.Fatal("block did not expire")
	}
	// Expired block is cleared on read.
	v, _ := s.Get("ip")
	if v.Blocked {
		t.Fatal("expired block still set on profile")
	}

	if s.IsBlocked("never-seen") {
		t.Fatal("unknown identity reported blocked")
	}
}

func TestUnblock(t *testing.T) {
	s := NewStore()
	s.Block("ip", time.Now().Add(time.Hour))
	s.Unblock("ip")
	if s.IsBlocked("ip") {
		t.Fatal("still blocked after Unblock")
	}
}

func TestLegalWarningSentOnce(t *testing.T) {
	s := NewStore()
	if !s.MarkLegalWarningSent("ip") {
		t.Fatal("first mark should succeed")
	}
	if s.MarkLegalWarningSent("ip") {
		t.Fatal("second mark should report already sent")
	}
}

func TestSweepEvictsIdleProfiles(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base.Add(-45 * 24 * time.Hour) }
	s.Record("stale", finding(signature.Scanning, base.Add(-45*24*time.Hour)), RequestMeta{})

	s.now = func() time.Time { return base }
	s.Record("fresh", finding(signature.Scanning, base), RequestMeta{})

	if n := s.Sweep(30 * 24 * time.Hour); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if _, ok := s.Get("stale"); ok {
		t.Fatal("stale profile survived sweep")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Fatal("fresh profile evicted")
	}
}

func TestSweepTrimsHistory(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.Record("ip", finding(signature.XSS, base.Add(-40*24*time.Hour)), RequestMeta{})
	s.Record("ip", finding(signature.XSS, base.Add(-time.Hour)), RequestMeta{})

	s.Sweep(30 * 24 * time.Hour)
	v, _ := s.Get("ip")
	if len(v.History) != 1 {
		t.Fatalf("history len = %d after trim, want 1", len(v.History))
	}
}

func TestSweepPreservesWrappedHistory(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// Push the ring past capacity so it wraps before sweeping.
	for i := 0; i < historyCap+5; i++ {
		s.Record("ip", finding(signature.Scanning, base.Add(time.Duration(i)*time.Second)), RequestMeta{})
	}

	s.Sweep(30 * 24 * time.Hour)

	v, _ := s.Get("ip")
	if len(v.History) != historyCap {
		t.Fatalf("history len = %d after sweep, want %d", len(v.History), historyCap)
	}
	for i, f := range v.History {
		want := base.Add(time.Duration(5+i) * time.Second)
		if !f.Timestamp.Equal(want) {
			t.Fatalf("history[%d] at %v, want %v", i, f.Timestamp, want)
		}
	}
}

func TestSweepTrimsWrappedHistory(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	old := base.Add(-40 * 24 * time.Hour)
	for i := 0; i < historyCap+10; i++ {
		s.Record("ip", finding(signature.Scanning, old), RequestMeta{})
	}
	for i := 0; i < 20; i++ {
		s.Record("ip", finding(signature.Scanning, base.Add(time.Duration(i)*time.Second)), RequestMeta{})
	}

	s.Sweep(30 * 24 * time.Hour)

	v, _ := s.Get("ip")
	if len(v.History) != 20 {
		t.Fatalf("history len = %d after sweep, want 20", len(v.History))
	}
	for i, f := range v.History {
		want := base.Add(time.Duration(i) * time.Second)
		if !f.Timestamp.Equal(want) {
			t.Fatalf("history[%d] at %v, want %v", i, f.Timestamp, want)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.Record("203.0.113.10", finding(signature.SQLInjection, base), RequestMeta{
		UserAgent:   "sqlmap/1.7",
		Path:        "/post?id=1",
		Fingerprint: Fingerprint(map[string]string{"User-Agent": "sqlmap/1.7"}),
	})
	s.Record("203.0.113.10", finding(signature.HoneypotAccess, base), RequestMeta{Path: "/.env"})
	s.Block("203.0.113.10", base.Add(24*time.Hour))
	s.MarkLegalWarningSent("203.0.113.10")

	path := filepath.Join(t.TempDir(), "attackers.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := NewStore()
	restored.now = func() time.Time { return base }
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want, _ := s.Get("203.0.113.10")
	got, ok := restored.Get("203.0.113.10")
	if !ok {
		t.Fatal("profile missing after load")
	}
	if got.TotalAttacks != want.TotalAttacks ||
		got.HoneypotHits != want.HoneypotHits ||
		got.Score != want.Score ||
		got.Level != want.Level ||
		!got.Blocked ||
		!got.LegalWarningSent ||
		got.Fingerprint != want.Fingerprint {
		t.Fatalf("restored profile = %+v, want %+v", got, want)
	}
	if len(got.History) != len(want.History) {
		t.Fatalf("restored history len = %d, want %d", len(got.History), len(want.History))
	}
	if !restored.IsBlocked("203.0.113.10") {
		t.Fatal("block not restored")
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore()
	if err := s.Load(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestSummarize(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Record("a", finding(signature.XSS, now), RequestMeta{})
	s.Record("a", finding(signature.SQLInjection, now), RequestMeta{})
	s.Record("b", finding(signature.HoneypotAccess, now), RequestMeta{})
	s.Block("b", now.Add(time.Hour))

	st := s.Summarize()
	if st.TrackedIdentities != 2 {
		t.Fatalf("TrackedIdentities = %d", st.TrackedIdentities)
	}
	if st.BlockedIdentities != 1 {
		t.Fatalf("BlockedIdentities = %d", st.BlockedIdentities)
	}
	if st.TotalAttacks != 3 {
		t.Fatalf("TotalAttacks = %d", st.TotalAttacks)
	}
	if st.HoneypotHits != 1 {
		t.Fatalf("HoneypotHits = %d", st.HoneypotHits)
	}
	if st.CountsByType[signature.XSS] != 1 || st.CountsByType[signature.SQLInjection] != 1 {
		t.Fatalf("CountsByType = %v", st.CountsByType)
	}
}

func TestConcurrentRecordDistinctIdentities(t *testing.T) {
	s := NewStore()
	now := time.Now()
	var wg sync.WaitGroup
	ids := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Record(id, finding(signature.Scanning, now), RequestMeta{})
			}
		}(id)
	}
	wg.Wait()
	for _, id := range ids {
		v, _ := s.Get(id)
		if v.TotalAttacks != 50 {
			t.Fatalf("%s TotalAttacks = %d, want 50", id, v.TotalAttacks)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(map[string]string{"User-Agent": "x", "Accept-Language": "en"})
	b := Fingerprint(map[string]string{"user-agent": "x", "accept-language": "en"})
	if a != b {
		t.Fatal("fingerprint sensitive to header case")
	}
	c := Fingerprint(map[string]string{"User-Agent": "y", "Accept-Language": "en"})
	if a == c {
		t.Fatal("fingerprint ignored user agent change")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}
