package evidence

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "evidence.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sample(id, ip, attackType, day string) Record {
	return Record{
		ID:          id,
		Timestamp:   day + "T12:00:00Z",
		Day:         day,
		IP:          ip,
		AttackType:  attackType,
		Severity:    "HIGH",
		Method:      "GET",
		URL:         "/post?q=payload",
		Pattern:     "<script",
		Excerpt:     "<script>alert(1)</script>",
		ThreatScore: 40,
		ThreatLevel: "MEDIUM",
	}
}

func TestLogAndQuery(t *testing.T) {
	store := newTestStore(t)

	store.Log(sample("r1", "203.0.113.1", "xss", "2026-03-01"))
	store.Log(sample("r2", "203.0.113.1", "sql_injection", "2026-03-01"))
	store.Log(sample("r3", "203.0.113.2", "xss", "2026-03-02"))
	store.Flush()

	records, err := store.Query(QueryOpts{IP: "203.0.113.1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records for ip, want 2", len(records))
	}

	records, err = store.Query(QueryOpts{AttackType: "xss"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d xss records, want 2", len(records))
	}

	records, err = store.Query(QueryOpts{Day: "2026-03-02"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "r3" {
		t.Fatalf("day filter returned %v", records)
	}
}

func TestQueryLimit(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 10; i++ {
		r := sample("", "203.0.113.1", "xss", "2026-03-01")
		r.ID = NewID(r.IP, time.Now())
		store.Log(r)
	}
	store.Flush()

	records, err := store.Query(QueryOpts{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
}

func TestCountByDay(t *testing.T) {
	store := newTestStore(t)
	store.Log(sample("r1", "a", "xss", "2026-03-01"))
	store.Log(sample("r2", "a", "xss", "2026-03-01"))
	store.Log(sample("r3", "a", "xss", "2026-03-02"))
	store.Flush()

	counts, err := store.CountByDay("")
	if err != nil {
		t.Fatal(err)
	}
	if counts["2026-03-01"] != 2 || counts["2026-03-02"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	counts, err = store.CountByDay("2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 {
		t.Fatalf("since filter returned %v", counts)
	}
}

func TestPurgeRemovesOldPartitions(t *testing.T) {
	store := newTestStore(t)
	store.Log(sample("old", "a", "xss", "2026-01-01"))
	store.Log(sample("new", "a", "xss", "2026-03-01"))
	store.Flush()

	n, err := store.Purge("2026-02-01")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d records, want 1", n)
	}

	records, err := store.Query(QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "new" {
		t.Fatalf("surviving records = %v", records)
	}
}

func TestNewID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := NewID("203.0.113.7", at)
	if !strings.HasPrefix(id, "203.0.113.7_1772366400000_") {
		t.Fatalf("id = %q", id)
	}
	if id == NewID("203.0.113.7", at) {
		t.Fatal("ids for the same instant must differ")
	}
}

func TestDayOf(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("plus5", 5*3600))
	if got := DayOf(at); got != "2026-03-01" {
		t.Fatalf("DayOf = %q, want UTC day", got)
	}
}

func TestQueryByID(t *testing.T) {
	store := newTestStore(t)
	store.Log(sample("rec-a", "198.51.100.7", "xss", "2026-08-29"))
	store.Log(sample("rec-b", "198.51.100.7", "sql_injection", "2026-08-29"))
	store.Flush()

	records, err := store.Query(QueryOpts{ID: "rec-b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].AttackType != "sql_injection" {
		t.Fatalf("records = %+v", records)
	}
}

func TestReportRendering(t *testing.T) {
	rec := sample("198.51.100.7_1700000000000_deadbeef", "198.51.100.7", "sql_injection", "2026-08-29")
	rec.Headers = `{"Content-Type":"application/json","X-Forwarded-For":"198.51.100.7"}`
	rec.Country = "Testland"
	rec.City = "Springfield"
	rec.Fingerprint = "abcd1234"

	doc := Report(rec)
	for _, want := range []string{
		"ATTACK EVIDENCE RECORD",
		"198.51.100.7_1700000000000_deadbeef",
		"sql_injection",
		"Springfield, Testland",
		"Content-Type: application/json",
		"abcd1234",
		"abuse contact",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("report missing %q:\n%s", want, doc)
		}
	}
}

func TestReportSkipsMalformedHeaders(t *testing.T) {
	rec := sample("rec-h", "198.51.100.7", "xss", "2026-08-29")
	rec.Headers = "not json"
	if doc := Report(rec); strings.Contains(doc, "--- Headers ---") {
		t.Fatalf("headers section rendered from malformed blob:\n%s", doc)
	}
}
