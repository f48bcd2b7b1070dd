package moderation

import (
	"testing"
	"testing/fstest"

	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/rules"
)

func defaultWords(t *testing.T) *WordList {
	t.Helper()
	wl, err := LoadWordList(rules.FS(), "sensitive-words.yaml")
	if err != nil {
		t.Fatal(err)
	}
	return wl
}

func TestWordListLoadsDefaults(t *testing.T) {
	wl := defaultWords(t)
	if len(wl.terms) == 0 {
		t.Fatal("no terms loaded")
	}
}

func TestScanNoMatch(t *testing.T) {
	wl := defaultWords(t)
	if _, found := wl.Scan("a perfectly normal comment"); found {
		t.Fatal("unexpected match")
	}
}

func TestScanMatchCaseInsensitive(t *testing.T) {
	wl := defaultWords(t)
	res, found := wl.Scan("cheap VIAGRA here")
	if !found {
		t.Fatal("expected match")
	}
	if res.Severity != signature.SeverityMedium {
		t.Fatalf("severity = %s, want MEDIUM", res.Severity)
	}
}

func TestScanEscalatesAtThreeDistinctTerms(t *testing.T) {
	wl := defaultWords(t)
	res, found := wl.Scan("viagra cialis casino party")
	if !found {
		t.Fatal("expected match")
	}
	if len(res.Matches) != 3 {
		t.Fatalf("matches = %v", res.Matches)
	}
	// Three medium terms escalate to high.
	if res.Severity != signature.SeverityHigh {
		t.Fatalf("severity = %s, want HIGH", res.Severity)
	}
}

func TestScanCriticalTerm(t *testing.T) {
	wl := defaultWords(t)
	res, found := wl.Scan("looking for a hitman")
	if !found {
		t.Fatal("expected match")
	}
	if res.Severity != signature.SeverityCritical {
		t.Fatalf("severity = %s, want CRITICAL", res.Severity)
	}
}

func TestAddOperatorTerms(t *testing.T) {
	wl := defaultWords(t)
	wl.Add([]SensitiveTerm{{Term: "Forbidden Widget", Severity: "high"}, {Term: "oddity", Severity: "nonsense"}})

	res, found := wl.Scan("get your forbidden widget today")
	if !found {
		t.Fatal("added term not matched")
	}
	if res.Severity != signature.SeverityHigh {
		t.Fatalf("severity = %s, want HIGH", res.Severity)
	}

	res, found = wl.Scan("an oddity appears")
	if !found {
		t.Fatal("added term with bad severity not matched")
	}
	if res.Severity != signature.SeverityMedium {
		t.Fatalf("fallback severity = %s, want MEDIUM", res.Severity)
	}
}

func TestLoadWordListInvalidSeverity(t *testing.T) {
	fsys := fstest.MapFS{
		"words.yaml": &fstest.MapFile{Data: []byte("words:\n  - term: foo\n    severity: extreme\n")},
	}
	if _, err := LoadWordList(fsys, "words.yaml"); err == nil {
		t.Fatal("expected error for invalid severity")
	}
}

func TestLoadWordListMissingFile(t *testing.T) {
	if _, err := LoadWordList(fstest.MapFS{}, "words.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
