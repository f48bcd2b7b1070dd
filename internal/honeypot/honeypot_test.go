package honeypot

import (
	"strings"
	"testing"

	"github.com/blogshield/blogshield/internal/signature"
)

func TestCheck_RegisteredPath(t *testing.T) {
	r := NewRegistry()

	f, hit := r.Check("203.0.113.5", "/.env")
	if !hit {
		t.Fatal("/.env should be a decoy")
	}
	if f.Type != signature.HoneypotAccess {
		t.Errorf("type = %s, want honeypot_access", f.Type)
	}
	if f.Severity != signature.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", f.Severity)
	}
	if f.Identity != "203.0.113.5" {
		t.Errorf("identity = %s", f.Identity)
	}
}

func TestCheck_UnregisteredPath(t *testing.T) {
	r := NewRegistry()
	if _, hit := r.Check("203.0.113.5", "/articles/1"); hit {
		t.Error("/articles/1 should not be a decoy")
	}
}

func TestCheck_CountsHitsAndVisitors(t *testing.T) {
	r := NewRegistry()
	r.Check("203.0.113.5", "/.env")
	r.Check("203.0.113.5", "/.env")
	r.Check("198.51.100.7", "/.env")

	var env TrapStats
	for _, s := range r.Stats() {
		if s.Path == "/.env" {
			env = s
		}
	}
	if env.Hits != 3 {
		t.Errorf("hits = %d, want 3", env.Hits)
	}
	if env.Visitors != 2 {
		t.Errorf("visitors = %d, want 2", env.Visitors)
	}
}

func TestCheck_ExtraPaths(t *testing.T) {
	r := NewRegistry("/secret-panel")
	if _, hit := r.Check("203.0.113.5", "/secret-panel"); !hit {
		t.Error("extra path should be registered")
	}
}

func TestDecoy_Content(t *testing.T) {
	if !strings.Contains(Decoy("/.env"), "DB_PASSWORD") {
		t.Error(".env decoy should look like an env file")
	}
	if !strings.Contains(Decoy("/admin/login.php"), "Administrator Login") {
		t.Error("admin decoy should look like a login page")
	}
	if !strings.Contains(Decoy("/debug.log"), "Access Denied") {
		t.Error("paths without bespoke content get the denial page")
	}
}
