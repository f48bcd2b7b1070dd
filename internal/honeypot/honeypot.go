// Package honeypot maintains the registry of decoy routes. A request
// that touches a registered decoy path is conclusive evidence of
// probing and feeds the detection pipeline as a maximum-confidence
// finding.
package honeypot

import (
	"sort"
	"sync"
	"time"

	"github.com/blogshield/blogshield/internal/signature"
)

// defaultPaths are the decoy routes registered out of the box.
var defaultPaths = []string{
	"/admin/login.php",
	"/wp-admin/admin.php",
	"/phpmyadmin/index.php",
	"/.env",
	"/config.php",
	"/backup.sql",
	"/test.php",
	"/debug.log",
}

// trap tracks activity on one decoy path.
type trap struct {
	hits     int
	lastHit  time.Time
	visitors map[string]struct{}
}

// TrapStats is a read-only snapshot of one trap.
type TrapStats struct {
	Path     string    `json:"path"`
	Hits     int       `json:"hits"`
	Visitors int       `json:"visitors"`
	LastHit  time.Time `json:"last_hit"`
}

// Registry is the static set of decoy routes.
type Registry struct {
	mu    sync.Mutex
	traps map[string]*trap
	now   func() time.Time
}

// NewRegistry creates a registry with the default decoy paths plus any
// extras from configuration.
func NewRegistry(extra ...string) *Registry {
	r := &Registry{traps: make(map[string]*trap), now: time.Now}
	for _, p := range defaultPaths {
		r.traps[p] = &trap{visitors: make(map[string]struct{})}
	}
	for _, p := range extra {
		if _, ok := r.traps[p]; !ok {
			r.traps[p] = &trap{visitors: make(map[string]struct{})}
		}
	}
	return r
}

// NewEmptyRegistry creates a registry with no decoy paths, for
// deployments that disable honeypots.
func NewEmptyRegistry() *Registry {
	return &Registry{traps: make(map[string]*trap), now: time.Now}
}

// Check reports whether path is a registered decoy. A hit records the
// visitor and returns a honeypot_access finding regardless of payload.
func (r *Registry) Check(identity, path string) (signature.Finding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.traps[path]
	if !ok {
		return signature.Finding{}, false
	}
	t.hits++
	t.lastHit = r.now()
	t.visitors[identity] = struct{}{}

	return signature.Finding{
		Identity:  identity,
		Type:      signature.HoneypotAccess,
		Severity:  signature.SeverityOf(signature.HoneypotAccess),
		Pattern:   path,
		Excerpt:   path,
		Source:    "url",
		Timestamp: t.lastHit,
	}, true
}

// Stats returns a snapshot of every trap, most-hit first.
func (r *Registry) Stats() []TrapStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]TrapStats, 0, len(r.traps))
	for path, t := range r.traps {
		stats = append(stats, TrapStats{
			Path:     path,
			Hits:     t.hits,
			Visitors: len(t.visitors),
			LastHit:  t.lastHit,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Hits > stats[j].Hits
	})
	return stats
}

// Decoy returns the response body served for a decoy path. Paths
// without bespoke content get a generic denial page.
func Decoy(path string) string {
	if body, ok := decoyBodies[path]; ok {
		return body
	}
	return "<html><body><h1>Access Denied</h1></body></html>"
}

var decoyBodies = map[string]string{
	"/admin/login.php": `<!DOCTYPE html>
<html><head><title>Admin Login</title></head>
<body>
<h1>Administrator Login</h1>
<form method="post">
    <input type="text" name="username" placeholder="Username">
    <input type="password" name="password" placeholder="Password">
    <button type="submit">Login</button>
</form>
</body></html>`,
	"/.env": `DB_HOST=localhost
DB_DATABASE=production_db
DB_USERNAME=admin
DB_PASSWORD=super_secret_password_123
APP_KEY=base64:fake_key_for_honeypot
JWT_SECRET=fake_jwt_secret`,
	"/backup.sql": `-- MySQL dump (fake)
-- Host: localhost    Database: production
CREATE TABLE users (
    id int PRIMARY KEY,
    username varchar(50),
    password varchar(255),
    email varchar(100)
);
INSERT INTO users VALUES (1, 'admin', 'md5_fake_hash', 'admin@example.com');`,
}
