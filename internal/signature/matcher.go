package signature

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Target names a part of the request a pattern group applies to.
type Target string

const (
	TargetURL    Target = "url"
	TargetBody   Target = "body"
	TargetHeader Target = "header"
)

const maxExcerpt = 200

// Group is one declarative pattern group. All members share an attack
// type; the first member that matches emits the group's single finding.
type Group struct {
	Type     AttackType
	Targets  []Target
	Header   string // header name checked when Targets includes TargetHeader
	Patterns []*regexp.Regexp
}

// builtinGroups is the fixed signature table. The scanning group checks
// the request path against known probe paths and the user-agent against
// scanner tool fingerprints.
var builtinGroups = []Group{
	{
		Type:    XSS,
		Targets: []Target{TargetURL, TargetBody},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)on\w+\s*=\s*["'][^"']*["']`),
			regexp.MustCompile(`(?i)<iframe[^>]*src\s*=\s*["'][^"']*["']`),
			regexp.MustCompile(`(?i)eval\s*\(`),
			regexp.MustCompile(`(?i)document\.cookie`),
		},
	},
	{
		Type:    SQLInjection,
		Targets: []Target{TargetURL, TargetBody},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|create|alter)\s+`),
			regexp.MustCompile(`(?i)(\s|^)(or|and)\s+\d+\s*=\s*\d+`),
			regexp.MustCompile(`(?i)['";]\s*(or|and)\s+['"]?\w+['"]?\s*=`),
			regexp.MustCompile(`(?i)\b(exec|execute|sp_)\w+`),
			regexp.MustCompile(`(?m)--\s*$`),
			regexp.MustCompile(`(?s)/\*.*?\*/`),
		},
	},
	{
		Type:    PathTraversal,
		Targets: []Target{TargetURL, TargetBody},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\.\.[/\\]`),
			regexp.MustCompile(`(?i)\.\.%2f`),
			regexp.MustCompile(`(?i)\.\.%5c`),
			regexp.MustCompile(`(?i)%2e%2e%2f`),
			regexp.MustCompile(`(?i)%2e%2e%5c`),
		},
	},
	{
		Type:    CommandInjection,
		Targets: []Target{TargetURL, TargetBody},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile("[;&|`$(){}\\[\\]]"),
			regexp.MustCompile(`(?i)\b(cat|ls|pwd|whoami|id|uname|wget|curl|nc|netcat)\b`),
			regexp.MustCompile(`(?i)\b(rm|mv|cp|chmod|chown)\s+`),
			regexp.MustCompile(`(?i)\|\s*(nc|netcat|bash|sh|cmd)`),
		},
	},
	{
		Type:    Scanning,
		Targets: []Target{TargetURL, TargetHeader},
		Header:  "user-agent",
		Patterns: []*regexp.Regexp{
			probePathPattern,
			regexp.MustCompile(`(?i)(hydra|nmap|sqlmap|nikto|burp|zap)`),
		},
	},
}

// probePaths are request paths characteristic of automated scanners.
var probePaths = []string{
	"/admin", "/wp-admin", "/phpmyadmin",
	"/.env", "/config", "/backup",
	"/test", "/debug", "/api/v1",
	"/robots.txt", "/sitemap.xml",
}

var probePathPattern = func() *regexp.Regexp {
	quoted := make([]string, len(probePaths))
	for i, p := range probePaths {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")")
}()

// Matcher tests requests against the builtin signature table plus an
// optional custom group set that can be swapped at runtime.
type Matcher struct {
	mu     sync.RWMutex
	custom []Group
	now    func() time.Time
}

// NewMatcher creates a matcher over the builtin signature table.
func NewMatcher() *Matcher {
	return &Matcher{now: time.Now}
}

// SetCustomGroups atomically replaces the custom group set. The builtin
// table is never affected.
func (m *Matcher) SetCustomGroups(groups []Group) {
	m.mu.Lock()
	m.custom = groups
	m.mu.Unlock()
}

// Match tests the request against every group. At most one finding per
// group is emitted; distinct groups may all fire on the same request.
// An empty result means no signature matched and is not an error.
func (m *Matcher) Match(identity string, req RequestView) []Finding {
	m.mu.RLock()
	custom := m.custom
	m.mu.RUnlock()

	var findings []Finding
	for _, groups := range [][]Group{builtinGroups, custom} {
		for _, g := range groups {
			if f, ok := m.matchGroup(identity, g, req); ok {
				findings = append(findings, f)
			}
		}
	}
	return findings
}

// matchGroup scans the group's targets in priority order (url, body,
// header) and stops at the first matching pattern.
func (m *Matcher) matchGroup(identity string, g Group, req RequestView) (Finding, bool) {
	for _, target := range g.Targets {
		var content string
		switch target {
		case TargetURL:
			content = req.URL
		case TargetBody:
			content = req.Body
		case TargetHeader:
			content = req.Header(g.Header)
		}
		if content == "" {
			continue
		}
		for _, p := range g.Patterns {
			if loc := p.FindStringIndex(content); loc != nil {
				return Finding{
					Identity:  identity,
					Type:      g.Type,
					Severity:  SeverityOf(g.Type),
					Pattern:   p.String(),
					Excerpt:   excerpt(content, loc),
					Source:    string(target),
					Timestamp: m.now(),
				}, true
			}
		}
	}
	return Finding{}, false
}

// excerpt returns the matched region bounded to maxExcerpt bytes,
// extended with trailing context when the match itself is short.
func excerpt(content string, loc []int) string {
	start := loc[0]
	end := loc[1]
	if end-start < maxExcerpt {
		end = start + maxExcerpt
	}
	if end > len(content) {
		end = len(content)
	}
	s := content[start:end]
	if len(s) > maxExcerpt {
		s = s[:maxExcerpt]
	}
	return s
}

// TextMatches reports whether free-form text trips any builtin
// pattern of the given attack type. Used outside the request path,
// e.g. for comment content checks.
func TextMatches(t AttackType, text string) bool {
	if text == "" {
		return false
	}
	for _, g := range builtinGroups {
		if g.Type != t {
			continue
		}
		for _, p := range g.Patterns {
			if p.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// ParseGroup builds a Group from configuration values, validating the
// attack type, targets, and member patterns.
func ParseGroup(attackType string, targets []string, header string, patterns []string) (Group, error) {
	g := Group{Type: AttackType(attackType), Header: header}
	if attackType == "" {
		return Group{}, fmt.Errorf("pattern group is missing an attack type")
	}
	if len(patterns) == 0 {
		return Group{}, fmt.Errorf("pattern group %q has no patterns", attackType)
	}
	for _, t := range targets {
		switch Target(t) {
		case TargetURL, TargetBody, TargetHeader:
			g.Targets = append(g.Targets, Target(t))
		default:
			return Group{}, fmt.Errorf("pattern group %q: invalid target %q", attackType, t)
		}
	}
	if len(g.Targets) == 0 {
		g.Targets = []Target{TargetURL, TargetBody}
	}
	for _, raw := range patterns {
		p, err := regexp.Compile(raw)
		if err != nil {
			return Group{}, fmt.Errorf("pattern group %q: invalid pattern %q: %w", attackType, raw, err)
		}
		g.Patterns = append(g.Patterns, p)
	}
	return g, nil
}
