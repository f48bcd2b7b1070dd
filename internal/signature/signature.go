package signature

import (
	"strings"
	"time"
)

// AttackType classifies a detected signal.
type AttackType string

const (
	XSS              AttackType = "xss"
	SQLInjection     AttackType = "sql_injection"
	PathTraversal    AttackType = "path_traversal"
	CommandInjection AttackType = "command_injection"
	Scanning         AttackType = "scanning"
	HoneypotAccess   AttackType = "honeypot_access"
	BruteForce       AttackType = "brute_force"
)

// Severity is the coarse classification attached to a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// severityRank orders severities for comparisons.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Exceeds reports whether s is strictly more severe than other.
func (s Severity) Exceeds(other Severity) bool {
	return severityRank(s) > severityRank(other)
}

// attackSeverity maps each attack type to its fixed severity.
var attackSeverity = map[AttackType]Severity{
	SQLInjection:     SeverityCritical,
	CommandInjection: SeverityCritical,
	HoneypotAccess:   SeverityCritical,
	XSS:              SeverityHigh,
	PathTraversal:    SeverityHigh,
	BruteForce:       SeverityMedium,
	Scanning:         SeverityLow,
}

// SeverityOf returns the fixed severity for an attack type.
// Unknown types default to MEDIUM.
func SeverityOf(t AttackType) Severity {
	if s, ok := attackSeverity[t]; ok {
		return s
	}
	return SeverityMedium
}

// Finding is one detected signal. Immutable once created.
type Finding struct {
	Identity  string     `json:"identity"`
	Type      AttackType `json:"type"`
	Severity  Severity   `json:"severity"`
	Pattern   string     `json:"pattern"`
	Excerpt   string     `json:"excerpt"`
	Source    string     `json:"source"` // url, body, header
	Timestamp time.Time  `json:"timestamp"`
}

// RequestView is the read-only request snapshot the matcher inspects.
type RequestView struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string
}

// Header returns a header value by canonical lowercase name.
func (r RequestView) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	// Tolerate non-normalized maps from callers.
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
