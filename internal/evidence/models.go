package evidence

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Record is one preserved capture of a detected attack: what was
// matched, the full request context, and where the client came from.
type Record struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Day         string `json:"day"`
	IP          string `json:"ip"`
	AttackType  string `json:"attack_type"`
	Severity    string `json:"severity"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	Headers     string `json:"headers,omitempty"` // JSON object
	BodyExcerpt string `json:"body_excerpt,omitempty"`
	Pattern     string `json:"pattern"`
	Excerpt     string `json:"excerpt"`
	UserAgent   string `json:"user_agent,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Country     string `json:"country,omitempty"`
	City        string `json:"city,omitempty"`
	ISP         string `json:"isp,omitempty"`
	ThreatScore int    `json:"threat_score"`
	ThreatLevel string `json:"threat_level"`
}

// NewID builds the record identifier from the source address, the
// capture time in unix milliseconds, and a short random suffix that
// keeps ids unique within the same millisecond.
func NewID(ip string, at time.Time) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back
		// to a time-derived suffix anyway.
		return fmt.Sprintf("%s_%d_%08x", ip, at.UnixMilli(), at.UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%s_%d_%s", ip, at.UnixMilli(), hex.EncodeToString(buf[:]))
}

// DayOf returns the UTC day partition key for a capture time.
func DayOf(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}
