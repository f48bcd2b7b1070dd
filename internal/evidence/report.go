package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Report renders a record as the human-readable evidence document
// handed to operators and, when needed, to abuse contacts.
func Report(rec Record) string {
	var b strings.Builder

	b.WriteString("=== ATTACK EVIDENCE RECORD ===\n")
	fmt.Fprintf(&b, "Record ID:    %s\n", rec.ID)
	fmt.Fprintf(&b, "Captured:     %s\n", rec.Timestamp)
	fmt.Fprintf(&b, "Source IP:    %s\n", rec.IP)
	if rec.Country != "" {
		loc := rec.Country
		if rec.City != "" {
			loc = rec.City + ", " + loc
		}
		fmt.Fprintf(&b, "Origin:       %s\n", loc)
	}
	if rec.ISP != "" {
		fmt.Fprintf(&b, "ISP:          %s\n", rec.ISP)
	}
	fmt.Fprintf(&b, "Attack Type:  %s (severity %s)\n", rec.AttackType, rec.Severity)
	fmt.Fprintf(&b, "Threat:       %s (score %d)\n", rec.ThreatLevel, rec.ThreatScore)

	b.WriteString("\n--- Request ---\n")
	fmt.Fprintf(&b, "%s %s\n", rec.Method, rec.URL)
	if rec.UserAgent != "" {
		fmt.Fprintf(&b, "User-Agent: %s\n", rec.UserAgent)
	}
	if hdrs := headerLines(rec.Headers); len(hdrs) > 0 {
		b.WriteString("\n--- Headers ---\n")
		for _, line := range hdrs {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n--- Matched Payload ---\n")
	fmt.Fprintf(&b, "Pattern: %s\n", rec.Pattern)
	fmt.Fprintf(&b, "Excerpt: %s\n", rec.Excerpt)
	if rec.BodyExcerpt != "" {
		fmt.Fprintf(&b, "Body:    %s\n", rec.BodyExcerpt)
	}

	if rec.Fingerprint != "" {
		b.WriteString("\n--- Client Fingerprint ---\n")
		fmt.Fprintf(&b, "%s\n", rec.Fingerprint)
	}

	b.WriteString("\n--- Notice ---\n")
	b.WriteString("This record was preserved automatically at the time of the\n")
	b.WriteString("detected intrusion attempt and may be provided to the source\n")
	b.WriteString("network's abuse contact or to law enforcement.\n")

	return b.String()
}

// headerLines decodes the stored header JSON into sorted "Name: value"
// lines. Malformed header blobs render as nothing rather than failing
// the whole report.
func headerLines(raw string) []string {
	if raw == "" {
		return nil
	}
	var hdrs map[string]string
	if err := json.Unmarshal([]byte(raw), &hdrs); err != nil {
		return nil
	}
	names := make([]string, 0, len(hdrs))
	for name := range hdrs {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+": "+hdrs[name])
	}
	return lines
}
