package moderation

import (
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blogshield/blogshield/internal/signature"
)

// SensitiveTerm is one moderated term with its base severity.
type SensitiveTerm struct {
	Term     string `yaml:"term"`
	Severity string `yaml:"severity"`
}

type wordsFile struct {
	Words []SensitiveTerm `yaml:"words"`
}

// WordList holds the compiled sensitive-term set.
type WordList struct {
	terms []SensitiveTerm
}

// LoadWordList parses a sensitive-words YAML document from the given
// filesystem, normally the embedded rules.
func LoadWordList(fsys fs.FS, name string) (*WordList, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading word list: %w", err)
	}
	var doc wordsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing word list: %w", err)
	}
	wl := &WordList{}
	for _, w := range doc.Words {
		if strings.TrimSpace(w.Term) == "" {
			continue
		}
		sev := signature.Severity(strings.ToUpper(w.Severity))
		switch sev {
		case signature.SeverityLow, signature.SeverityMedium, signature.SeverityHigh, signature.SeverityCritical:
		default:
			return nil, fmt.Errorf("word %q: invalid severity %q", w.Term, w.Severity)
		}
		wl.terms = append(wl.terms, SensitiveTerm{
			Term:     strings.ToLower(w.Term),
			Severity: string(sev),
		})
	}
	return wl, nil
}

// Add appends operator-configured terms on top of the defaults.
// Unknown severities default to MEDIUM.
func (wl *WordList) Add(terms []SensitiveTerm) {
	for _, w := range terms {
		if strings.TrimSpace(w.Term) == "" {
			continue
		}
		sev := signature.Severity(strings.ToUpper(w.Severity))
		switch sev {
		case signature.SeverityLow, signature.SeverityMedium, signature.SeverityHigh, signature.SeverityCritical:
		default:
			sev = signature.SeverityMedium
		}
		wl.terms = append(wl.terms, SensitiveTerm{Term: strings.ToLower(w.Term), Severity: string(sev)})
	}
}

// ScanResult lists the distinct terms found and the effective
// severity after escalation.
type ScanResult struct {
	Matches  []string
	Severity signature.Severity
}

// Scan finds sensitive terms in the content. Matching three or more
// distinct terms escalates the effective severity one step.
func (wl *WordList) Scan(content string) (ScanResult, bool) {
	lower := strings.ToLower(content)
	var res ScanResult
	for _, w := range wl.terms {
		if strings.Contains(lower, w.Term) {
			res.Matches = append(res.Matches, w.Term)
			if res.Severity == "" || signature.Severity(w.Severity).Exceeds(res.Severity) {
				res.Severity = signature.Severity(w.Severity)
			}
		}
	}
	if len(res.Matches) == 0 {
		return ScanResult{}, false
	}
	if len(res.Matches) >= 3 {
		res.Severity = escalate(res.Severity)
	}
	return res, true
}

func escalate(s signature.Severity) signature.Severity {
	switch s {
	case signature.SeverityLow:
		return signature.SeverityMedium
	case signature.SeverityMedium:
		return signature.SeverityHigh
	default:
		return signature.SeverityCritical
	}
}
