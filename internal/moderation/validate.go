package moderation

import (
	"regexp"
	"strings"

	"github.com/blogshield/blogshield/internal/signature"
)

const (
	minContentLen = 2
	maxContentLen = 1000
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate runs the structural checks. An empty result means the
// comment is well formed; otherwise every failed check is listed.
func Validate(c Comment) []string {
	var errs []string

	if strings.TrimSpace(c.Author) == "" {
		errs = append(errs, "author is required")
	}
	content := strings.TrimSpace(c.Content)
	if content == "" {
		errs = append(errs, "content is required")
	} else {
		if len([]rune(content)) < minContentLen {
			errs = append(errs, "content too short")
		}
		if len([]rune(content)) > maxContentLen {
			errs = append(errs, "content too long")
		}
	}
	if signature.TextMatches(signature.XSS, c.Content) {
		errs = append(errs, "content contains script markup")
	}
	if signature.TextMatches(signature.SQLInjection, c.Content) {
		errs = append(errs, "content contains sql fragments")
	}
	if c.Email != "" && !emailPattern.MatchString(c.Email) {
		errs = append(errs, "invalid email format")
	}
	return errs
}
