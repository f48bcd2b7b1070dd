// Package moderation gates user comments: structural validation,
// sensitive-term scanning, spam scoring, rate limiting, and the
// review queue with commenter reputation feedback.
package moderation

import "time"

// Status is the terminal state of a moderated comment.
type Status string

const (
	StatusApproved      Status = "APPROVED"
	StatusBlocked       Status = "BLOCKED"
	StatusPendingReview Status = "PENDING_REVIEW"
)

// Comment is the submission under moderation.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Email     string    `json:"email,omitempty"`
	Content   string    `json:"content"`
	Identity  string    `json:"identity"`
	Submitted time.Time `json:"submitted"`
}

// Result is the gate's decision with every reason that contributed.
type Result struct {
	Status     Status   `json:"status"`
	Reasons    []string `json:"reasons,omitempty"`
	SpamScore  int      `json:"spam_score"`
	Confidence string   `json:"confidence"`
}
