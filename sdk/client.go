// Package sdk provides a Go client for the blogshield server.
//
// Basic usage:
//
//	c := sdk.NewClient("http://localhost:8080")
//	res, err := c.SubmitComment(ctx, sdk.CommentRequest{
//	    Author:  "alice",
//	    Content: "Great article!",
//	})
//
// Blog applications report failed logins so blogshield can track
// brute-force activity:
//
//	err := c.ReportLoginFailure(ctx, "203.0.113.7", "admin")
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CommentRequest is sent to POST /comments.
type CommentRequest struct {
	Author  string `json:"author"`
	Email   string `json:"email,omitempty"`
	Content string `json:"content"`
}

// CommentResult is the moderation outcome for one comment.
type CommentResult struct {
	Status     string   `json:"status"` // APPROVED, BLOCKED, PENDING_REVIEW
	Reasons    []string `json:"reasons,omitempty"`
	SpamScore  int      `json:"spam_score"`
	Confidence string   `json:"confidence"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// BlockedError is returned when the server rejects the caller as a
// blocked identity.
type BlockedError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blogshield: %s (HTTP %d, code=%s)", e.Message, e.StatusCode, e.Code)
}

// Client talks to a blogshield server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SubmitComment runs a comment through moderation. The result carries
// the moderation status for any HTTP outcome except a block of the
// calling identity, which surfaces as a BlockedError.
func (c *Client) SubmitComment(ctx context.Context, req CommentRequest) (*CommentResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/comments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		blocked := &BlockedError{StatusCode: httpResp.StatusCode}
		if err := json.NewDecoder(httpResp.Body).Decode(blocked); err != nil {
			return nil, fmt.Errorf("decoding response (HTTP %d): %w", httpResp.StatusCode, err)
		}
		return nil, blocked
	}

	var res CommentResult
	if err := json.NewDecoder(httpResp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	return &res, nil
}

// ReportLoginFailure feeds one failed login into the brute-force
// tracker. Identity is the client address the failure came from.
func (c *Client) ReportLoginFailure(ctx context.Context, identity, username string) error {
	body, err := json.Marshal(map[string]string{
		"identity": identity,
		"username": username,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/failures", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("blogshield: HTTP %d reporting login failure", httpResp.StatusCode)
	}
	return nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer httpResp.Body.Close()

	var resp HealthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &resp, nil
}
