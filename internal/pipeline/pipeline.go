// Package pipeline orchestrates request inspection: honeypot check,
// signature matching, ledger updates, counter-measures, and evidence
// capture, producing a single verdict per request.
package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/blogshield/blogshield/internal/evidence"
	"github.com/blogshield/blogshield/internal/geoip"
	"github.com/blogshield/blogshield/internal/honeypot"
	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/measures"
	"github.com/blogshield/blogshield/internal/metrics"
	"github.com/blogshield/blogshield/internal/moderation"
	"github.com/blogshield/blogshield/internal/ratewindow"
	"github.com/blogshield/blogshield/internal/signature"
	"log/slog"
)

// Verdict is the pipeline's answer for one request.
type Verdict string

const (
	VerdictAllow            Verdict = "ALLOW"
	VerdictAllowWithLogging Verdict = "ALLOW_WITH_LOGGING"
	VerdictReject           Verdict = "REJECT"
	VerdictServeHoneypot    Verdict = "SERVE_HONEYPOT"
)

const (
	requestRateLimit     = 100
	requestRateWindow    = time.Minute
	loginFailureLimit    = 10
	loginFailureWindow   = time.Hour
	blockedResponseCode  = "IP_BLOCKED"
	blockedResponseError = "access temporarily blocked"
)

// Request is the inspected view of one inbound request.
type Request struct {
	Identity string
	Method   string
	URL      string
	Body     string
	Headers  map[string]string
}

// path strips the query string for honeypot and probe matching.
func (r Request) path() string {
	if u, err := url.Parse(r.URL); err == nil {
		return u.Path
	}
	return r.URL
}

// view is the matcher's view. The URL is percent-decoded so encoded
// payloads cannot slip past the signatures.
func (r Request) view() signature.RequestView {
	u := r.URL
	if dec, err := url.QueryUnescape(u); err == nil {
		u = dec
	}
	return signature.RequestView{
		Method:  r.Method,
		URL:     u,
		Body:    r.Body,
		Headers: r.Headers,
	}
}

// Decision is the verdict plus everything decided along the way.
type Decision struct {
	Verdict    Verdict             `json:"verdict"`
	StatusCode int                 `json:"status_code,omitempty"`
	Body       string              `json:"body,omitempty"`
	Code       string              `json:"code,omitempty"`
	Findings   []signature.Finding `json:"findings,omitempty"`
	Measures   []measures.Measure  `json:"measures,omitempty"`
}

// Inspector runs the full detection pipeline.
type Inspector struct {
	matcher   *signature.Matcher
	honeypots *honeypot.Registry
	store     *ledger.Store
	engine    *measures.Engine
	evidence  evidence.Store
	geo       *geoip.Client
	gate      *moderation.Gate
	queue     *moderation.Queue
	requests  ratewindow.Window
	logins    ratewindow.Window
	reqLimit  int
	loginLim  int
	minSev    signature.Severity
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Config carries the Inspector's collaborators.
type Config struct {
	Matcher   *signature.Matcher
	Honeypots *honeypot.Registry
	Ledger    *ledger.Store
	Engine    *measures.Engine
	Evidence  evidence.Store
	Geo       *geoip.Client
	Gate      *moderation.Gate
	Queue     *moderation.Queue
	Requests  ratewindow.Window
	Logins    ratewindow.Window
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// RequestLimit and LoginLimit override the standard thresholds
	// when positive.
	RequestLimit int
	LoginLimit   int

	// EvidenceMinSeverity drops evidence records for findings below
	// this level. Empty records everything.
	EvidenceMinSeverity signature.Severity
}

// New wires an Inspector. Absent rate windows default to in-process
// sliding windows at the standard thresholds.
func New(cfg Config) *Inspector {
	if cfg.Requests == nil {
		cfg.Requests = ratewindow.NewMemory(requestRateWindow)
	}
	if cfg.Logins == nil {
		cfg.Logins = ratewindow.NewMemory(loginFailureWindow)
	}
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = requestRateLimit
	}
	if cfg.LoginLimit <= 0 {
		cfg.LoginLimit = loginFailureLimit
	}
	return &Inspector{
		matcher:   cfg.Matcher,
		honeypots: cfg.Honeypots,
		store:     cfg.Ledger,
		engine:    cfg.Engine,
		evidence:  cfg.Evidence,
		geo:       cfg.Geo,
		gate:      cfg.Gate,
		queue:     cfg.Queue,
		requests:  cfg.Requests,
		logins:    cfg.Logins,
		reqLimit:  cfg.RequestLimit,
		loginLim:  cfg.LoginLimit,
		minSev:    cfg.EvidenceMinSeverity,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Inspect runs one request through the pipeline and returns the
// verdict. Evidence persistence and geolocation never delay it.
func (i *Inspector) Inspect(ctx context.Context, req Request) Decision {
	start := time.Now()
	defer func() {
		i.metrics.InspectDuration.Observe(time.Since(start).Seconds())
	}()
	i.metrics.RequestsInspected.WithLabelValues(req.Method).Inc()

	if i.store.IsBlocked(req.Identity) {
		return i.reject(req)
	}

	if f, hit := i.honeypots.Check(req.Identity, req.path()); hit {
		i.metrics.HoneypotHits.Inc()
		ms := i.processFinding(ctx, req, f)
		return i.verdictFor(VerdictServeHoneypot, req, []signature.Finding{f}, ms)
	}

	findings := i.matcher.Match(req.Identity, req.view())

	if n, err := i.requests.Hit(ctx, req.Identity); err != nil {
		i.logger.Error("request rate window unavailable", "identity", req.Identity, "error", err)
	} else if n > i.reqLimit {
		findings = append(findings, signature.Finding{
			Identity:  req.Identity,
			Type:      signature.Scanning,
			Severity:  signature.SeverityOf(signature.Scanning),
			Pattern:   "request-rate",
			Excerpt:   req.URL,
			Source:    "rate",
			Timestamp: time.Now(),
		})
	}

	var applied []measures.Measure
	for _, f := range findings {
		applied = append(applied, i.processFinding(ctx, req, f)...)
	}

	switch {
	case len(findings) > 0 && i.store.IsBlocked(req.Identity):
		d := i.reject(req)
		d.Findings = findings
		d.Measures = applied
		return d
	case len(findings) > 0 && i.engine.ShouldRedirect(req.Identity):
		return i.verdictFor(VerdictServeHoneypot, req, findings, applied)
	case len(findings) > 0:
		return i.verdictFor(VerdictAllowWithLogging, req, findings, applied)
	default:
		return i.verdictFor(VerdictAllow, req, nil, nil)
	}
}

// RecordLoginFailure feeds an authentication failure into the sliding
// window; crossing the hourly threshold registers a brute-force
// finding with the full measure and evidence path.
func (i *Inspector) RecordLoginFailure(ctx context.Context, identity, username string) {
	n, err := i.logins.Hit(ctx, identity)
	if err != nil {
		i.logger.Error("login failure window unavailable", "identity", identity, "error", err)
		return
	}
	if n < i.loginLim {
		return
	}
	f := signature.Finding{
		Identity:  identity,
		Type:      signature.BruteForce,
		Severity:  signature.SeverityOf(signature.BruteForce),
		Pattern:   "login-failures",
		Excerpt:   username,
		Source:    "auth",
		Timestamp: time.Now(),
	}
	i.processFinding(ctx, Request{Identity: identity, Method: "POST", URL: "/login"}, f)
}

// Moderate routes a comment through the moderation gate.
func (i *Inspector) Moderate(ctx context.Context, c moderation.Comment) moderation.Result {
	res := i.gate.Moderate(ctx, c)
	i.metrics.CommentsModerated.WithLabelValues(string(res.Status)).Inc()
	i.metrics.ModerationQueueLen.Set(float64(i.queue.Len()))
	return res
}

// processFinding updates the ledger, decides measures, and captures
// evidence for one finding.
func (i *Inspector) processFinding(ctx context.Context, req Request, f signature.Finding) []measures.Measure {
	i.metrics.FindingsDetected.WithLabelValues(string(f.Type), string(f.Severity)).Inc()

	meta := ledger.RequestMeta{
		Path: req.path(),
	}
	if req.Headers != nil {
		meta.UserAgent = req.view().Header("user-agent")
		meta.Fingerprint = ledger.Fingerprint(req.Headers)
	}
	profile := i.store.Record(req.Identity, f, meta)

	applied := i.engine.Decide(profile, f)
	for _, m := range applied {
		i.metrics.MeasuresApplied.WithLabelValues(string(m.Action)).Inc()
	}

	i.captureEvidence(ctx, req, f, profile)

	stats := i.store.Summarize()
	i.metrics.TrackedIdentities.Set(float64(stats.TrackedIdentities))
	i.metrics.BlockedIdentities.Set(float64(stats.BlockedIdentities))

	i.logger.Warn("attack detected",
		"identity", req.Identity,
		"attack_type", string(f.Type),
		"severity", string(f.Severity),
		"threat_level", string(profile.Level),
		"threat_score", profile.Score,
		"total_attacks", profile.TotalAttacks)
	return applied
}

// captureEvidence builds and persists the evidence record off the
// critical path. Geolocation runs inside the same goroutine so a slow
// lookup can never delay the verdict.
func (i *Inspector) captureEvidence(ctx context.Context, req Request, f signature.Finding, profile ledger.ProfileView) {
	if i.minSev != "" && i.minSev.Exceeds(f.Severity) {
		return
	}
	headers, _ := json.Marshal(req.Headers)
	rec := evidence.Record{
		ID:          evidence.NewID(req.Identity, f.Timestamp),
		Timestamp:   f.Timestamp.UTC().Format(time.RFC3339),
		Day:         evidence.DayOf(f.Timestamp),
		IP:          req.Identity,
		AttackType:  string(f.Type),
		Severity:    string(f.Severity),
		Method:      req.Method,
		URL:         req.URL,
		Headers:     string(headers),
		BodyExcerpt: truncate(req.Body, 500),
		Pattern:     f.Pattern,
		Excerpt:     f.Excerpt,
		UserAgent:   req.view().Header("user-agent"),
		Fingerprint: profile.Fingerprint,
		ThreatScore: profile.Score,
		ThreatLevel: string(profile.Level),
	}

	go func() {
		if i.geo != nil {
			loc := i.geo.Lookup(context.WithoutCancel(ctx), req.Identity)
			rec.Country = loc.Country
			rec.City = loc.City
			rec.ISP = loc.ISP
		}
		i.evidence.Log(rec)
	}()
}

func (i *Inspector) reject(req Request) Decision {
	i.metrics.VerdictsIssued.WithLabelValues(string(VerdictReject)).Inc()
	body, _ := json.Marshal(map[string]string{
		"error": blockedResponseError,
		"code":  blockedResponseCode,
	})
	i.logger.Info("request rejected", "identity", req.Identity, "url", req.URL)
	return Decision{
		Verdict:    VerdictReject,
		StatusCode: 429,
		Body:       string(body),
		Code:       blockedResponseCode,
	}
}

func (i *Inspector) verdictFor(v Verdict, req Request, findings []signature.Finding, applied []measures.Measure) Decision {
	i.metrics.VerdictsIssued.WithLabelValues(string(v)).Inc()
	d := Decision{Verdict: v, Findings: findings, Measures: applied}
	if v == VerdictServeHoneypot {
		d.StatusCode = 200
		d.Body = honeypot.Decoy(req.path())
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
