package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/blogshield/blogshield/internal/evidence"
	"github.com/blogshield/blogshield/internal/moderation"
)

const maxCommentBody = 64 * 1024

// handleComment runs a submitted comment through the moderation gate.
func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Author  string `json:"author"`
		Email   string `json:"email"`
		Content string `json:"content"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommentBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	res := s.inspector.Moderate(r.Context(), moderation.Comment{
		Author:    body.Author,
		Email:     body.Email,
		Content:   body.Content,
		Identity:  clientIP(r),
		Submitted: time.Now(),
	})

	status := http.StatusCreated
	switch res.Status {
	case moderation.StatusPendingReview:
		status = http.StatusAccepted
	case moderation.StatusBlocked:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// handleLoginFailure is the ingest point for the blog application to
// report failed logins. The identity defaults to the caller when the
// application does not forward one.
func (s *Server) handleLoginFailure(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
		Username string `json:"username"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommentBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if body.Identity == "" {
		body.Identity = clientIP(r)
	}

	s.inspector.RecordLoginFailure(r.Context(), body.Identity, body.Username)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// handleProfiles lists tracked identities, worst first by recency.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.store.All()

	if r.URL.Query().Get("blocked") == "true" {
		filtered := profiles[:0]
		for _, p := range profiles {
			if p.Blocked {
				filtered = append(filtered, p)
			}
		}
		profiles = filtered
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(profiles) {
		profiles = profiles[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(profiles),
		"profiles": profiles,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	p, ok := s.store.Get(ip)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown identity"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleEvidence queries the evidence store with optional filters.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.evidence.Query(evidence.QueryOpts{
		IP:         q.Get("ip"),
		AttackType: q.Get("type"),
		Severity:   q.Get("severity"),
		Day:        q.Get("day"),
		Since:      q.Get("since"),
		Limit:      queryInt(r, "limit", 100),
	})
	if err != nil {
		s.logger.Error("evidence query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

// handleEvidenceRecord renders a single record as the plain-text
// evidence document.
func (s *Server) handleEvidenceRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := s.evidence.Query(evidence.QueryOpts{ID: id, Limit: 1})
	if err != nil {
		s.logger.Error("evidence query failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown record"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(evidence.Report(records[0])))
}

// handleReport serves the latest periodic report, generating one on
// demand if none has run yet.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep := s.reporter.Latest()
	if rep.GeneratedAt.IsZero() {
		rep = s.reports.Generate(r.Context(), s.cfg.Reports.Period)
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleMeasures lists recently applied counter-measures, newest last.
func (s *Server) handleMeasures(w http.ResponseWriter, r *http.Request) {
	applied := s.measures.History(queryInt(r, "limit", 100))
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(applied),
		"measures": applied,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	items := s.queue.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) resolveQueue(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		moderator := r.Header.Get("X-Moderator")
		if moderator == "" {
			moderator = "admin"
		}

		item, err := s.gate.Resolve(id, moderator, approve)
		if err != nil {
			if errors.Is(err, moderation.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown queue item"})
				return
			}
			s.logger.Error("queue resolve failed", "id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolve failed"})
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
