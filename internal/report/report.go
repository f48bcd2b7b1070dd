// Package report builds periodic aggregate views over the threat
// ledger and evidence store: attack counts, top offenders, geography,
// and operator recommendations.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blogshield/blogshield/internal/evidence"
	"github.com/blogshield/blogshield/internal/geoip"
	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/safefile"
	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/internal/threat"
)

const topIdentityCount = 10

// TopIdentity is one entry of the worst-offender list.
type TopIdentity struct {
	IP           string       `json:"ip"`
	Score        int          `json:"score"`
	Level        threat.Level `json:"level"`
	TotalAttacks int          `json:"total_attacks"`
	Blocked      bool         `json:"blocked"`
	Country      string       `json:"country,omitempty"`
}

// Report is one aggregate snapshot.
type Report struct {
	GeneratedAt     time.Time                    `json:"generated_at"`
	Period          string                       `json:"period"`
	TrackedCount    int                          `json:"tracked_identities"`
	BlockedCount    int                          `json:"blocked_identities"`
	TotalAttacks    int                          `json:"total_attacks"`
	HoneypotHits    int                          `json:"honeypot_hits"`
	CountsByType    map[signature.AttackType]int `json:"counts_by_type"`
	CountsByLevel   map[threat.Level]int         `json:"counts_by_level"`
	TopIdentities   []TopIdentity                `json:"top_identities"`
	CountsByCountry map[string]int               `json:"counts_by_country,omitempty"`
	EvidenceByDay   map[string]int               `json:"evidence_by_day,omitempty"`
	Recommendations []string                     `json:"recommendations,omitempty"`
}

// Generator builds reports from the live stores.
type Generator struct {
	store    *ledger.Store
	evidence evidence.Store
	geo      *geoip.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerator wires a report generator. The geo client is optional.
func NewGenerator(store *ledger.Store, ev evidence.Store, geo *geoip.Client, logger *slog.Logger) *Generator {
	return &Generator{store: store, evidence: ev, geo: geo, logger: logger, now: time.Now}
}

// Generate builds a report for the named period.
func (g *Generator) Generate(ctx context.Context, period string) Report {
	stats := g.store.Summarize()
	r := Report{
		GeneratedAt:   g.now(),
		Period:        period,
		TrackedCount:  stats.TrackedIdentities,
		BlockedCount:  stats.BlockedIdentities,
		TotalAttacks:  stats.TotalAttacks,
		HoneypotHits:  stats.HoneypotHits,
		CountsByType:  stats.CountsByType,
		CountsByLevel: stats.CountsByLevel,
	}

	profiles := g.store.All()
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Score != profiles[j].Score {
			return profiles[i].Score > profiles[j].Score
		}
		return profiles[i].TotalAttacks > profiles[j].TotalAttacks
	})
	if len(profiles) > topIdentityCount {
		profiles = profiles[:topIdentityCount]
	}
	byCountry := make(map[string]int)
	for _, p := range profiles {
		top := TopIdentity{
			IP:           p.IP,
			Score:        p.Score,
			Level:        p.Level,
			TotalAttacks: p.TotalAttacks,
			Blocked:      p.Blocked,
		}
		if g.geo != nil {
			loc := g.geo.Lookup(ctx, p.IP)
			top.Country = loc.Country
			byCountry[loc.Country] += p.TotalAttacks
		}
		r.TopIdentities = append(r.TopIdentities, top)
	}
	if len(byCountry) > 0 {
		r.CountsByCountry = byCountry
	}

	if g.evidence != nil {
		since := evidence.DayOf(g.now().AddDate(0, 0, -7))
		byDay, err := g.evidence.CountByDay(since)
		if err != nil {
			g.logger.Error("evidence aggregation failed", "error", err)
		} else if len(byDay) > 0 {
			r.EvidenceByDay = byDay
		}
	}

	r.Recommendations = recommendations(r)
	return r
}

// recommendations derives operator guidance from the aggregates.
func recommendations(r Report) []string {
	var recs []string
	if r.CountsByType[signature.SQLInjection] > 0 {
		recs = append(recs, "SQL injection attempts observed: verify parameterized queries on all database access")
	}
	if r.CountsByType[signature.BruteForce] > 0 {
		recs = append(recs, "Brute-force login activity observed: consider stronger lockout or MFA")
	}
	if r.HoneypotHits > 0 {
		recs = append(recs, "Honeypot routes were probed: attackers are mapping the admin surface")
	}
	if r.CountsByLevel[threat.LevelCritical] > 0 {
		recs = append(recs, fmt.Sprintf("%d identities at CRITICAL threat: review their evidence records", r.CountsByLevel[threat.LevelCritical]))
	}
	if r.TotalAttacks == 0 {
		recs = append(recs, "No attack activity in this period")
	}
	return recs
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return data, nil
}

// Text renders the report for terminals and log archives.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Security Report (%s)\n", r.Period)
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Tracked identities: %d (%d blocked)\n", r.TrackedCount, r.BlockedCount)
	fmt.Fprintf(&b, "Total attacks: %d\n", r.TotalAttacks)
	fmt.Fprintf(&b, "Honeypot hits: %d\n", r.HoneypotHits)

	if len(r.CountsByType) > 0 {
		b.WriteString("\nAttacks by type:\n")
		types := make([]string, 0, len(r.CountsByType))
		for t := range r.CountsByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "  %-20s %d\n", t, r.CountsByType[signature.AttackType(t)])
		}
	}

	if len(r.TopIdentities) > 0 {
		b.WriteString("\nTop identities:\n")
		for i, top := range r.TopIdentities {
			blocked := ""
			if top.Blocked {
				blocked = " [blocked]"
			}
			country := ""
			if top.Country != "" {
				country = " " + top.Country
			}
			fmt.Fprintf(&b, "  %2d. %-15s score %3d %s (%d attacks)%s%s\n",
				i+1, top.IP, top.Score, top.Level, top.TotalAttacks, country, blocked)
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	return b.String()
}

// Runner regenerates reports on a fixed interval until the context
// ends. Each report is logged; the latest is retained for inspection.
type Runner struct {
	gen       *Generator
	interval  time.Duration
	period    string
	outputDir string
	logger    *slog.Logger

	mu     sync.Mutex
	latest Report
}

// NewRunner creates a periodic report runner. When outputDir is
// non-empty each report is also written there as JSON and text.
func NewRunner(gen *Generator, interval time.Duration, period, outputDir string, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{gen: gen, interval: interval, period: period, outputDir: outputDir, logger: logger}
}

// Run blocks, generating a report every interval, until ctx ends.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep := r.gen.Generate(ctx, r.period)
			r.mu.Lock()
			r.latest = rep
			r.mu.Unlock()
			if r.outputDir != "" {
				if err := r.write(rep); err != nil {
					r.logger.Warn("writing report files", "error", err)
				}
			}
			r.logger.Info("periodic report generated",
				"period", r.period,
				"total_attacks", rep.TotalAttacks,
				"blocked", rep.BlockedCount)
		}
	}
}

func (r *Runner) write(rep Report) error {
	stamp := rep.GeneratedAt.UTC().Format("20060102-150405")
	base := filepath.Join(r.outputDir, fmt.Sprintf("report-%s-%s", r.period, stamp))
	data, err := rep.JSON()
	if err != nil {
		return err
	}
	if err := safefile.WriteFileAtomic(base+".json", data, 0o600); err != nil {
		return err
	}
	return safefile.WriteFileAtomic(base+".txt", []byte(rep.Text()), 0o600)
}

// Latest returns the most recently generated report.
func (r *Runner) Latest() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}
