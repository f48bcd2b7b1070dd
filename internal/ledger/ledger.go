// Package ledger maintains the per-identity threat profiles: rolling
// attack counters, bounded event history, and the block state the
// counter-measure engine acts on. All mutation of one profile is
// serialized behind that profile's own lock; different identities
// proceed concurrently.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/internal/threat"
)

const (
	historyCap = 100
	// Retention horizon for idle profiles and their history.
	defaultRetention = 30 * 24 * time.Hour
)

// RequestMeta carries the request attributes recorded alongside a
// finding: they feed the profile's user-agent/path sets and the
// digital fingerprint.
type RequestMeta struct {
	UserAgent   string
	Path        string
	Fingerprint string
}

// profile is the mutable per-identity record. Guarded by mu.
type profile struct {
	mu sync.Mutex

	ip               string
	firstSeen        time.Time
	lastSeen         time.Time
	countsByType     map[signature.AttackType]int
	totalAttacks     int
	userAgents       map[string]struct{}
	paths            map[string]struct{}
	honeypotHits     int
	level            threat.Level
	score            int
	blocked          bool
	blockExpiry      time.Time
	legalWarningSent bool
	fingerprint      string
	history          *findingRing
}

// ProfileView is an immutable snapshot of a profile.
type ProfileView struct {
	IP               string                       `json:"ip"`
	FirstSeen        time.Time                    `json:"first_seen"`
	LastSeen         time.Time                    `json:"last_seen"`
	CountsByType     map[signature.AttackType]int `json:"counts_by_type"`
	TotalAttacks     int                          `json:"total_attacks"`
	DistinctTypes    []signature.AttackType       `json:"distinct_types"`
	UserAgents       []string                     `json:"user_agents"`
	Paths            []string                     `json:"paths"`
	HoneypotHits     int                          `json:"honeypot_hits"`
	Level            threat.Level                 `json:"level"`
	Score            int                          `json:"score"`
	Blocked          bool                         `json:"blocked"`
	BlockExpiry      time.Time                    `json:"block_expiry,omitempty"`
	LegalWarningSent bool                         `json:"legal_warning_sent"`
	Fingerprint      string                       `json:"fingerprint,omitempty"`
	History          []signature.Finding          `json:"history,omitempty"`
}

// Store holds all identity profiles.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*profile
	now      func() time.Time
}

// NewStore creates an empty ledger.
func NewStore() *Store {
	return &Store{profiles: make(map[string]*profile), now: time.Now}
}

// get returns the profile for identity, creating it on first sight.
func (s *Store) get(identity string) *profile {
	s.mu.RLock()
	p, ok := s.profiles[identity]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.profiles[identity]; ok {
		return p
	}
	now := s.now()
	p = &profile{
		ip:           identity,
		firstSeen:    now,
		lastSeen:     now,
		countsByType: make(map[signature.AttackType]int),
		userAgents:   make(map[string]struct{}),
		paths:        make(map[string]struct{}),
		level:        threat.LevelLow,
		history:      newFindingRing(historyCap),
	}
	s.profiles[identity] = p
	return p
}

// Record upserts the identity's profile with a new finding and returns
// the updated snapshot. The threat level is recomputed synchronously.
func (s *Store) Record(identity string, f signature.Finding, meta RequestMeta) ProfileView {
	p := s.get(identity)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := s.now()
	p.lastSeen = now
	p.countsByType[f.Type]++
	p.totalAttacks++
	if f.Type == signature.HoneypotAccess {
		p.honeypotHits++
	}
	if meta.UserAgent != "" {
		p.userAgents[meta.UserAgent] = struct{}{}
	}
	if meta.Path != "" {
		p.paths[meta.Path] = struct{}{}
	}
	if meta.Fingerprint != "" {
		p.fingerprint = meta.Fingerprint
	}
	p.history.push(f)
	p.recomputeLocked(now)

	return p.viewLocked(true)
}

// recomputeLocked rescores the profile. Caller holds p.mu.
func (p *profile) recomputeLocked(now time.Time) {
	types := make([]signature.AttackType, 0, len(p.countsByType))
	for t := range p.countsByType {
		types = append(types, t)
	}
	p.level, p.score = threat.Score(threat.Input{
		TotalAttacks:  p.totalAttacks,
		DistinctTypes: types,
		HoneypotHits:  p.honeypotHits,
		FirstSeen:     p.firstSeen,
		Now:           now,
	})
}

// CountRecent counts history entries of the given kind newer than the
// window. O(history size), bounded by the 100-entry cap.
func (s *Store) CountRecent(identity string, kind signature.AttackType, window time.Duration) int {
	s.mu.RLock()
	p, ok := s.profiles[identity]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := s.now().Add(-window)
	n := 0
	p.history.each(func(f signature.Finding) bool {
		if f.Type == kind && f.Timestamp.After(cutoff) {
			n++
		}
		return true
	})
	return n
}

// IsOverThreshold reports whether the identity has more than threshold
// findings of the given kind inside the window.
func (s *Store) IsOverThreshold(identity string, kind signature.AttackType, window time.Duration, threshold int) bool {
	return s.CountRecent(identity, kind, window) > threshold
}

// Block marks the identity blocked until expiry.
func (s *Store) Block(identity string, expiry time.Time) {
	p := s.get(identity)
	p.mu.Lock()
	p.blocked = true
	p.blockExpiry = expiry
	p.mu.Unlock()
}

// Unblock clears the identity's block flag.
func (s *Store) Unblock(identity string) {
	s.mu.RLock()
	p, ok := s.profiles[identity]
	s.mu.RUnlock()
	if !ok {
		return
	}
	p.mu.Lock()
	p.blocked = false
	p.blockExpiry = time.Time{}
	p.mu.Unlock()
}

// IsBlocked reports whether the identity is currently blocked. An
// expired block is cleared on read.
func (s *Store) IsBlocked(identity string) bool {
	s.mu.RLock()
	p, ok := s.profiles[identity]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.blocked {
		return false
	}
	if !p.blockExpiry.IsZero() && s.now().After(p.blockExpiry) {
		p.blocked = false
		p.blockExpiry = time.Time{}
		return false
	}
	return true
}

// MarkLegalWarningSent records the one-time legal warning. Returns
// false if it was already sent.
func (s *Store) MarkLegalWarningSent(identity string) bool {
	p := s.get(identity)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.legalWarningSent {
		return false
	}
	p.legalWarningSent = true
	return true
}

// Get returns the identity's snapshot including history.
func (s *Store) Get(identity string) (ProfileView, bool) {
	s.mu.RLock()
	p, ok := s.profiles[identity]
	s.mu.RUnlock()
	if !ok {
		return ProfileView{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked(true), true
}

// All returns snapshots of every profile without history, most
// recently seen first.
func (s *Store) All() []ProfileView {
	s.mu.RLock()
	profiles := make([]*profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	s.mu.RUnlock()

	views := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		p.mu.Lock()
		views = append(views, p.viewLocked(false))
		p.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].LastSeen.After(views[j].LastSeen)
	})
	return views
}

// Len returns the number of tracked identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Sweep evicts profiles idle past the retention horizon and trims the
// remaining histories to it. Safe to re-run at any time.
func (s *Store) Sweep(retention time.Duration) int {
	if retention <= 0 {
		retention = defaultRetention
	}
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	var stale []string
	for ip, p := range s.profiles {
		p.mu.Lock()
		idle := p.lastSeen.Before(cutoff)
		p.mu.Unlock()
		if idle {
			stale = append(stale, ip)
		}
	}
	for _, ip := range stale {
		delete(s.profiles, ip)
	}
	remaining := make([]*profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		remaining = append(remaining, p)
	}
	s.mu.Unlock()

	for _, p := range remaining {
		p.mu.Lock()
		p.history.retain(func(f signature.Finding) bool {
			return f.Timestamp.After(cutoff)
		})
		p.mu.Unlock()
	}
	return len(stale)
}

// viewLocked snapshots the profile. Caller holds p.mu.
func (p *profile) viewLocked(withHistory bool) ProfileView {
	counts := make(map[signature.AttackType]int, len(p.countsByType))
	types := make([]signature.AttackType, 0, len(p.countsByType))
	for t, n := range p.countsByType {
		counts[t] = n
		types = append(types, t)
	}
	agents := make([]string, 0, len(p.userAgents))
	for ua := range p.userAgents {
		agents = append(agents, ua)
	}
	paths := make([]string, 0, len(p.paths))
	for path := range p.paths {
		paths = append(paths, path)
	}
	v := ProfileView{
		IP:               p.ip,
		FirstSeen:        p.firstSeen,
		LastSeen:         p.lastSeen,
		CountsByType:     counts,
		TotalAttacks:     p.totalAttacks,
		DistinctTypes:    types,
		UserAgents:       agents,
		Paths:            paths,
		HoneypotHits:     p.honeypotHits,
		Level:            p.level,
		Score:            p.score,
		Blocked:          p.blocked,
		BlockExpiry:      p.blockExpiry,
		LegalWarningSent: p.legalWarningSent,
		Fingerprint:      p.fingerprint,
	}
	if withHistory {
		v.History = p.history.snapshot()
	}
	return v
}

// Fingerprint hashes the stable header tuple that identifies a client
// beyond its IP.
func Fingerprint(headers map[string]string) string {
	get := func(name string) string {
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}
	tuple := strings.Join([]string{
		get("user-agent"),
		get("accept-language"),
		get("accept-encoding"),
		get("connection"),
		get("dnt"),
		get("upgrade-insecure-requests"),
	}, "|")
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}
