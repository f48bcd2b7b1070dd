package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/blogshield/blogshield/internal/safefile"
	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/internal/threat"
)

// maxSnapshotBytes bounds snapshot reads; anything larger is corrupt
// or hostile.
const maxSnapshotBytes = 256 << 20

// snapshotFile is the on-disk shape of a ledger snapshot.
type snapshotFile struct {
	SavedAt  string        `json:"saved_at"`
	Profiles []ProfileView `json:"profiles"`
}

// Save writes all profiles, history included, to path as JSON. The
// write goes through a temp file and rename so a crash mid-write never
// leaves a truncated snapshot.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	profiles := make([]*profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	s.mu.RUnlock()

	snap := snapshotFile{SavedAt: s.now().UTC().Format("2006-01-02T15:04:05Z07:00")}
	for _, p := range profiles {
		p.mu.Lock()
		snap.Profiles = append(snap.Profiles, p.viewLocked(true))
		p.mu.Unlock()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger snapshot: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write ledger snapshot: %w", err)
	}
	return nil
}

// Load restores profiles from a snapshot written by Save. A missing
// file is not an error: the ledger simply starts empty.
func (s *Store) Load(path string) error {
	data, err := safefile.ReadFileMax(path, maxSnapshotBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read ledger snapshot: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse ledger snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range snap.Profiles {
		if v.IP == "" {
			continue
		}
		p := &profile{
			ip:               v.IP,
			firstSeen:        v.FirstSeen,
			lastSeen:         v.LastSeen,
			countsByType:     make(map[signature.AttackType]int, len(v.CountsByType)),
			totalAttacks:     v.TotalAttacks,
			userAgents:       make(map[string]struct{}, len(v.UserAgents)),
			paths:            make(map[string]struct{}, len(v.Paths)),
			honeypotHits:     v.HoneypotHits,
			level:            v.Level,
			score:            v.Score,
			blocked:          v.Blocked,
			blockExpiry:      v.BlockExpiry,
			legalWarningSent: v.LegalWarningSent,
			fingerprint:      v.Fingerprint,
			history:          newFindingRing(historyCap),
		}
		if p.level == "" {
			p.level = threat.LevelLow
		}
		for t, n := range v.CountsByType {
			p.countsByType[t] = n
		}
		for _, ua := range v.UserAgents {
			p.userAgents[ua] = struct{}{}
		}
		for _, path := range v.Paths {
			p.paths[path] = struct{}{}
		}
		for _, f := range v.History {
			p.history.push(f)
		}
		s.profiles[v.IP] = p
	}
	return nil
}

// Stats summarizes the ledger for status output and reports.
type Stats struct {
	TrackedIdentities int                          `json:"tracked_identities"`
	BlockedIdentities int                          `json:"blocked_identities"`
	TotalAttacks      int                          `json:"total_attacks"`
	CountsByType      map[signature.AttackType]int `json:"counts_by_type"`
	CountsByLevel     map[threat.Level]int         `json:"counts_by_level"`
	HoneypotHits      int                          `json:"honeypot_hits"`
}

// Summarize aggregates across all profiles.
func (s *Store) Summarize() Stats {
	st := Stats{
		CountsByType:  make(map[signature.AttackType]int),
		CountsByLevel: make(map[threat.Level]int),
	}
	for _, v := range s.All() {
		st.TrackedIdentities++
		if v.Blocked {
			st.BlockedIdentities++
		}
		st.TotalAttacks += v.TotalAttacks
		st.HoneypotHits += v.HoneypotHits
		st.CountsByLevel[v.Level]++
		for t, n := range v.CountsByType {
			st.CountsByType[t] += n
		}
	}
	return st
}
