package moderation

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultReputation = 50
	historyLimit      = 50

	deltaApprove = 2
	deltaReject  = -5
)

const reputationSchema = `
CREATE TABLE IF NOT EXISTS reputation (
	identity TEXT PRIMARY KEY,
	score INTEGER NOT NULL,
	first_seen TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reputation_history (
	identity TEXT NOT NULL,
	delta INTEGER NOT NULL,
	reason TEXT NOT NULL,
	at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rep_history_identity ON reputation_history(identity, at);
`

// HistoryEntry is one recorded score adjustment.
type HistoryEntry struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
	At     string `json:"at"`
}

// ReputationStore persists per-identity commenter scores with a
// bounded adjustment history.
type ReputationStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// NewReputationStore opens (or creates) the reputation database.
func NewReputationStore(dbPath string) (*ReputationStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening reputation db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(reputationSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &ReputationStore{db: db, now: time.Now}, nil
}

// Score returns the identity's current score and whether the identity
// has been seen before. Unseen identities report the default score.
func (s *ReputationStore) Score(identity string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var score int
	err := s.db.QueryRow("SELECT score FROM reputation WHERE identity = ?", identity).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultReputation, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading reputation: %w", err)
	}
	return score, true, nil
}

// Adjust applies a delta to the identity's score, clamped to [0,100],
// and records the reason. First contact seeds the default score.
func (s *ReputationStore) Adjust(identity string, delta int, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Format(time.RFC3339)

	var score int
	err := s.db.QueryRow("SELECT score FROM reputation WHERE identity = ?", identity).Scan(&score)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		score = defaultReputation
		if _, err := s.db.Exec(
			"INSERT INTO reputation (identity, score, first_seen, updated_at) VALUES (?, ?, ?, ?)",
			identity, score, now, now); err != nil {
			return 0, fmt.Errorf("seeding reputation: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("reading reputation: %w", err)
	}

	score += delta
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	if _, err := s.db.Exec(
		"UPDATE reputation SET score = ?, updated_at = ? WHERE identity = ?",
		score, now, identity); err != nil {
		return 0, fmt.Errorf("updating reputation: %w", err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO reputation_history (identity, delta, reason, at) VALUES (?, ?, ?, ?)",
		identity, delta, reason, now); err != nil {
		return 0, fmt.Errorf("recording reputation history: %w", err)
	}
	// Bound the history to the newest entries.
	if _, err := s.db.Exec(`
		DELETE FROM reputation_history WHERE rowid IN (
			SELECT rowid FROM reputation_history WHERE identity = ?
			ORDER BY at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, identity, historyLimit); err != nil {
		return 0, fmt.Errorf("trimming reputation history: %w", err)
	}
	return score, nil
}

// History returns the identity's adjustments, newest first.
func (s *ReputationStore) History(identity string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT delta, reason, at FROM reputation_history WHERE identity = ? ORDER BY at DESC, rowid DESC",
		identity)
	if err != nil {
		return nil, fmt.Errorf("reading reputation history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Delta, &e.Reason, &e.At); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (s *ReputationStore) Close() error {
	return s.db.Close()
}
