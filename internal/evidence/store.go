// Package evidence persists captured attack records. Writes are
// asynchronous so detection never waits on storage; queries read the
// committed state directly.
package evidence

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is the persistence contract for attack evidence.
type Store interface {
	// Log enqueues a record for async writing. It never blocks.
	Log(r Record)
	// Query returns records matching the filters, newest first.
	Query(opts QueryOpts) ([]Record, error)
	// CountByDay returns record counts grouped by day partition.
	CountByDay(since string) (map[string]int, error)
	// Purge removes records older than the cutoff day. Returns the
	// number deleted.
	Purge(cutoffDay string) (int64, error)
	// Close flushes pending writes and releases the backend.
	Close() error
}

// QueryOpts holds filters for evidence queries.
type QueryOpts struct {
	ID         string
	IP         string
	AttackType string
	Severity   string
	Day        string
	Since      string
	Limit      int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS evidence (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	day TEXT NOT NULL,
	ip TEXT NOT NULL,
	attack_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	headers TEXT,
	body_excerpt TEXT,
	pattern TEXT NOT NULL,
	excerpt TEXT NOT NULL,
	user_agent TEXT,
	fingerprint TEXT,
	country TEXT,
	city TEXT,
	isp TEXT,
	threat_score INTEGER NOT NULL,
	threat_level TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_ip ON evidence(ip);
CREATE INDEX IF NOT EXISTS idx_evidence_day ON evidence(day);
CREATE INDEX IF NOT EXISTS idx_evidence_type ON evidence(attack_type);
CREATE INDEX IF NOT EXISTS idx_evidence_timestamp ON evidence(timestamp);
`

// SQLiteStore is the default file-backed evidence store.
type SQLiteStore struct {
	db      *sql.DB
	writes  chan Record
	done    chan struct{}
	pending sync.WaitGroup
	logger  *slog.Logger
}

// NewSQLiteStore opens (or creates) the evidence database.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening evidence db: %w", err)
	}

	// WAL keeps reads cheap while the write loop is busy.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		writes: make(chan Record, 256),
		done:   make(chan struct{}),
		logger: logger,
	}

	go s.writeLoop()
	return s, nil
}

// DB exposes the underlying handle for bulk tooling.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Log enqueues an evidence record for async writing.
func (s *SQLiteStore) Log(r Record) {
	s.pending.Add(1)
	select {
	case s.writes <- r:
	default:
		s.pending.Done()
		s.logger.Warn("evidence write buffer full, dropping record", "id", r.ID)
	}
}

// Query returns evidence records matching the given filters.
func (s *SQLiteStore) Query(opts QueryOpts) ([]Record, error) {
	query := "SELECT id, timestamp, day, ip, attack_type, severity, method, url, headers, body_excerpt, pattern, excerpt, user_agent, fingerprint, country, city, isp, threat_score, threat_level FROM evidence WHERE 1=1"
	var args []any

	if opts.ID != "" {
		query += " AND id = ?"
		args = append(args, opts.ID)
	}
	if opts.IP != "" {
		query += " AND ip = ?"
		args = append(args, opts.IP)
	}
	if opts.AttackType != "" {
		query += " AND attack_type = ?"
		args = append(args, opts.AttackType)
	}
	if opts.Severity != "" {
		query += " AND severity = ?"
		args = append(args, opts.Severity)
	}
	if opts.Day != "" {
		query += " AND day = ?"
		args = append(args, opts.Day)
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var headers, body, ua, fp, country, city, isp sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Day, &r.IP, &r.AttackType, &r.Severity,
			&r.Method, &r.URL, &headers, &body, &r.Pattern, &r.Excerpt,
			&ua, &fp, &country, &city, &isp, &r.ThreatScore, &r.ThreatLevel); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Headers = headers.String
		r.BodyExcerpt = body.String
		r.UserAgent = ua.String
		r.Fingerprint = fp.String
		r.Country = country.String
		r.City = city.String
		r.ISP = isp.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByDay returns per-day record counts from the given day onward.
func (s *SQLiteStore) CountByDay(since string) (map[string]int, error) {
	query := "SELECT day, COUNT(*) FROM evidence"
	var args []any
	if since != "" {
		query += " WHERE day >= ?"
		args = append(args, since)
	}
	query += " GROUP BY day"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting evidence by day: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

// Purge deletes all records in day partitions older than cutoffDay.
func (s *SQLiteStore) Purge(cutoffDay string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM evidence WHERE day < ?", cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("purging evidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging evidence: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired evidence", "records", n, "cutoff_day", cutoffDay)
	}
	return n, nil
}

// Flush blocks until every record accepted so far has been written.
func (s *SQLiteStore) Flush() {
	s.pending.Wait()
}

// Close flushes pending writes and closes the database.
func (s *SQLiteStore) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

func (s *SQLiteStore) writeLoop() {
	defer close(s.done)
	for r := range s.writes {
		_, err := s.db.Exec(
			`INSERT INTO evidence (id, timestamp, day, ip, attack_type, severity, method, url, headers, body_excerpt, pattern, excerpt, user_agent, fingerprint, country, city, isp, threat_score, threat_level)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Timestamp, r.Day, r.IP, r.AttackType, r.Severity, r.Method, r.URL,
			r.Headers, r.BodyExcerpt, r.Pattern, r.Excerpt, r.UserAgent, r.Fingerprint,
			r.Country, r.City, r.ISP, r.ThreatScore, r.ThreatLevel,
		)
		if err != nil {
			s.logger.Error("evidence write failed", "id", r.ID, "error", err)
		}
		s.pending.Done()
	}
}
