package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
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

// PGStore is the Postgres-backed evidence store for deployments that
// already run a database alongside the blog.
type PGStore struct {
	pool    *pgxpool.Pool
	writes  chan Record
	done    chan struct{}
	pending sync.WaitGroup
	logger  *slog.Logger
}

// NewPGStore connects to Postgres and ensures the evidence schema.
func NewPGStore(ctx context.Context, dsn string, logger *slog.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &PGStore{
		pool:   pool,
		writes: make(chan Record, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.writeLoop()
	return s, nil
}

// Log enqueues an evidence record for async writing.
func (s *PGStore) Log(r Record) {
	s.pending.Add(1)
	select {
	case s.writes <- r:
	default:
		s.pending.Done()
		s.logger.Warn("evidence write buffer full, dropping record", "id", r.ID)
	}
}

// Query returns evidence records matching the given filters.
func (s *PGStore) Query(opts QueryOpts) ([]Record, error) {
	query := "SELECT id, timestamp, day, ip, attack_type, severity, method, url, coalesce(headers,''), coalesce(body_excerpt,''), pattern, excerpt, coalesce(user_agent,''), coalesce(fingerprint,''), coalesce(country,''), coalesce(city,''), coalesce(isp,''), threat_score, threat_level FROM evidence WHERE 1=1"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.ID != "" {
		query += " AND id = " + arg(opts.ID)
	}
	if opts.IP != "" {
		query += " AND ip = " + arg(opts.IP)
	}
	if opts.AttackType != "" {
		query += " AND attack_type = " + arg(opts.AttackType)
	}
	if opts.Severity != "" {
		query += " AND severity = " + arg(opts.Severity)
	}
	if opts.Day != "" {
		query += " AND day = " + arg(opts.Day)
	}
	if opts.Since != "" {
		query += " AND timestamp >= " + arg(opts.Since)
	}

	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Day, &r.IP, &r.AttackType, &r.Severity,
			&r.Method, &r.URL, &r.Headers, &r.BodyExcerpt, &r.Pattern, &r.Excerpt,
			&r.UserAgent, &r.Fingerprint, &r.Country, &r.City, &r.ISP,
			&r.ThreatScore, &r.ThreatLevel); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByDay returns per-day record counts from the given day onward.
func (s *PGStore) CountByDay(since string) (map[string]int, error) {
	query := "SELECT day, COUNT(*) FROM evidence"
	var args []any
	if since != "" {
		query += " WHERE day >= $1"
		args = append(args, since)
	}
	query += " GROUP BY day"

	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting evidence by day: %w", err)
	}
	defer rows.Close()

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
func (s *PGStore) Purge(cutoffDay string) (int64, error) {
	tag, err := s.pool.Exec(context.Background(), "DELETE FROM evidence WHERE day < $1", cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("purging evidence: %w", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		s.logger.Info("purged expired evidence", "records", n, "cutoff_day", cutoffDay)
	}
	return n, nil
}

// Flush blocks until every record accepted so far has been written.
func (s *PGStore) Flush() {
	s.pending.Wait()
}

// Close flushes pending writes and closes the pool.
func (s *PGStore) Close() error {
	close(s.writes)
	<-s.done
	s.pool.Close()
	return nil
}

func (s *PGStore) writeLoop() {
	defer close(s.done)
	ctx := context.Background()
	for r := range s.writes {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO evidence (id, timestamp, day, ip, attack_type, severity, method, url, headers, body_excerpt, pattern, excerpt, user_agent, fingerprint, country, city, isp, threat_score, threat_level)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
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
