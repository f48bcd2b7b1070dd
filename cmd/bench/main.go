package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blogshield/blogshield/internal/evidence"
)

func main() {
	dir, _ := os.MkdirTemp("", "blogshield-bench-*")
	defer func() { _ = os.RemoveAll(dir) }()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := evidence.NewSQLiteStore(filepath.Join(dir, "bench.db"), logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = store.Close() }()

	types := []string{"sql_injection", "xss", "command_injection", "path_traversal", "scanning", "brute_force"}
	severities := []string{"low", "medium", "high", "critical"}
	headers := `{"User-Agent":"Mozilla/5.0","Accept":"*/*"}`

	scales := []int{1000, 10000, 50000, 100000, 500000, 1000000}

	fmt.Println("=== SCALING BENCHMARK (evidence store) ===")
	fmt.Println()

	written := 0
	for _, target := range scales {
		toWrite := target - written
		if toWrite <= 0 {
			continue
		}

		start := time.Now()
		batchSize := 500
		for i := 0; i < toWrite; i += batchSize {
			end := i + batchSize
			if end > toWrite {
				end = toWrite
			}
			tx, _ := store.DB().Begin()
			for j := i; j < end; j++ {
				idx := written + j
				// 5K rows within 24h, rest older (simulates steady-state with retention)
				at := time.Now().Add(-time.Duration(idx) * time.Second)
				if idx >= 5000 {
					at = at.Add(-48 * time.Hour)
				}
				ip := fmt.Sprintf("203.0.113.%d", idx%250)
				_, _ = tx.Exec(
					`INSERT INTO evidence (id, timestamp, day, ip, attack_type, severity, method, url, headers, body_excerpt, pattern, excerpt, user_agent, fingerprint, country, city, isp, threat_score, threat_level) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
					fmt.Sprintf("%s_%d_%07x", ip, at.UnixMilli(), idx),
					at.UTC().Format(time.RFC3339), evidence.DayOf(at), ip,
					types[idx%len(types)], severities[idx%len(severities)],
					"GET", "/search?q=payload", headers, "",
					"union.*select", "' UNION SELECT", "Mozilla/5.0", "",
					"", "", "", idx%100, "MEDIUM",
				)
			}
			_ = tx.Commit()
		}
		written = target
		fillTime := time.Since(start)
		insertRate := float64(toWrite) / fillTime.Seconds()

		// Update query planner statistics after bulk insert
		_, _ = store.DB().Exec("ANALYZE")

		weekAgo := evidence.DayOf(time.Now().AddDate(0, 0, -7))
		type benchmark struct {
			name string
			fn   func()
		}
		benchmarks := []benchmark{
			{"Recent 50", func() { _, _ = store.Query(evidence.QueryOpts{Limit: 50}) }},
			{"By IP", func() { _, _ = store.Query(evidence.QueryOpts{IP: "203.0.113.7", Limit: 50}) }},
			{"By type+severity", func() {
				_, _ = store.Query(evidence.QueryOpts{AttackType: "sql_injection", Severity: "high", Limit: 50})
			}},
			{"Counts by day (7d)", func() { _, _ = store.CountByDay(weekAgo) }},
		}

		fi, _ := os.Stat(filepath.Join(dir, "bench.db"))
		wal, _ := os.Stat(filepath.Join(dir, "bench.db-wal"))
		dbMB := float64(fi.Size()) / (1024 * 1024)
		walMB := float64(0)
		if wal != nil {
			walMB = float64(wal.Size()) / (1024 * 1024)
		}

		fmt.Printf("--- %dk rows (5k in 24h) | %.0f MB | %.0f ins/sec ---\n",
			written/1000, dbMB+walMB, insertRate)

		iters := 20
		if written >= 500000 {
			iters = 5
		}
		for _, b := range benchmarks {
			start := time.Now()
			for range iters {
				b.fn()
			}
			elapsed := time.Since(start)
			avgMs := float64(elapsed.Microseconds()) / float64(iters) / 1000.0
			fmt.Printf("  %-22s %7.1f ms\n", b.name, avgMs)
		}
		fmt.Println()
	}
}
