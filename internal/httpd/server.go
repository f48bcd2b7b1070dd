// Package httpd wires the detection pipeline behind an HTTP front:
// enforcement middleware, the comment endpoint, and the operator API.
package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blogshield/blogshield/internal/config"
	"github.com/blogshield/blogshield/internal/evidence"
	"github.com/blogshield/blogshield/internal/geoip"
	"github.com/blogshield/blogshield/internal/honeypot"
	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/measures"
	"github.com/blogshield/blogshield/internal/metrics"
	"github.com/blogshield/blogshield/internal/moderation"
	"github.com/blogshield/blogshield/internal/pipeline"
	"github.com/blogshield/blogshield/internal/ratewindow"
	"github.com/blogshield/blogshield/internal/report"
	"github.com/blogshield/blogshield/internal/signature"
	"github.com/blogshield/blogshield/rules"
)

// Server is the blogshield HTTP server.
type Server struct {
	cfg        *config.Config
	srv        *http.Server
	ln         net.Listener
	store      *ledger.Store
	evidence   evidence.Store
	reputation *moderation.ReputationStore
	gate       *moderation.Gate
	queue      *moderation.Queue
	measures   *measures.Engine
	registry   *prometheus.Registry
	inspector  *pipeline.Inspector
	reports    *report.Generator
	reporter   *report.Runner
	watcher    *signature.Watcher
	redis      *redis.Client
	logger     *slog.Logger
	loopCancel context.CancelFunc
}

// NewServer creates and wires the server from configuration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	matcher := signature.NewMatcher()

	// A configured rules file takes over the custom group slot;
	// otherwise the groups shipped with the binary apply.
	var watcher *signature.Watcher
	if cfg.Detection.RulesFile != "" {
		w, err := signature.WatchRules(cfg.Detection.RulesFile, matcher, logger)
		if err != nil {
			return nil, fmt.Errorf("watching rules file: %w", err)
		}
		watcher = w
	} else if groups, err := signature.LoadRulesFS(rules.FS(), "signature-groups.yaml"); err != nil {
		logger.Warn("embedded signature groups unavailable", "error", err)
	} else {
		matcher.SetCustomGroups(groups)
	}

	var honeypots *honeypot.Registry
	if cfg.Honeypots.Enabled {
		honeypots = honeypot.NewRegistry(cfg.Honeypots.ExtraPaths...)
	} else {
		honeypots = honeypot.NewEmptyRegistry()
	}

	store := ledger.NewStore()
	if cfg.Detection.SnapshotPath != "" {
		if err := store.Load(cfg.Detection.SnapshotPath); err != nil {
			logger.Warn("could not restore profile snapshot", "error", err)
		} else if store.Len() > 0 {
			logger.Info("restored profile snapshot", "identities", store.Len())
		}
	}

	engine := measures.NewEngine(store, logger,
		time.Duration(cfg.Detection.BlockHours)*time.Hour)

	ev, err := newEvidenceStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	var geo *geoip.Client
	if cfg.GeoIP.Enabled {
		geo = geoip.NewClient(cfg.GeoIP.Endpoint, logger)
	}

	words, err := moderation.LoadWordList(rules.FS(), "sensitive-words.yaml")
	if err != nil {
		return nil, fmt.Errorf("loading sensitive words: %w", err)
	}
	extra := make([]moderation.SensitiveTerm, 0, len(cfg.Moderation.ExtraWords))
	for _, w := range cfg.Moderation.ExtraWords {
		extra = append(extra, moderation.SensitiveTerm{Term: w.Term, Severity: w.Severity})
	}
	words.Add(extra)

	reputation, err := moderation.NewReputationStore(cfg.Moderation.ReputationDB)
	if err != nil {
		return nil, fmt.Errorf("opening reputation store: %w", err)
	}

	var rdb *redis.Client
	var commentRate, requestRate, loginRate ratewindow.Window
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		commentRate = ratewindow.NewRedis(rdb, time.Minute, "blogshield:comments")
		requestRate = ratewindow.NewRedis(rdb, time.Minute, "blogshield:requests")
		loginRate = ratewindow.NewRedis(rdb, time.Hour, "blogshield:logins")
	} else {
		commentRate = ratewindow.NewMemory(time.Minute)
		requestRate = ratewindow.NewMemory(time.Minute)
		loginRate = ratewindow.NewMemory(time.Hour)
	}

	queue := moderation.NewQueue()
	gate := moderation.NewGate(words, reputation, commentRate, queue,
		moderation.GateConfig{ReviewNewUsers: cfg.Moderation.ReviewNewUsers}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	inspector := pipeline.New(pipeline.Config{
		Matcher:   matcher,
		Honeypots: honeypots,
		Ledger:    store,
		Engine:    engine,
		Evidence:  ev,
		Geo:       geo,
		Gate:      gate,
		Queue:     queue,
		Requests:  requestRate,
		Logins:    loginRate,
		Metrics:   m,
		Logger:    logger,

		RequestLimit: cfg.Detection.RequestRateLimit,
		LoginLimit:   cfg.Detection.LoginFailureLimit,

		EvidenceMinSeverity: signature.Severity(cfg.Evidence.MinSeverity),
	})

	generator := report.NewGenerator(store, ev, geo, logger)
	reporter := report.NewRunner(generator,
		time.Duration(cfg.Reports.IntervalHours)*time.Hour,
		cfg.Reports.Period, cfg.Reports.OutputDir, logger)

	s := &Server{
		cfg:        cfg,
		store:      store,
		evidence:   ev,
		reputation: reputation,
		gate:       gate,
		queue:      queue,
		measures:   engine,
		registry:   registry,
		inspector:  inspector,
		reports:    generator,
		reporter:   reporter,
		watcher:    watcher,
		redis:      rdb,
		logger:     logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = Guard(inspector, logger)(h)
	h = securityHeaders(h)
	h = logging(logger)(h)
	h = recovery(logger)(h)
	h = requestID(h)
	h = otelhttp.NewHandler(h, "blogshield")

	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	ln, actualPort, err := listenAutoPort(bind, cfg.Server.Port, logger)
	if err != nil {
		return nil, fmt.Errorf("binding port: %w", err)
	}
	cfg.Server.Port = actualPort

	s.ln = ln
	s.srv = &http.Server{
		Handler:        h,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	return s, nil
}

func newEvidenceStore(cfg *config.Config, logger *slog.Logger) (evidence.Store, error) {
	switch cfg.Evidence.Backend {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := evidence.NewPGStore(ctx, cfg.Evidence.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("opening evidence store: %w", err)
		}
		return st, nil
	default:
		st, err := evidence.NewSQLiteStore(cfg.Evidence.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening evidence store: %w", err)
		}
		return st, nil
	}
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := fmt.Sprintf("%s:%d", bind, port)
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		actual := ln.Addr().(*net.TCPAddr).Port
		return ln, actual, nil
	}

	if !isAddrInUse(err) {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		addr = fmt.Sprintf("%s:%d", bind, tryPort)
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}

// Port returns the actual port the server is bound to.
func (s *Server) Port() int {
	return s.cfg.Server.Port
}

// Ledger exposes the profile store for CLI queries.
func (s *Server) Ledger() *ledger.Store {
	return s.store
}

// Start serves requests and runs the background loops until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("blogshield starting",
		"addr", s.ln.Addr().String(),
		"honeypots", s.cfg.Honeypots.Enabled,
		"evidence_backend", s.cfg.Evidence.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	go s.maintenanceLoop(ctx)
	go s.reporter.Run(ctx)

	return s.srv.Serve(s.ln)
}

// maintenanceLoop runs the periodic sweeps: profile eviction, ledger
// snapshots, and evidence retention.
func (s *Server) maintenanceLoop(ctx context.Context) {
	sweepEvery := time.Duration(s.cfg.Detection.SweepIntervalMins) * time.Minute
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	snapshotEvery := time.Duration(s.cfg.Detection.SnapshotIntervalMins) * time.Minute
	if snapshotEvery <= 0 {
		snapshotEvery = time.Hour
	}

	sweep := time.NewTicker(sweepEvery)
	snapshot := time.NewTicker(snapshotEvery)
	purge := time.NewTicker(6 * time.Hour)
	defer sweep.Stop()
	defer snapshot.Stop()
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			retention := time.Duration(s.cfg.Detection.ProfileRetentionDays) * 24 * time.Hour
			if n := s.store.Sweep(retention); n > 0 {
				s.logger.Info("evicted idle profiles", "count", n)
			}
		case <-snapshot.C:
			s.snapshot()
		case <-purge.C:
			cutoff := evidence.DayOf(time.Now().AddDate(0, 0, -s.cfg.Evidence.RetentionDays))
			if _, err := s.evidence.Purge(cutoff); err != nil {
				s.logger.Error("evidence purge failed", "error", err)
			}
		}
	}
}

func (s *Server) snapshot() {
	if s.cfg.Detection.SnapshotPath == "" {
		return
	}
	if err := s.store.Save(s.cfg.Detection.SnapshotPath); err != nil {
		s.logger.Error("profile snapshot failed", "error", err)
	}
}

// Shutdown gracefully stops the server, flushes evidence, and writes
// a final profile snapshot.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if s.loopCancel != nil {
		s.loopCancel()
	}
	err := s.srv.Shutdown(ctx)

	s.snapshot()
	if s.watcher != nil {
		s.watcher.Close()
	}
	if cerr := s.evidence.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.reputation.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// routes registers the built-in endpoints. Everything else passes
// through the guard to the protected application.
func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /comments", s.handleComment)
	mux.HandleFunc("POST /auth/failures", s.handleLoginFailure)
	mux.HandleFunc("GET /admin/profiles", s.handleProfiles)
	mux.HandleFunc("GET /admin/profiles/{ip}", s.handleProfile)
	mux.HandleFunc("GET /admin/evidence", s.handleEvidence)
	mux.HandleFunc("GET /admin/evidence/{id}", s.handleEvidenceRecord)
	mux.HandleFunc("GET /admin/measures", s.handleMeasures)
	mux.HandleFunc("GET /admin/report", s.handleReport)
	mux.HandleFunc("GET /admin/queue", s.handleQueue)
	mux.HandleFunc("POST /admin/queue/{id}/approve", s.resolveQueue(true))
	mux.HandleFunc("POST /admin/queue/{id}/reject", s.resolveQueue(false))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Header already sent; the status code cannot change.
		slog.Default().Error("writeJSON: encode failed", "error", err)
	}
}
