package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blogshield/blogshield/internal/safefile"
)

// Config is the top-level blogshield configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Detection  DetectionConfig  `yaml:"detection"`
	Honeypots  HoneypotConfig   `yaml:"honeypots"`
	Moderation ModerationConfig `yaml:"moderation"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Redis      RedisConfig      `yaml:"redis,omitempty"`
	GeoIP      GeoIPConfig      `yaml:"geoip,omitempty"`
	Reports    ReportConfig     `yaml:"reports,omitempty"`
}

// ServerConfig holds the HTTP front settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level"`
}

// DetectionConfig tunes the inspection pipeline.
type DetectionConfig struct {
	RulesFile            string `yaml:"rules_file,omitempty"` // extra signature groups, hot-reloaded
	BlockHours           int    `yaml:"block_hours"`
	ProfileRetentionDays int    `yaml:"profile_retention_days"`
	RequestRateLimit     int    `yaml:"request_rate_limit"`
	LoginFailureLimit    int    `yaml:"login_failure_limit"`
	SnapshotPath         string `yaml:"snapshot_path"`
	SnapshotIntervalMins int    `yaml:"snapshot_interval_minutes"`
	SweepIntervalMins    int    `yaml:"sweep_interval_minutes"`
}

// HoneypotConfig configures decoy routes.
type HoneypotConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ExtraPaths []string `yaml:"extra_paths,omitempty"`
}

// ModerationConfig tunes the comment gate.
type ModerationConfig struct {
	ReviewNewUsers bool            `yaml:"review_new_users"`
	ReputationDB   string          `yaml:"reputation_db"`
	ExtraWords     []SensitiveWord `yaml:"extra_words,omitempty"`
}

// SensitiveWord is one operator-supplied moderated term.
type SensitiveWord struct {
	Term     string `yaml:"term"`
	Severity string `yaml:"severity,omitempty"`
}

// EvidenceConfig selects and tunes the evidence backend.
type EvidenceConfig struct {
	Backend       string `yaml:"backend"` // sqlite, postgres
	SQLitePath    string `yaml:"sqlite_path,omitempty"`
	PostgresDSN   string `yaml:"postgres_dsn,omitempty"`
	RetentionDays int    `yaml:"retention_days"`         // purge evidence older than N days (0 = default 30)
	MinSeverity   string `yaml:"min_severity,omitempty"` // record findings at or above this level (empty = all)
}

// RedisConfig enables shared rate windows across instances.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// GeoIPConfig configures the best-effort location lookup.
type GeoIPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ReportConfig schedules periodic aggregate reports.
type ReportConfig struct {
	IntervalHours int    `yaml:"interval_hours"`
	Period        string `yaml:"period,omitempty"`     // label stamped on each report
	OutputDir     string `yaml:"output_dir,omitempty"` // when set, each report is also written here
}

// Load reads and parses a blogshield config file.
func Load(path string) (*Config, error) {
	data, err := safefile.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Detection.BlockHours == 0 {
		cfg.Detection.BlockHours = 24
	}
	if cfg.Detection.ProfileRetentionDays == 0 {
		cfg.Detection.ProfileRetentionDays = 30
	}
	if cfg.Evidence.RetentionDays == 0 {
		cfg.Evidence.RetentionDays = 30
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Detection: DetectionConfig{
			BlockHours:           24,
			ProfileRetentionDays: 30,
			RequestRateLimit:     100,
			LoginFailureLimit:    10,
			SnapshotPath:         "blogshield-profiles.json",
			SnapshotIntervalMins: 60,
			SweepIntervalMins:    60,
		},
		Honeypots: HoneypotConfig{
			Enabled: true,
		},
		Moderation: ModerationConfig{
			ReputationDB: "blogshield-reputation.db",
		},
		Evidence: EvidenceConfig{
			Backend:       "sqlite",
			SQLitePath:    "blogshield-evidence.db",
			RetentionDays: 30,
		},
		GeoIP: GeoIPConfig{
			Enabled: true,
		},
		Reports: ReportConfig{
			IntervalHours: 1,
			Period:        "hourly",
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Evidence.Backend {
	case "", "sqlite":
		if c.Evidence.SQLitePath == "" {
			return fmt.Errorf("evidence.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Evidence.PostgresDSN == "" {
			return fmt.Errorf("evidence.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid evidence backend %q", c.Evidence.Backend)
	}
	switch c.Evidence.MinSeverity {
	case "", "LOW", "MEDIUM", "HIGH", "CRITICAL":
	default:
		return fmt.Errorf("invalid evidence min_severity %q", c.Evidence.MinSeverity)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Detection.BlockHours < 0 {
		return fmt.Errorf("detection.block_hours must not be negative")
	}
	for _, w := range c.Moderation.ExtraWords {
		if w.Term == "" {
			return fmt.Errorf("moderation.extra_words entries need a term")
		}
	}
	return nil
}
