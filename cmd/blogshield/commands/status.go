package commands

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blogshield/blogshield/internal/config"
	"github.com/blogshield/blogshield/internal/evidence"
	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/signature"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show detection status from the last snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}

			store := ledger.NewStore()
			if err := store.Load(cfg.Detection.SnapshotPath); err != nil {
				return fmt.Errorf("loading profile snapshot: %w", err)
			}
			stats := store.Summarize()

			fmt.Println()
			fmt.Println("  blogshield status")
			fmt.Println("  ────────────────────────────────────────")
			fmt.Printf("  Config:        %s\n", cfgFile)
			fmt.Printf("  Port:          %d\n", cfg.Server.Port)
			fmt.Printf("  Honeypots:     %v\n", cfg.Honeypots.Enabled)
			fmt.Printf("  Evidence:      %s\n", cfg.Evidence.Backend)
			fmt.Println("  ────────────────────────────────────────")
			fmt.Printf("  Tracked:       %d identities\n", stats.TrackedIdentities)
			blockedStr := fmt.Sprintf("%d", stats.BlockedIdentities)
			if stats.BlockedIdentities > 0 {
				blockedStr = color.RedString(blockedStr)
			}
			fmt.Printf("  Blocked:       %s\n", blockedStr)
			fmt.Printf("  Attacks:       %d\n", stats.TotalAttacks)
			hitsStr := fmt.Sprintf("%d", stats.HoneypotHits)
			if stats.HoneypotHits > 0 {
				hitsStr = color.YellowString(hitsStr)
			}
			fmt.Printf("  Honeypot hits: %s\n", hitsStr)

			if len(stats.CountsByType) > 0 {
				types := make([]string, 0, len(stats.CountsByType))
				for t := range stats.CountsByType {
					types = append(types, string(t))
				}
				sort.Strings(types)
				fmt.Println("  ────────────────────────────────────────")
				for _, t := range types {
					fmt.Printf("  %-20s %d\n", t, stats.CountsByType[signature.AttackType(t)])
				}
			}

			printEvidenceByDay(cfg)
			fmt.Println()
			return nil
		},
	}
}

func printEvidenceByDay(cfg *config.Config) {
	if cfg.Evidence.Backend != "sqlite" {
		return
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := evidence.NewSQLiteStore(cfg.Evidence.SQLitePath, logger)
	if err != nil {
		return
	}
	defer store.Close() //nolint:errcheck // best-effort cleanup

	since := evidence.DayOf(time.Now().AddDate(0, 0, -7))
	byDay, err := store.CountByDay(since)
	if err != nil || len(byDay) == 0 {
		return
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	fmt.Println("  ────────────────────────────────────────")
	fmt.Println("  Evidence (last 7 days):")
	for _, d := range days {
		fmt.Printf("  %s  %d\n", d, byDay[d])
	}
}
