package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogshield/blogshield/internal/config"
	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/signature"
)

func newProfilesCmd() *cobra.Command {
	var blocked bool
	var limit int

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List tracked attacker profiles from the last snapshot",
		Example: `  blogshield profiles
  blogshield profiles 203.0.113.7
  blogshield profiles --blocked
  blogshield profiles --limit 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}

			store := ledger.NewStore()
			if err := store.Load(cfg.Detection.SnapshotPath); err != nil {
				return fmt.Errorf("loading profile snapshot: %w", err)
			}

			if len(args) == 1 {
				return printProfile(store, args[0])
			}

			profiles := store.All()
			if blocked {
				filtered := profiles[:0]
				for _, p := range profiles {
					if p.Blocked {
						filtered = append(filtered, p)
					}
				}
				profiles = filtered
			}
			if limit > 0 && limit < len(profiles) {
				profiles = profiles[:limit]
			}

			if len(profiles) == 0 {
				fmt.Println("No tracked profiles.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "IP\tSCORE\tLEVEL\tATTACKS\tHONEYPOT\tBLOCKED\tLAST SEEN\n") //nolint:errcheck // CLI output
			for _, p := range profiles {
				blockedMark := "-"
				if p.Blocked {
					blockedMark = "until " + p.BlockExpiry.Format("15:04:05")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%s\t%s\n", //nolint:errcheck // CLI output
					p.IP, p.Score, p.Level, p.TotalAttacks, p.HoneypotHits,
					blockedMark, p.LastSeen.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&blocked, "blocked", false, "only currently blocked identities")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of rows")
	return cmd
}

func printProfile(store *ledger.Store, ip string) error {
	p, ok := store.Get(ip)
	if !ok {
		return fmt.Errorf("no profile for %s", ip)
	}

	fmt.Printf("%s  score %d (%s)\n", p.IP, p.Score, p.Level)
	fmt.Printf("  first seen:    %s\n", p.FirstSeen.Format(time.RFC3339))
	fmt.Printf("  last seen:     %s\n", p.LastSeen.Format(time.RFC3339))
	fmt.Printf("  attacks:       %d\n", p.TotalAttacks)
	fmt.Printf("  honeypot hits: %d\n", p.HoneypotHits)
	if p.Blocked {
		fmt.Printf("  blocked until: %s\n", p.BlockExpiry.Format(time.RFC3339))
	}
	if p.Fingerprint != "" {
		fmt.Printf("  fingerprint:   %s\n", p.Fingerprint)
	}
	if len(p.CountsByType) > 0 {
		types := make([]string, 0, len(p.CountsByType))
		for t := range p.CountsByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		fmt.Println("  by type:")
		for _, t := range types {
			fmt.Printf("    %-20s %d\n", t, p.CountsByType[signature.AttackType(t)])
		}
	}
	for _, ua := range p.UserAgents {
		fmt.Printf("  user-agent:    %s\n", ua)
	}
	return nil
}
