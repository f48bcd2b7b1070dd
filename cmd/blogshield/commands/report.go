package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blogshield/blogshield/internal/config"
	"github.com/blogshield/blogshield/internal/evidence"
	"github.com/blogshield/blogshield/internal/ledger"
	"github.com/blogshield/blogshield/internal/report"
)

func newReportCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a security report from the last snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}

			store := ledger.NewStore()
			if err := store.Load(cfg.Detection.SnapshotPath); err != nil {
				return fmt.Errorf("loading profile snapshot: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			var ev evidence.Store
			if cfg.Evidence.Backend == "sqlite" {
				if st, err := evidence.NewSQLiteStore(cfg.Evidence.SQLitePath, logger); err == nil {
					ev = st
					defer st.Close() //nolint:errcheck // best-effort cleanup
				}
			}

			gen := report.NewGenerator(store, ev, nil, logger)
			rep := gen.Generate(cmd.Context(), cfg.Reports.Period)

			if asJSON {
				data, err := rep.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			fmt.Print(rep.Text())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "render as JSON")
	return cmd
}
