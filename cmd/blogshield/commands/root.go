package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "blogshield",
		Short: "Attack detection and response for blog platforms",
		Long:  "Blogshield: signature matching, threat scoring, honeypots, and comment moderation for blog platforms. Single binary.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "blogshield.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newStatusCmd(),
		newProfilesCmd(),
		newReportCmd(),
		newQueueCmd(),
		newVersionCmd(),
	)

	return root
}
