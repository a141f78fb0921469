package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and data directories and install the link topology",
		Long: `Init writes a default config.yaml when none exists, creates the data
directory with one JSONL file per store, and registers the link topology
(topology_file when configured, the built-in dealership topology otherwise).
Running init again is safe: existing links are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				n, err := svc.InitializeTopology(cmd.Context())
				if err != nil {
					return fmt.Errorf("initialize topology: %w", err)
				}
				if a.flags.jsonMode {
					return a.emit(cmd, map[string]any{
						"config_dir": a.configDir,
						"data_dir":   a.config.DataDir,
						"links":      n,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "config: %s\n", a.configDir)
				fmt.Fprintf(out, "data:   %s\n", a.config.DataDir)
				okColor.Fprintf(out, "registered %d links\n", n)
				return nil
			})
		},
	}
}
