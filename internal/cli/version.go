package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
)

// revision is set at build time with -ldflags "-X .../internal/cli.revision=...".
var revision = ""

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the carsync version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if revision != "" {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "carsync %s (%s)\n", carsync.Version, revision)
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "carsync %s\n", carsync.Version)
			return err
		},
	}
}
