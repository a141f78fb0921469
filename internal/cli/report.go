package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarize the completeness of the client links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				r, err := svc.IntegrityReport(cmd.Context())
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return a.emit(cmd, r)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "links          %d\n", r.Total)
				okColor.Fprintf(out, "complete       %d\n", r.Complete)
				if r.Incomplete > 0 {
					failColor.Fprintf(out, "incomplete     %d\n", r.Incomplete)
				} else {
					fmt.Fprintf(out, "incomplete     %d\n", r.Incomplete)
				}
				fmt.Fprintf(out, "with vin       %d\n", r.WithVIN)
				fmt.Fprintf(out, "with client    %d\n", r.WithClient)
				fmt.Fprintf(out, "with date      %d\n", r.WithDateTime)
				for _, e := range r.Recent {
					dimColor.Fprintf(out, "%s  %-8s %s %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Action, e.CarID, e.RecordedBy)
				}
				return nil
			})
		},
	}
}

func newReconcileCmd(a *app) *cobra.Command {
	var recordedBy string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Create client links for reserved or sold cars that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				n, err := svc.Reconcile(cmd.Context(), recordedBy)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return a.emit(cmd, map[string]int{"created": n})
				}
				okColor.Fprintf(cmd.OutOrStdout(), "created %d links\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recordedBy, "by", "reconcile", "who records the created links")
	return cmd
}
