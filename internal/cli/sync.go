package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// parseRecord decodes an EntityRecord given on the command line.
func parseRecord(arg string) (types.EntityRecord, error) {
	var rec types.EntityRecord
	if err := json.Unmarshal([]byte(arg), &rec); err != nil {
		return rec, fmt.Errorf("%w: record JSON: %v", types.ErrInvalidData, err)
	}
	return rec, nil
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <source> <target> <kind> <record-json>",
		Short: "Copy one record from a store into another",
		Long: `Sync merges the record into the target store. Fields absent from the
record are preserved in the target. A link between the stores is created
when none exists.`,
		Example: `  carsync sync scan-vin car-inventory vehicle '{"fields":{"vin":"1HGCM82633A004352","model":"Accord"}}'`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := types.ParseKind(args[2])
			if err != nil {
				return err
			}
			rec, err := parseRecord(args[3])
			if err != nil {
				return err
			}
			return a.withService(func(svc *carsync.Service) error {
				res := svc.Sync(cmd.Context(), args[0], args[1], kind, rec)
				if err := a.printResults(cmd, []carsync.SyncResult{res}); err != nil {
					return err
				}
				if !res.Success && res.Err != nil {
					return res.Err
				}
				return nil
			})
		},
	}
}

func newAutoSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autosync <store> <kind> <record-json>",
		Short: "Save a record in a store and fan it out along its links",
		Example: `  carsync autosync showroom-1 vehicle '{"id":"c1","fields":{"vin":"1HGCM82633A004352","status":"sold","client_name":"Ann","client_phone":"555"}}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := types.ParseKind(args[1])
			if err != nil {
				return err
			}
			rec, err := parseRecord(args[2])
			if err != nil {
				return err
			}
			return a.withService(func(svc *carsync.Service) error {
				results, err := svc.AutoSyncResults(cmd.Context(), args[0], rec, kind)
				if err != nil {
					return err
				}
				return a.printResults(cmd, results)
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [store]",
		Short: "Count links by last sync outcome",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := ""
			if len(args) == 1 {
				store = args[0]
			}
			return a.withService(func(svc *carsync.Service) error {
				st, err := svc.GetSyncStatus(cmd.Context(), store)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return a.emit(cmd, st)
				}
				out := cmd.OutOrStdout()
				okColor.Fprintf(out, "successful %d\n", st.Successful)
				failColor.Fprintf(out, "failed     %d\n", st.Failed)
				fmt.Fprintf(out, "pending    %d\n", st.Pending)
				fmt.Fprintf(out, "total      %d\n", st.Total)
				return nil
			})
		},
	}
}

func newSyncLogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "log [n]",
		Short: "Show the most recent sync log entries, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 20
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("n must be an integer: %q", args[0])
				}
				n = v
			}
			return a.withService(func(svc *carsync.Service) error {
				entries, err := svc.RecentSyncs(cmd.Context(), n)
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []types.SyncLogEntry{}
				}
				return a.emit(cmd, entries)
			})
		},
	}
}
