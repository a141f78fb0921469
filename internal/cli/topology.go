package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/internal/registry"
	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

func newTopologyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show or apply the store link topology",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the registered links as a topology document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withService(func(svc *carsync.Service) error {
					t, err := svc.Topology(cmd.Context())
					if err != nil {
						return err
					}
					if a.flags.jsonMode {
						return a.emit(cmd, t)
					}
					data, err := t.Marshal()
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "apply <file>",
			Short: "Register every link of a YAML topology file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := registry.ReadTopologyFile(args[0])
				if err != nil {
					return err
				}
				return a.withService(func(svc *carsync.Service) error {
					n, err := svc.ApplyTopology(cmd.Context(), t)
					if err != nil {
						return err
					}
					if a.flags.jsonMode {
						return a.emit(cmd, map[string]int{"links": n})
					}
					okColor.Fprintf(cmd.OutOrStdout(), "registered %d links\n", n)
					return nil
				})
			},
		},
	)
	return cmd
}

func newLinkStoresCmd(a *app) *cobra.Command {
	var (
		direction string
		remove    bool
	)
	cmd := &cobra.Command{
		Use:   "link-stores <source> <target> <kind>",
		Short: "Register or remove a sync link between two stores",
		Example: `  carsync link-stores car-inventory showroom-1 vehicle
  carsync link-stores scan-vin car-inventory vehicle --direction source_to_target
  carsync link-stores car-inventory garage vehicle --remove`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := types.ParseKind(args[2])
			if err != nil {
				return err
			}
			return a.withService(func(svc *carsync.Service) error {
				if remove {
					if err := svc.RemoveLink(cmd.Context(), args[0], args[1], kind); err != nil {
						return err
					}
					okColor.Fprintf(cmd.OutOrStdout(), "removed %s\n", types.LinkKey{Source: args[0], Target: args[1], Kind: kind})
					return nil
				}
				dir, err := types.ParseDirection(direction)
				if err != nil {
					return err
				}
				link, err := svc.CreateLink(cmd.Context(), args[0], args[1], kind, dir)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return a.emit(cmd, link)
				}
				okColor.Fprintf(cmd.OutOrStdout(), "linked %s (%s)\n", link.Key(), link.Direction)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(types.Bidirectional), "bidirectional, source_to_target or target_to_source")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the link instead of registering it")
	return cmd
}

func newRecordsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "records <store>",
		Short: "List the records held by a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				recs, err := svc.Records(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("list %s: %w", args[0], err)
				}
				if recs == nil {
					recs = []types.EntityRecord{}
				}
				return a.emit(cmd, recs)
			})
		},
	}
}
