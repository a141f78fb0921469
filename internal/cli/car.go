package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// parseAssignments turns field=value arguments into a field map. Values
// that parse as JSON keep their JSON type; anything else is a string.
func parseAssignments(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q (expected field=value)", types.ErrInvalidData, arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		fields[key] = parsed
	}
	return fields, nil
}

func newCarCmd(a *app) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "car <car-id> [field=value...]",
		Short: "Show a car across every store, or update it everywhere it is held",
		Long: `With only a car id, car prints the car's record in every store that
holds it together with its client link. With field=value assignments or
--location, the fields are merged into every store that already holds the
car and the per-store results are printed.`,
		Example: `  carsync car c1
  carsync car c1 color=red price=21000
  carsync car c1 --location garage`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			carID := args[0]
			fields, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return a.withService(func(svc *carsync.Service) error {
				if len(fields) == 0 && location == "" {
					data, err := svc.GetCrossStoreData(cmd.Context(), carID)
					if err != nil {
						return err
					}
					if data == nil {
						return fmt.Errorf("car %q: %w", carID, types.ErrNotFound)
					}
					return a.emit(cmd, data)
				}
				results := svc.UpdateCrossStoreData(cmd.Context(), carsync.CrossStoreUpdate{
					CarID:           carID,
					CurrentLocation: location,
					Fields:          fields,
				})
				if err := a.printResults(cmd, results); err != nil {
					return err
				}
				for _, r := range results {
					if !r.Success {
						return errors.New("some stores were not updated")
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "set the car's current location")
	return cmd
}
