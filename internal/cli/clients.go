package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// dateLayouts are the accepted formats of date flags.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: --%s %q (expected YYYY-MM-DD or RFC 3339)", types.ErrInvalidData, flag, value)
}

// linkFlags holds the flags of the link command.
type linkFlags struct {
	car             types.CarAttributes
	client          types.ClientInfo
	saleDate        string
	reservationDate string
	deliveryDate    string
	recordedBy      string
}

func newLinkCmd(a *app) *cobra.Command {
	var f linkFlags
	cmd := &cobra.Command{
		Use:   "link <car-id>",
		Short: "Link a car to the client who reserved or bought it",
		Long: `Link records the client of a car, replacing any previous link, and
writes the client fields to every store holding the car. The status is
reserved unless --status sold is given; the matching date defaults to now.`,
		Example: `  carsync link c1 --vin 1HGCM82633A004352 --model Accord --name "Ann Lee" --phone 555-0100 --status sold`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.client.SaleDate, err = parseDate("sale-date", f.saleDate); err != nil {
				return err
			}
			if f.client.ReservationDate, err = parseDate("reservation-date", f.reservationDate); err != nil {
				return err
			}
			if f.client.DeliveryDate, err = parseDate("delivery-date", f.deliveryDate); err != nil {
				return err
			}
			return a.withService(func(svc *carsync.Service) error {
				link, err := svc.LinkClient(cmd.Context(), args[0], f.car, f.client, f.recordedBy)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return a.emit(cmd, link)
				}
				out := cmd.OutOrStdout()
				okColor.Fprintf(out, "%s %s -> %s (%s)\n", link.Status, link.CarID, link.Client.Name, link.Client.Phone)
				if !link.Integrity.AllDataPresent {
					failColor.Fprintf(out, "incomplete: vin=%t client=%t date=%t\n",
						link.Integrity.VINVerified, link.Integrity.ClientVerified, link.Integrity.DateTimeRecorded)
				}
				return nil
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.car.VIN, "vin", "", "vehicle identification number")
	fl.StringVar(&f.car.Brand, "brand", "", "vehicle brand")
	fl.StringVar(&f.car.Model, "model", "", "vehicle model")
	fl.IntVar(&f.car.Year, "year", 0, "model year")
	fl.StringVar(&f.car.Color, "color", "", "vehicle color")
	fl.Float64Var(&f.car.Price, "price", 0, "list price")
	fl.StringVar(&f.car.Status, "status", types.StatusReserved, "reserved or sold")
	fl.StringVar(&f.car.Location, "location", "", "current location")
	fl.StringVar(&f.client.Name, "name", "", "client name")
	fl.StringVar(&f.client.Phone, "phone", "", "client phone")
	fl.StringVar(&f.client.Email, "email", "", "client email")
	fl.StringVar(&f.client.Address, "address", "", "client address")
	fl.StringVar(&f.client.LicensePlate, "plate", "", "license plate")
	fl.Float64Var(&f.client.Price, "sale-price", 0, "agreed sale price")
	fl.StringVar(&f.client.Notes, "notes", "", "free-form notes")
	fl.StringVar(&f.saleDate, "sale-date", "", "sale date")
	fl.StringVar(&f.reservationDate, "reservation-date", "", "reservation date")
	fl.StringVar(&f.deliveryDate, "delivery-date", "", "delivery date")
	fl.StringVar(&f.recordedBy, "by", "cli", "who records the link")
	return cmd
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <car-id>",
		Short: "Remove a car's client link and return it to stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				if err := svc.UnlinkClient(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("unlink %s: %w", args[0], err)
				}
				okColor.Fprintf(cmd.OutOrStdout(), "%s is back in stock\n", args[0])
				return nil
			})
		},
	}
}

func newClientCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "client <phone-or-name>",
		Short: "List the cars of a client, by exact phone or part of the name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				links, err := svc.CarsForClient(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emitLinks(cmd, links)
			})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search client links by VIN, model, brand, client name or phone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := ""
			if len(args) == 1 {
				q = args[0]
			}
			return a.withService(func(svc *carsync.Service) error {
				links, err := svc.Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				return a.emitLinks(cmd, links)
			})
		},
	}
}

func newDeliveriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deliveries",
		Short: "Count reserved and sold cars and their delivery state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *carsync.Service) error {
				st, err := svc.DeliveryStats(cmd.Context())
				if err != nil {
					return err
				}
				return a.emit(cmd, st)
			})
		},
	}
}

// emitLinks prints links, or a note when there are none.
func (a *app) emitLinks(cmd *cobra.Command, links []types.ClientCarLink) error {
	if len(links) == 0 && !a.flags.jsonMode {
		dimColor.Fprintln(cmd.OutOrStdout(), "no matching links")
		return nil
	}
	if links == nil {
		links = []types.ClientCarLink{}
	}
	return a.emit(cmd, links)
}
