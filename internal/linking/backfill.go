package linking

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// InitializeFromExistingData scans every store for vehicles that already
// carry a reserved or sold status and a client name, and creates a link
// for each car that has none. A record whose VIN already belongs to a link
// is the same car held under another id and is skipped. The first store
// holding a car, in store order, supplies its data. Running it again
// creates nothing new. It returns the number of links created.
func (i *Index) InitializeFromExistingData(ctx context.Context, recordedBy string) (int, error) {
	links, err := i.repo.ClientLinks(ctx)
	if err != nil {
		return 0, err
	}
	linkedVINs := make(map[string]bool, len(links))
	for _, l := range links {
		if l.SecondaryKey != "" {
			linkedVINs[l.SecondaryKey] = true
		}
	}

	seen := make(map[string]bool)
	created := 0
	for _, store := range i.repo.Stores() {
		recs, err := i.repo.Records(ctx, store)
		if err != nil {
			return created, err
		}
		for _, rec := range recs {
			if !backfillCandidate(rec) || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true

			_, err := i.repo.ClientLink(ctx, rec.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, types.ErrNotFound) {
				return created, err
			}
			if vin := recordVIN(rec); vin != "" && linkedVINs[vin] {
				continue
			}

			link := i.linkFromRecord(rec, store, recordedBy)
			if err := i.repo.SaveClientLink(ctx, link); err != nil {
				return created, types.NewSyncError("", "backfill", types.CollectionClientLinks, err)
			}
			if link.SecondaryKey != "" {
				linkedVINs[link.SecondaryKey] = true
			}
			i.record(ctx, types.ActionBackfill, link)
			created++
		}
	}
	if created > 0 {
		i.log.Info("client links backfilled", slog.Int("created", created))
	}
	return created, nil
}

func backfillCandidate(rec types.EntityRecord) bool {
	if rec.Kind != "" && rec.Kind != types.KindVehicle {
		return false
	}
	status := rec.Text(types.FieldStatus)
	if status != types.StatusReserved && status != types.StatusSold {
		return false
	}
	return strings.TrimSpace(rec.Text(types.FieldClientName)) != ""
}

// linkFromRecord synthesizes a link from the vehicle and client fields of
// rec. Dates are taken as stored; none are defaulted.
func (i *Index) linkFromRecord(rec types.EntityRecord, store, recordedBy string) types.ClientCarLink {
	vin := recordVIN(rec)
	location := rec.Text(types.FieldLocation)
	if location == "" {
		location = store
	}
	status := rec.Text(types.FieldStatus)
	year, _ := number(rec.Fields[types.FieldYear])
	price, _ := number(rec.Fields[types.FieldPrice])
	salePrice, _ := number(rec.Fields[types.FieldSalePrice])

	client := types.ClientInfo{
		Name:            rec.Text(types.FieldClientName),
		Phone:           rec.Text(types.FieldClientPhone),
		Email:           rec.Text(types.FieldClientEmail),
		Address:         rec.Text(types.FieldClientAddress),
		LicensePlate:    rec.Text(types.FieldLicensePlate),
		Price:           salePrice,
		SaleDate:        rec.Time(types.FieldSaleDate),
		ReservationDate: rec.Time(types.FieldReservationDate),
		DeliveryDate:    rec.Time(types.FieldDeliveryDate),
		Notes:           rec.Text(types.FieldClientNotes),
	}
	now := i.now()
	return types.ClientCarLink{
		CarID:        rec.ID,
		SecondaryKey: vin,
		Car: types.CarAttributes{
			VIN:      vin,
			Brand:    rec.Text(types.FieldBrand),
			Model:    rec.Text(types.FieldModel),
			Year:     int(year),
			Color:    rec.Text(types.FieldColor),
			Price:    price,
			Status:   status,
			Location: location,
		},
		Status:      status,
		Location:    location,
		Client:      client,
		LastUpdated: now,
		Integrity:   types.ComputeIntegrity(vin, client, now, recordedBy),
	}
}

// number reads a numeric field that may have been stored as a Go number,
// a decoded JSON number or a numeric string.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
