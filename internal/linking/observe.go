package linking

import (
	"context"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Observe applies a reservation or sale transition carried by a vehicle
// record captured in store. The record belongs to the link keyed by its id
// or, failing that, to the link with the same VIN. A reserved or sold
// record with a client name links the car when it has no link yet, or when
// the status or client differ from the current link; the store becomes the
// car's location when the record carries none. An in_stock record unlinks
// a linked car. Any other record is ignored. Observe reports whether the
// link changed.
func (i *Index) Observe(ctx context.Context, store string, rec types.EntityRecord, recordedBy string) (bool, error) {
	if rec.Kind != "" && rec.Kind != types.KindVehicle {
		return false, nil
	}

	current, linked, err := i.linkForRecord(ctx, rec)
	if err != nil {
		return false, err
	}
	carID := rec.ID
	if linked {
		carID = current.CarID
	}

	if rec.Text(types.FieldStatus) == types.StatusInStock {
		if !linked {
			return false, nil
		}
		_, err := i.Unlink(ctx, carID)
		return err == nil, err
	}
	if !backfillCandidate(rec) {
		return false, nil
	}

	next := i.linkFromRecord(rec, store, recordedBy)
	if linked && current.Status == next.Status &&
		current.Client.Name == next.Client.Name && current.Client.Phone == next.Client.Phone {
		return false, nil
	}
	_, _, err = i.Link(ctx, carID, next.Car, next.Client, recordedBy)
	return err == nil, err
}
