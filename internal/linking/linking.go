// Package linking maintains the client-car join: which client reserved or
// bought which vehicle, with integrity flags describing how complete the
// captured data is.
//
// Every link and unlink is fanned out through the sync engine so that all
// stores converge on the same status and client fields for the vehicle.
// Incomplete data is recorded, never rejected.
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/internal/syncengine"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Recorder appends one integrity log entry per link change.
type Recorder interface {
	RecordLink(ctx context.Context, action string, link types.ClientCarLink) error
}

// Index is the client-car linking index.
type Index struct {
	repo   types.Repository
	engine *syncengine.Engine
	audit  Recorder
	log    *slog.Logger
	now    func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithClock replaces the index clock.
func WithClock(now func() time.Time) Option {
	return func(i *Index) { i.now = now }
}

// New creates an Index. audit may be nil, in which case no integrity log is
// kept.
func New(repo types.Repository, engine *syncengine.Engine, audit Recorder, log *slog.Logger, opts ...Option) *Index {
	i := &Index{
		repo:   repo,
		engine: engine,
		audit:  audit,
		log:    logger.OrDiscard(log).With(slog.String("component", "linking")),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Link associates carID with client. The status comes from car.Status and
// defaults to reserved; the matching sale or reservation date defaults to
// now when not given. The link replaces any previous one for carID, and the
// vehicle is upserted into car-inventory and merged into every other store
// that already holds it. Fan-out failures are reported in the results, not
// as an error.
func (i *Index) Link(ctx context.Context, carID string, car types.CarAttributes, client types.ClientInfo, recordedBy string) (types.ClientCarLink, []syncengine.SyncResult, error) {
	carID = strings.TrimSpace(carID)
	if carID == "" {
		return types.ClientCarLink{}, nil, types.ErrInvalidID
	}
	status := car.Status
	if status == "" {
		status = types.StatusReserved
	}
	if status != types.StatusReserved && status != types.StatusSold {
		return types.ClientCarLink{}, nil, fmt.Errorf("%w: %q", types.ErrInvalidStatus, status)
	}

	now := i.now()
	switch {
	case status == types.StatusSold && client.SaleDate == nil:
		client.SaleDate = &now
	case status == types.StatusReserved && client.ReservationDate == nil:
		client.ReservationDate = &now
	}

	car.VIN = strings.TrimSpace(car.VIN)
	car.Status = status
	link := types.ClientCarLink{
		CarID:        carID,
		SecondaryKey: car.VIN,
		Car:          car,
		Status:       status,
		Location:     car.Location,
		Client:       client,
		LastUpdated:  now,
		Integrity:    types.ComputeIntegrity(car.VIN, client, now, recordedBy),
	}

	if err := i.repo.SaveClientLink(ctx, link); err != nil {
		return types.ClientCarLink{}, nil, types.NewSyncError("", "link client", types.CollectionClientLinks, err)
	}
	i.record(ctx, types.ActionLink, link)
	if !link.Integrity.AllDataPresent {
		i.log.Info("client link recorded with incomplete data",
			slog.String("car", carID),
			slog.Bool("vin_verified", link.Integrity.VINVerified),
			slog.Bool("client_verified", link.Integrity.ClientVerified),
			slog.Bool("date_time_recorded", link.Integrity.DateTimeRecorded),
		)
	}

	return link, i.fanOut(ctx, carID, carFields(car), link.VehicleFields()), nil
}

// Unlink removes the link for carID and resets every store's copy of the
// vehicle to in_stock with the client fields cleared. Returns ErrNotFound
// when carID has no link.
func (i *Index) Unlink(ctx context.Context, carID string) ([]syncengine.SyncResult, error) {
	link, err := i.repo.ClientLink(ctx, carID)
	if err != nil {
		return nil, err
	}
	if err := i.repo.DeleteClientLink(ctx, carID); err != nil {
		return nil, types.NewSyncError("", "unlink client", types.CollectionClientLinks, err)
	}

	link.Status = types.StatusInStock
	link.LastUpdated = i.now()
	i.record(ctx, types.ActionUnlink, link)

	rec := types.EntityRecord{ID: carID, Kind: types.KindVehicle, SecondaryKey: link.SecondaryKey, Fields: types.ResetFields()}
	return i.engine.Propagate(ctx, types.CollectionClientLinks, types.KindVehicle, rec, i.repo.Stores()), nil
}

// ClientFor returns the link for carID with its integrity flags
// recomputed. Returns ErrNotFound when there is none.
func (i *Index) ClientFor(ctx context.Context, carID string) (types.ClientCarLink, error) {
	link, err := i.repo.ClientLink(ctx, carID)
	if err != nil {
		return types.ClientCarLink{}, err
	}
	link.Integrity = link.Evaluate()
	return link, nil
}

// linkForRecord returns the link that owns the vehicle in rec: the link
// keyed by rec.ID, else the link holding the same VIN. A store may hold
// the car under its own id.
func (i *Index) linkForRecord(ctx context.Context, rec types.EntityRecord) (types.ClientCarLink, bool, error) {
	link, err := i.repo.ClientLink(ctx, rec.ID)
	if err == nil {
		return link, true, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return types.ClientCarLink{}, false, err
	}
	vin := recordVIN(rec)
	if vin == "" {
		return types.ClientCarLink{}, false, nil
	}
	links, err := i.repo.ClientLinks(ctx)
	if err != nil {
		return types.ClientCarLink{}, false, err
	}
	for _, l := range links {
		if l.SecondaryKey == vin {
			return l, true, nil
		}
	}
	return types.ClientCarLink{}, false, nil
}

// recordVIN returns the VIN of a vehicle record, from its secondary key or
// its vin field.
func recordVIN(rec types.EntityRecord) string {
	if rec.SecondaryKey != "" {
		return rec.SecondaryKey
	}
	return strings.TrimSpace(rec.Text(types.FieldVIN))
}

// Links returns every link with its integrity flags recomputed.
func (i *Index) Links(ctx context.Context) ([]types.ClientCarLink, error) {
	links, err := i.repo.ClientLinks(ctx)
	if err != nil {
		return nil, err
	}
	for n := range links {
		links[n].Integrity = links[n].Evaluate()
	}
	return links, nil
}

// fanOut upserts the vehicle into car-inventory and merges the linking
// fields into every other store that already holds it.
func (i *Index) fanOut(ctx context.Context, carID string, attrs, linkFields map[string]any) []syncengine.SyncResult {
	inventory := make(map[string]any, len(attrs)+len(linkFields))
	for k, v := range attrs {
		inventory[k] = v
	}
	for k, v := range linkFields {
		inventory[k] = v
	}

	var results []syncengine.SyncResult
	if i.repo.HasStore(types.StoreInventory) {
		rec := types.EntityRecord{ID: carID, Kind: types.KindVehicle, Fields: inventory}
		results = append(results, i.engine.Apply(ctx, types.CollectionClientLinks, types.StoreInventory, types.KindVehicle, rec))
	} else {
		i.log.Warn("car inventory store is not configured", slog.String("car", carID))
	}

	others := make([]string, 0, len(i.repo.Stores()))
	for _, s := range i.repo.Stores() {
		if s != types.StoreInventory {
			others = append(others, s)
		}
	}
	rec := types.EntityRecord{ID: carID, Kind: types.KindVehicle, Fields: linkFields}
	results = append(results, i.engine.Propagate(ctx, types.CollectionClientLinks, types.KindVehicle, rec, others)...)

	for _, r := range results {
		if !r.Success {
			i.log.Warn("client link fan-out failed", slog.String("car", carID), slog.String("store", r.Target), logger.Err(r.Err))
		}
	}
	return results
}

func (i *Index) record(ctx context.Context, action string, link types.ClientCarLink) {
	if i.audit == nil {
		return
	}
	if err := i.audit.RecordLink(ctx, action, link); err != nil {
		i.log.Warn("recording integrity entry", slog.String("action", action), slog.String("car", link.CarID), logger.Err(err))
	}
}

// carFields renders the descriptive vehicle attributes that are set.
func carFields(car types.CarAttributes) map[string]any {
	f := make(map[string]any, 6)
	if car.Brand != "" {
		f[types.FieldBrand] = car.Brand
	}
	if car.Model != "" {
		f[types.FieldModel] = car.Model
	}
	if car.Year != 0 {
		f[types.FieldYear] = car.Year
	}
	if car.Color != "" {
		f[types.FieldColor] = car.Color
	}
	if car.Price != 0 {
		f[types.FieldPrice] = car.Price
	}
	return f
}
