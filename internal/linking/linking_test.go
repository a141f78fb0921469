package linking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/carsync/internal/audit"
	"github.com/mesh-intelligence/carsync/internal/memstore"
	"github.com/mesh-intelligence/carsync/internal/registry"
	"github.com/mesh-intelligence/carsync/internal/syncengine"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

const testVIN = "1HGCM82633A004352"

type fixture struct {
	repo  *memstore.Store
	audit *audit.Log
	index *Index
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: memstore.Open(),
		now:  time.Date(2026, 6, 10, 15, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	engine := syncengine.New(f.repo, registry.New(f.repo, nil), nil, syncengine.WithClock(clock))
	f.audit = audit.New(f.repo, nil, audit.WithClock(clock))
	f.index = New(f.repo, engine, f.audit, nil, WithClock(clock))
	return f
}

func at(t time.Time) *time.Time { return &t }

func TestLinkDefaultsDateFromStatus(t *testing.T) {
	explicit := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		status          string
		client          types.ClientInfo
		wantStatus      string
		wantSale        bool
		wantReservation bool
		wantExplicit    bool
	}{
		{name: "sold defaults sale date", status: types.StatusSold, wantStatus: types.StatusSold, wantSale: true},
		{name: "reserved defaults reservation date", status: types.StatusReserved, wantStatus: types.StatusReserved, wantReservation: true},
		{name: "empty status is reserved", status: "", wantStatus: types.StatusReserved, wantReservation: true},
		{
			name:         "explicit sale date kept",
			status:       types.StatusSold,
			client:       types.ClientInfo{SaleDate: at(explicit)},
			wantStatus:   types.StatusSold,
			wantExplicit: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			client := tt.client
			client.Name, client.Phone = "Ana Silva", "+351900000001"

			link, _, err := f.index.Link(context.Background(), "c1", types.CarAttributes{VIN: testVIN, Status: tt.status}, client, "clerk")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, link.Status)

			switch {
			case tt.wantExplicit:
				require.NotNil(t, link.Client.SaleDate)
				assert.True(t, explicit.Equal(*link.Client.SaleDate))
			case tt.wantSale:
				require.NotNil(t, link.Client.SaleDate)
				assert.WithinDuration(t, f.now, *link.Client.SaleDate, time.Second)
				assert.Nil(t, link.Client.ReservationDate)
			case tt.wantReservation:
				require.NotNil(t, link.Client.ReservationDate)
				assert.WithinDuration(t, f.now, *link.Client.ReservationDate, time.Second)
				assert.Nil(t, link.Client.SaleDate)
			}
			assert.True(t, link.Integrity.AllDataPresent)
			assert.Equal(t, "clerk", link.Integrity.RecordedBy)
		})
	}
}

func TestLinkRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.index.Link(ctx, "  ", types.CarAttributes{VIN: testVIN}, types.ClientInfo{}, "clerk")
	assert.ErrorIs(t, err, types.ErrInvalidID)

	_, _, err = f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN, Status: types.StatusInStock}, types.ClientInfo{}, "clerk")
	assert.ErrorIs(t, err, types.ErrInvalidStatus)
}

func TestLinkShortVINIsRecordedIncomplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, _, err := f.index.Link(ctx, "c2", types.CarAttributes{VIN: "SHORT", Model: "X"}, types.ClientInfo{Name: "", Phone: ""}, "clerk")
	require.NoError(t, err, "incomplete data is never rejected")
	assert.False(t, link.Integrity.AllDataPresent)
	assert.False(t, link.Integrity.VINVerified)
	assert.False(t, link.Integrity.ClientVerified)

	got, err := f.index.ClientFor(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "X", got.Car.Model)

	entries, err := f.audit.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ActionLink, entries[0].Action)
	assert.False(t, entries[0].Integrity.AllDataPresent)
}

func TestLinkFansOutToStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.Upsert(ctx, types.StoreShowroom1, types.EntityRecord{
		ID: "c1", Kind: types.KindVehicle, SecondaryKey: testVIN,
		Fields: map[string]any{types.FieldStatus: types.StatusInStock, types.FieldColor: "blue"},
	})
	require.NoError(t, err)

	_, results, err := f.index.Link(ctx, "c1",
		types.CarAttributes{VIN: testVIN, Brand: "Honda", Model: "Accord", Status: types.StatusSold, Location: types.StoreShowroom1},
		types.ClientInfo{Name: "Ana Silva", Phone: "+351900000001", Price: 21500}, "clerk")
	require.NoError(t, err)
	require.Len(t, results, 2, "car-inventory plus the one store holding the car")
	for _, r := range results {
		assert.True(t, r.Success, r.Error())
	}

	inv, err := f.repo.Find(ctx, types.StoreInventory, "c1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSold, inv.Fields[types.FieldStatus])
	assert.Equal(t, "Honda", inv.Fields[types.FieldBrand])
	assert.Equal(t, "Ana Silva", inv.Fields[types.FieldClientName])
	assert.Equal(t, 21500.0, inv.Fields[types.FieldSalePrice])
	assert.Equal(t, types.StoreShowroom1, inv.Fields[types.FieldLocation])

	room, err := f.repo.Find(ctx, types.StoreShowroom1, "c1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSold, room.Fields[types.FieldStatus])
	assert.Equal(t, "+351900000001", room.Fields[types.FieldClientPhone])
	assert.Equal(t, "blue", room.Fields[types.FieldColor], "fields the link does not own are kept")

	_, err = f.repo.Find(ctx, types.StoreGarage, "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestLinkReplacesPreviousLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN}, types.ClientInfo{Name: "Ana", Phone: "1"}, "clerk")
	require.NoError(t, err)
	_, _, err = f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN, Status: types.StatusSold}, types.ClientInfo{Name: "Rui", Phone: "2"}, "clerk")
	require.NoError(t, err)

	links, err := f.index.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "Rui", links[0].Client.Name)
	assert.Equal(t, types.StatusSold, links[0].Status)
}

func TestUnlinkResetsEveryStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, store := range []string{types.StoreShowroom2, types.StoreGarage} {
		_, err := f.repo.Upsert(ctx, store, types.EntityRecord{ID: "c1", Kind: types.KindVehicle, Fields: map[string]any{"model": "Accord"}})
		require.NoError(t, err)
	}
	_, _, err := f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN, Status: types.StatusReserved},
		types.ClientInfo{Name: "Ana", Phone: "1", Email: "ana@example.com", DeliveryDate: at(f.now.Add(48 * time.Hour))}, "clerk")
	require.NoError(t, err)

	results, err := f.index.Unlink(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	_, err = f.index.ClientFor(ctx, "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	for _, store := range []string{types.StoreInventory, types.StoreShowroom2, types.StoreGarage} {
		rec, err := f.repo.Find(ctx, store, "c1")
		require.NoError(t, err, store)
		assert.Equal(t, types.StatusInStock, rec.Fields[types.FieldStatus], store)
		for _, field := range types.ClientFields {
			assert.Equal(t, "", rec.Fields[field], "%s %s", store, field)
		}
	}
	_, err = f.repo.Find(ctx, types.StoreShowroom1, "c1")
	assert.ErrorIs(t, err, types.ErrNotFound, "unlink does not create records")

	entries, err := f.audit.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.ActionUnlink, entries[1].Action)
	assert.Equal(t, types.StatusInStock, entries[1].Status)
}

// seedVINCopy stores the car in showroom-1 under that store's own id.
func seedVINCopy(t *testing.T, f *fixture) {
	t.Helper()
	_, err := f.repo.Upsert(context.Background(), types.StoreShowroom1, types.EntityRecord{
		ID: "room-7", Kind: types.KindVehicle, SecondaryKey: testVIN,
		Fields: map[string]any{types.FieldVIN: testVIN, types.FieldModel: "Accord", types.FieldStatus: types.StatusInStock},
	})
	require.NoError(t, err)
}

func TestUnlinkResetsCopiesMatchedByVIN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedVINCopy(t, f)

	_, _, err := f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN, Status: types.StatusSold},
		types.ClientInfo{Name: "Ana", Phone: "1"}, "clerk")
	require.NoError(t, err)

	copyRec, err := f.repo.Find(ctx, types.StoreShowroom1, "room-7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSold, copyRec.Fields[types.FieldStatus])
	assert.Equal(t, "Ana", copyRec.Fields[types.FieldClientName])

	_, err = f.index.Unlink(ctx, "c1")
	require.NoError(t, err)

	copyRec, err = f.repo.Find(ctx, types.StoreShowroom1, "room-7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInStock, copyRec.Fields[types.FieldStatus])
	for _, field := range types.ClientFields {
		assert.Equal(t, "", copyRec.Fields[field], field)
	}
	assert.Equal(t, "Accord", copyRec.Fields[types.FieldModel])

	created, err := f.index.InitializeFromExistingData(ctx, "migration")
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestBackfillSkipsCopiesOfLinkedCars(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedVINCopy(t, f)

	_, _, err := f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN, Status: types.StatusSold},
		types.ClientInfo{Name: "Ana", Phone: "1"}, "clerk")
	require.NoError(t, err)

	created, err := f.index.InitializeFromExistingData(ctx, "migration")
	require.NoError(t, err)
	assert.Zero(t, created)

	links, err := f.index.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "c1", links[0].CarID)

	stats, err := f.index.DeliveryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sold)
}

func TestBackfillLinksOneCarHeldUnderTwoIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, s := range []struct{ store, id string }{{types.StoreShowroom1, "room-7"}, {types.StoreGarage, "bay-3"}} {
		_, err := f.repo.Upsert(ctx, s.store, types.EntityRecord{ID: s.id, Kind: types.KindVehicle, SecondaryKey: testVIN,
			Fields: map[string]any{types.FieldStatus: types.StatusReserved, types.FieldClientName: "Rui"}})
		require.NoError(t, err)
	}

	created, err := f.index.InitializeFromExistingData(ctx, "migration")
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	_, err = f.index.ClientFor(ctx, "room-7")
	assert.NoError(t, err)
	_, err = f.index.ClientFor(ctx, "bay-3")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestObserveMatchesLinkByVIN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedVINCopy(t, f)

	_, _, err := f.index.Link(ctx, "c1", types.CarAttributes{VIN: testVIN, Status: types.StatusSold},
		types.ClientInfo{Name: "Ana", Phone: "1"}, "clerk")
	require.NoError(t, err)

	sold, err := f.repo.Find(ctx, types.StoreShowroom1, "room-7")
	require.NoError(t, err)
	changed, err := f.index.Observe(ctx, types.StoreShowroom1, sold, "showroom")
	require.NoError(t, err)
	assert.False(t, changed, "the copy agrees with the existing link")

	links, err := f.index.Links(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	stock := types.EntityRecord{ID: "room-7", Kind: types.KindVehicle, SecondaryKey: testVIN,
		Fields: map[string]any{types.FieldStatus: types.StatusInStock}}
	changed, err = f.index.Observe(ctx, types.StoreShowroom1, stock, "showroom")
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = f.index.ClientFor(ctx, "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUnlinkMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.index.Unlink(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestClientForRecomputesIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.SaveClientLink(ctx, types.ClientCarLink{
		CarID:        "c9",
		SecondaryKey: "SHORT",
		Client:       types.ClientInfo{Name: "Ana", Phone: "1", SaleDate: at(f.now)},
		Integrity:    types.Integrity{VINVerified: true, AllDataPresent: true},
	}))

	got, err := f.index.ClientFor(ctx, "c9")
	require.NoError(t, err)
	assert.False(t, got.Integrity.VINVerified)
	assert.False(t, got.Integrity.AllDataPresent)
}

func seedLinks(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	seeds := []struct {
		car    string
		attrs  types.CarAttributes
		client types.ClientInfo
	}{
		{"c1", types.CarAttributes{VIN: "1HGCM82633A004352", Brand: "Honda", Model: "Accord", Status: types.StatusSold},
			types.ClientInfo{Name: "Élodie Martin", Phone: "+33600000001", DeliveryDate: at(f.now.Add(-24 * time.Hour))}},
		{"c2", types.CarAttributes{VIN: "WVWZZZ1JZXW000001", Brand: "Volkswagen", Model: "Golf", Status: types.StatusReserved},
			types.ClientInfo{Name: "Rui Costa", Phone: "+351900000002", DeliveryDate: at(f.now.Add(72 * time.Hour))}},
		{"c3", types.CarAttributes{VIN: "JH4KA7561PC008269", Brand: "Acura", Model: "Legend", Status: types.StatusReserved},
			types.ClientInfo{Name: "Ana Martins", Phone: "+351900000003"}},
	}
	for _, s := range seeds {
		_, _, err := f.index.Link(ctx, s.car, s.attrs, s.client, "clerk")
		require.NoError(t, err)
	}
}

func carIDs(links []types.ClientCarLink) []string {
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.CarID
	}
	return ids
}

func TestCarsForClient(t *testing.T) {
	f := newFixture(t)
	seedLinks(t, f)

	tests := []struct {
		name string
		q    string
		want []string
	}{
		{name: "exact phone", q: "+351900000002", want: []string{"c2"}},
		{name: "partial phone is not a match", q: "+3519", want: nil},
		{name: "name substring", q: "mart", want: []string{"c1", "c3"}},
		{name: "accented name folds case", q: "ÉLODIE", want: []string{"c1"}},
		{name: "blank", q: "  ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.index.CarsForClient(context.Background(), tt.q)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, carIDs(got))
		})
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	seedLinks(t, f)

	tests := []struct {
		name string
		q    string
		want []string
	}{
		{name: "vin fragment", q: "zxw0000", want: []string{"c2"}},
		{name: "model", q: "LEGEND", want: []string{"c3"}},
		{name: "brand", q: "honda", want: []string{"c1"}},
		{name: "client name", q: "costa", want: []string{"c2"}},
		{name: "phone fragment", q: "90000000", want: []string{"c2", "c3"}},
		{name: "blank returns all", q: "", want: []string{"c1", "c2", "c3"}},
		{name: "no match", q: "tesla", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.index.Search(context.Background(), tt.q)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, carIDs(got))
		})
	}
}

func TestDeliveryStats(t *testing.T) {
	f := newFixture(t)
	seedLinks(t, f)

	st, err := f.index.DeliveryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeliveryStats{Reserved: 2, Sold: 1, PendingDelivery: 2, OverdueDelivery: 1}, st)
}

func TestInitializeFromExistingData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := []struct {
		store string
		rec   types.EntityRecord
	}{
		{types.StoreShowroom1, types.EntityRecord{ID: "sold-1", Kind: types.KindVehicle, SecondaryKey: testVIN, Fields: map[string]any{
			types.FieldStatus: types.StatusSold, types.FieldClientName: "Ana", types.FieldClientPhone: "1",
			types.FieldSaleDate: "2026-02-01T10:00:00Z", types.FieldModel: "Accord", types.FieldYear: 2019.0,
		}}},
		{types.StoreGarage, types.EntityRecord{ID: "sold-1", Kind: types.KindVehicle, Fields: map[string]any{
			types.FieldStatus: types.StatusSold, types.FieldClientName: "Ana (garage copy)",
		}}},
		{types.StoreShowroom2, types.EntityRecord{ID: "res-1", Kind: types.KindVehicle, Fields: map[string]any{
			types.FieldStatus: types.StatusReserved, types.FieldClientName: "Rui", types.FieldVIN: "SHORT",
		}}},
		{types.StoreShowroom2, types.EntityRecord{ID: "stock-1", Kind: types.KindVehicle, Fields: map[string]any{
			types.FieldStatus: types.StatusInStock, types.FieldClientName: "Nobody",
		}}},
		{types.StoreShowroom2, types.EntityRecord{ID: "anon-1", Kind: types.KindVehicle, Fields: map[string]any{
			types.FieldStatus: types.StatusSold,
		}}},
		{types.StoreParts, types.EntityRecord{ID: "part-1", Kind: types.KindPart, Fields: map[string]any{
			types.FieldStatus: types.StatusSold, types.FieldClientName: "Workshop",
		}}},
		{types.StoreInventory, types.EntityRecord{ID: "linked-1", Kind: types.KindVehicle, Fields: map[string]any{
			types.FieldStatus: types.StatusSold, types.FieldClientName: "Stale",
		}}},
	}
	for _, s := range seed {
		_, err := f.repo.Upsert(ctx, s.store, s.rec)
		require.NoError(t, err)
	}
	require.NoError(t, f.repo.SaveClientLink(ctx, types.ClientCarLink{CarID: "linked-1", Client: types.ClientInfo{Name: "Existing"}}))

	created, err := f.index.InitializeFromExistingData(ctx, "migration")
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	sold, err := f.index.ClientFor(ctx, "sold-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", sold.Client.Name, "the first store in order supplies the data")
	assert.Equal(t, types.StatusSold, sold.Status)
	assert.Equal(t, types.StoreShowroom1, sold.Location)
	assert.Equal(t, 2019, sold.Car.Year)
	require.NotNil(t, sold.Client.SaleDate)
	assert.True(t, sold.Integrity.AllDataPresent)

	res, err := f.index.ClientFor(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, "SHORT", res.SecondaryKey)
	assert.Nil(t, res.Client.ReservationDate, "backfill does not invent dates")
	assert.False(t, res.Integrity.AllDataPresent)

	existing, err := f.index.ClientFor(ctx, "linked-1")
	require.NoError(t, err)
	assert.Equal(t, "Existing", existing.Client.Name)

	again, err := f.index.InitializeFromExistingData(ctx, "migration")
	require.NoError(t, err)
	assert.Zero(t, again)

	entries, err := f.audit.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, types.ActionBackfill, e.Action)
		assert.Equal(t, "migration", e.RecordedBy)
	}
}

func TestObserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sold := types.EntityRecord{ID: "c7", Kind: types.KindVehicle, SecondaryKey: testVIN, Fields: map[string]any{
		types.FieldStatus: types.StatusSold, types.FieldClientName: "Ana", types.FieldClientPhone: "1",
	}}

	changed, err := f.index.Observe(ctx, types.StoreShowroom1, sold, "showroom")
	require.NoError(t, err)
	assert.True(t, changed)

	link, err := f.index.ClientFor(ctx, "c7")
	require.NoError(t, err)
	assert.Equal(t, types.StoreShowroom1, link.Location)
	require.NotNil(t, link.Client.SaleDate, "linking defaults the sale date")

	changed, err = f.index.Observe(ctx, types.StoreShowroom1, sold, "showroom")
	require.NoError(t, err)
	assert.False(t, changed, "same status and client")

	changed, err = f.index.Observe(ctx, types.StoreGarage, types.EntityRecord{ID: "c7", Kind: types.KindPart,
		Fields: map[string]any{types.FieldStatus: types.StatusInStock}}, "garage")
	require.NoError(t, err)
	assert.False(t, changed, "other kinds are ignored")

	changed, err = f.index.Observe(ctx, types.StoreShowroom1, types.EntityRecord{ID: "c7", Kind: types.KindVehicle,
		Fields: map[string]any{types.FieldStatus: types.StatusInStock}}, "showroom")
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = f.index.ClientFor(ctx, "c7")
	assert.ErrorIs(t, err, types.ErrNotFound)

	changed, err = f.index.Observe(ctx, types.StoreShowroom1, types.EntityRecord{ID: "c8", Kind: types.KindVehicle,
		Fields: map[string]any{types.FieldStatus: types.StatusInStock}}, "showroom")
	require.NoError(t, err)
	assert.False(t, changed)
}
