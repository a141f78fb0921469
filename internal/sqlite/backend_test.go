package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

func attachTestBackend(t *testing.T, dir string, mutate ...func(*types.Config)) *Backend {
	t.Helper()
	config := types.Config{Backend: types.BackendSQLite, DataDir: dir}
	for _, m := range mutate {
		m(&config)
	}
	b := NewBackend()
	require.NoError(t, b.Attach(config))
	return b
}

func TestBackendAttach(t *testing.T) {
	dir := t.TempDir()
	b := attachTestBackend(t, dir)
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, dbFileName))
	assert.NoError(t, err, "database file should exist")

	for _, store := range types.DefaultStoreNames {
		_, err := os.Stat(filepath.Join(dir, storeJSONL(store)))
		assert.NoError(t, err, "%s should be created", storeJSONL(store))
	}
	for _, m := range collectionMappings {
		_, err := os.Stat(filepath.Join(dir, m.file))
		assert.NoError(t, err, "%s should be created", m.file)
	}

	err = b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	assert.ErrorIs(t, err, types.ErrAlreadyAttached)
}

func TestBackendAttachRejectsInvalidConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{}), types.ErrBackendEmpty)

	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir(), Stores: []string{"../escape"}})
	assert.ErrorIs(t, err, types.ErrStoreNameInvalid)
}

func TestBackendDetach(t *testing.T) {
	b := attachTestBackend(t, t.TempDir())

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "second Detach should be a no-op")

	_, err := b.Records(context.Background(), types.StoreInventory)
	assert.ErrorIs(t, err, types.ErrDetached)
	_, err = b.Links(context.Background())
	assert.ErrorIs(t, err, types.ErrDetached)
	assert.False(t, b.HasStore(types.StoreInventory))
}

func TestRecordsCRUD(t *testing.T) {
	b := attachTestBackend(t, t.TempDir())
	defer b.Detach()
	ctx := context.Background()

	_, err := b.Records(ctx, "nowhere")
	assert.ErrorIs(t, err, types.ErrStoreNotFound)

	rec := types.EntityRecord{
		ID:           "car-1",
		Kind:         types.KindVehicle,
		SecondaryKey: "WVWZZZ1JZXW000001",
		Fields:       map[string]any{"brand": "VW", "model": "Golf", "color": "red"},
	}
	stored, err := b.Upsert(ctx, types.StoreInventory, rec)
	require.NoError(t, err)
	assert.False(t, stored.LastUpdated.IsZero())

	merged, err := b.Upsert(ctx, types.StoreInventory, types.EntityRecord{
		ID: "car-1", Kind: types.KindVehicle, Fields: map[string]any{"color": "blue"},
	})
	require.NoError(t, err)
	assert.Equal(t, "VW", merged.Fields["brand"])
	assert.Equal(t, "blue", merged.Fields["color"])
	assert.Equal(t, "WVWZZZ1JZXW000001", merged.SecondaryKey)

	got, err := b.Find(ctx, types.StoreInventory, "car-1")
	require.NoError(t, err)
	assert.Equal(t, "blue", got.Fields["color"])
	assert.Equal(t, "Golf", got.Fields["model"])

	bySecondary, err := b.FindBySecondaryKey(ctx, types.StoreInventory, types.KindVehicle, "WVWZZZ1JZXW000001")
	require.NoError(t, err)
	assert.Equal(t, "car-1", bySecondary.ID)

	_, err = b.FindBySecondaryKey(ctx, types.StoreInventory, types.KindPart, "WVWZZZ1JZXW000001")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = b.Upsert(ctx, types.StoreInventory, types.EntityRecord{Kind: types.KindVehicle})
	assert.ErrorIs(t, err, types.ErrInvalidID)

	require.NoError(t, b.Remove(ctx, types.StoreInventory, "car-1"))
	assert.ErrorIs(t, b.Remove(ctx, types.StoreInventory, "car-1"), types.ErrNotFound)
	_, err = b.Find(ctx, types.StoreInventory, "car-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRecordsInsertionOrder(t *testing.T) {
	b := attachTestBackend(t, t.TempDir())
	defer b.Detach()
	ctx := context.Background()

	for _, id := range []string{"c3", "c1", "c2"} {
		_, err := b.Upsert(ctx, types.StoreGarage, types.EntityRecord{ID: id, Kind: types.KindVehicle})
		require.NoError(t, err)
	}
	_, err := b.Upsert(ctx, types.StoreGarage, types.EntityRecord{ID: "c1", Fields: map[string]any{"bay": "2"}})
	require.NoError(t, err)

	recs, err := b.Records(ctx, types.StoreGarage)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "c3", recs[0].ID)
	assert.Equal(t, "c1", recs[1].ID)
	assert.Equal(t, "c2", recs[2].ID)
	assert.Equal(t, types.KindVehicle, recs[1].Kind, "merge keeps the stored kind")
}

func TestLinksSaveAndDelete(t *testing.T) {
	b := attachTestBackend(t, t.TempDir())
	defer b.Detach()
	ctx := context.Background()

	first := types.SyncLink{SourceStore: "scan-vin", TargetStore: "car-inventory", EntityKind: types.KindVehicle, Direction: types.SourceToTarget, Status: types.LinkPending}
	second := types.SyncLink{SourceStore: "garage", TargetStore: "repair-history", EntityKind: types.KindRepair, Direction: types.SourceToTarget, Status: types.LinkPending}
	require.NoError(t, b.SaveLink(ctx, first))
	require.NoError(t, b.SaveLink(ctx, second))

	now := b.now()
	first.Status = types.LinkSuccess
	first.LastSyncTime = &now
	require.NoError(t, b.SaveLink(ctx, first))

	links, err := b.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, first.Key(), links[0].Key(), "replacement keeps position")
	assert.Equal(t, types.LinkSuccess, links[0].Status)
	require.NotNil(t, links[0].LastSyncTime)
	assert.True(t, now.Equal(*links[0].LastSyncTime))
	assert.Nil(t, links[1].LastSyncTime)

	require.NoError(t, b.DeleteLink(ctx, second.Key()))
	assert.ErrorIs(t, b.DeleteLink(ctx, second.Key()), types.ErrLinkNotFound)
}

func TestClientLinksSaveAndDelete(t *testing.T) {
	b := attachTestBackend(t, t.TempDir())
	defer b.Detach()
	ctx := context.Background()

	reserved := b.now()
	link := types.ClientCarLink{
		CarID:        "car-1",
		SecondaryKey: "WVWZZZ1JZXW000001",
		Car:          types.CarAttributes{VIN: "WVWZZZ1JZXW000001", Brand: "VW", Year: 2021},
		Status:       types.StatusReserved,
		Client:       types.ClientInfo{Name: "Ana", Phone: "555-0101", ReservationDate: &reserved},
		LastUpdated:  reserved,
	}
	link.Integrity = types.ComputeIntegrity(link.SecondaryKey, link.Client, reserved, "clerk")
	require.NoError(t, b.SaveClientLink(ctx, link))

	got, err := b.ClientLink(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Client.Name)
	assert.Equal(t, 2021, got.Car.Year)
	require.NotNil(t, got.Client.ReservationDate)
	assert.True(t, reserved.Equal(*got.Client.ReservationDate))
	assert.True(t, got.Integrity.AllDataPresent)

	link.Status = types.StatusSold
	require.NoError(t, b.SaveClientLink(ctx, link))
	all, err := b.ClientLinks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.StatusSold, all[0].Status)

	require.NoError(t, b.DeleteClientLink(ctx, "car-1"))
	assert.ErrorIs(t, b.DeleteClientLink(ctx, "car-1"), types.ErrNotFound)
	_, err = b.ClientLink(ctx, "car-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRoundTripAcrossDetach(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b := attachTestBackend(t, dir)
	_, err := b.Upsert(ctx, types.StoreInventory, types.EntityRecord{
		ID: "car-1", Kind: types.KindVehicle, SecondaryKey: "VIN0000000001",
		Fields: map[string]any{"brand": "Skoda", "year": 2020},
	})
	require.NoError(t, err)
	_, err = b.Upsert(ctx, types.StoreScanVIN, types.EntityRecord{ID: "empty", Kind: types.KindVehicle})
	require.NoError(t, err)
	require.NoError(t, b.SaveLink(ctx, types.SyncLink{
		SourceStore: "scan-vin", TargetStore: "car-inventory", EntityKind: types.KindVehicle,
		Direction: types.SourceToTarget, Status: types.LinkError, ErrorDetail: "boom",
	}))
	require.NoError(t, b.AppendSyncLog(ctx, types.SyncLogEntry{
		ID: "log-1", Timestamp: b.now(), Source: "scan-vin", Target: "car-inventory",
		Kind: types.KindVehicle, RecordID: "car-1", Success: true,
	}))
	require.NoError(t, b.AppendSyncLog(ctx, types.SyncLogEntry{
		ID: "log-2", Timestamp: b.now(), Source: "scan-vin", Target: "garage",
		Kind: types.KindVehicle, ErrorCode: types.ErrCodeConfiguration, Error: "store not found",
	}))
	require.NoError(t, b.SaveClientLink(ctx, types.ClientCarLink{
		CarID: "car-1", Status: types.StatusSold, Client: types.ClientInfo{Name: "Ana", Phone: "1"},
		LastUpdated: b.now(),
	}))
	require.NoError(t, b.AppendIntegrityLog(ctx, types.IntegrityLogEntry{
		ID: "i-1", Timestamp: b.now(), Action: types.ActionLink, CarID: "car-1",
		Integrity: types.Integrity{ClientVerified: true},
	}))
	require.NoError(t, b.Detach())

	b2 := attachTestBackend(t, dir)
	defer b2.Detach()

	recs, err := b2.Records(ctx, types.StoreInventory)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Skoda", recs[0].Fields["brand"])
	assert.Equal(t, float64(2020), recs[0].Fields["year"])
	assert.Equal(t, "VIN0000000001", recs[0].SecondaryKey)

	empty, err := b2.Find(ctx, types.StoreScanVIN, "empty")
	require.NoError(t, err, "a record with no fields survives the round trip")
	assert.Empty(t, empty.Fields)

	links, err := b2.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, types.LinkError, links[0].Status)
	assert.Equal(t, "boom", links[0].ErrorDetail)

	syncLog, err := b2.SyncLog(ctx)
	require.NoError(t, err)
	require.Len(t, syncLog, 2)
	assert.True(t, syncLog[0].Success)
	assert.False(t, syncLog[1].Success)
	assert.Equal(t, types.ErrCodeConfiguration, syncLog[1].ErrorCode)

	cl, err := b2.ClientLink(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", cl.Client.Name)

	integrity, err := b2.IntegrityLog(ctx)
	require.NoError(t, err)
	require.Len(t, integrity, 1)
	assert.True(t, integrity[0].Integrity.ClientVerified)
}

func TestSyncStrategyImmediateDefault(t *testing.T) {
	dir := t.TempDir()
	b := attachTestBackend(t, dir)
	defer b.Detach()

	assert.Equal(t, types.SyncImmediate, b.syncStrategy)

	_, err := b.Upsert(context.Background(), types.StoreGarage, types.EntityRecord{ID: "c1", Kind: types.KindVehicle})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, storeJSONL(types.StoreGarage)))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestUpsertRollsBackWhenJSONLWriteFails(t *testing.T) {
	dir := t.TempDir()
	b := attachTestBackend(t, dir)
	defer b.Detach()
	ctx := context.Background()

	_, err := b.Upsert(ctx, types.StoreGarage, types.EntityRecord{
		ID: "c1", Kind: types.KindVehicle, Fields: map[string]any{"color": "red"},
	})
	require.NoError(t, err)

	// A non-empty directory in place of the store file makes the rename fail.
	file := filepath.Join(dir, storeJSONL(types.StoreGarage))
	require.NoError(t, os.Remove(file))
	require.NoError(t, os.MkdirAll(filepath.Join(file, "blocker"), 0o755))

	_, err = b.Upsert(ctx, types.StoreGarage, types.EntityRecord{
		ID: "c1", Kind: types.KindVehicle, Fields: map[string]any{"color": "blue"},
	})
	require.Error(t, err)
	_, err = b.Upsert(ctx, types.StoreGarage, types.EntityRecord{ID: "c2", Kind: types.KindVehicle})
	require.Error(t, err)

	got, err := b.Find(ctx, types.StoreGarage, "c1")
	require.NoError(t, err)
	assert.Equal(t, "red", got.Fields["color"])
	_, err = b.Find(ctx, types.StoreGarage, "c2")
	assert.ErrorIs(t, err, types.ErrNotFound)

	recs, err := b.Records(ctx, types.StoreGarage)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSyncStrategyOnCloseDefersWrites(t *testing.T) {
	dir := t.TempDir()
	b := attachTestBackend(t, dir, func(c *types.Config) { c.SyncStrategy = types.SyncOnClose })

	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := b.Upsert(ctx, types.StoreGarage, types.EntityRecord{ID: id, Kind: types.KindVehicle})
		require.NoError(t, err)
	}
	require.NoError(t, b.AppendSyncLog(ctx, types.SyncLogEntry{ID: "l1", Source: "a", Target: "b", Kind: types.KindVehicle}))

	path := filepath.Join(dir, storeJSONL(types.StoreGarage))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "writes are deferred until Detach")

	b.batchMu.Lock()
	pending := len(b.pendingWrites)
	b.batchMu.Unlock()
	assert.Equal(t, 4, pending)

	require.NoError(t, b.Detach())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	logData, err := os.ReadFile(filepath.Join(dir, syncLogJSONL))
	require.NoError(t, err)
	assert.NotEmpty(t, logData)
}

func TestSyncStrategyBatchFlushAtThreshold(t *testing.T) {
	dir := t.TempDir()
	b := attachTestBackend(t, dir, func(c *types.Config) {
		c.SyncStrategy = types.SyncBatch
		c.BatchSize = 3
		c.BatchInterval = 60
	})
	defer b.Detach()

	ctx := context.Background()
	path := filepath.Join(dir, storeJSONL(types.StoreGarage))

	for _, id := range []string{"c1", "c2"} {
		_, err := b.Upsert(ctx, types.StoreGarage, types.EntityRecord{ID: id, Kind: types.KindVehicle})
		require.NoError(t, err)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "below threshold nothing is flushed")

	_, err = b.Upsert(ctx, types.StoreGarage, types.EntityRecord{ID: "c3", Kind: types.KindVehicle})
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "threshold triggers a flush")
}
