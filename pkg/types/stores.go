package types

// Standard store names. Each one is a workflow location holding its own
// collection of EntityRecords.
const (
	StoreInventory      = "car-inventory"
	StoreShowroom1      = "showroom-1"
	StoreShowroom2      = "showroom-2"
	StoreGarage         = "garage"
	StoreGarageSchedule = "garage-schedule"
	StoreRepairHistory  = "repair-history"
	StoreScanVIN        = "scan-vin"
	StoreScanPart       = "scan-part"
	StoreParts          = "part-management"
	StoreTestDriveLog   = "test-drive-log"
	StoreOrders         = "orders"
	StorePartOrders     = "part-orders"
	StoreClients        = "clients"
)

// Cross-cutting collection names. These are persisted next to the stores
// but are not stores themselves: Repository.HasStore reports false for them.
const (
	CollectionSyncLinks    = "sync-links"
	CollectionSyncLog      = "sync-log"
	CollectionClientLinks  = "client-car-links"
	CollectionIntegrityLog = "integrity-log"
)

// DefaultStoreNames lists the stores a backend exposes when Config.Stores
// is empty.
var DefaultStoreNames = []string{
	StoreInventory,
	StoreShowroom1,
	StoreShowroom2,
	StoreGarage,
	StoreGarageSchedule,
	StoreRepairHistory,
	StoreScanVIN,
	StoreScanPart,
	StoreParts,
	StoreTestDriveLog,
	StoreOrders,
	StorePartOrders,
	StoreClients,
}

// IsCollectionName reports whether name is reserved for a cross-cutting
// collection and therefore cannot be used as a store name.
func IsCollectionName(name string) bool {
	switch name {
	case CollectionSyncLinks, CollectionSyncLog, CollectionClientLinks, CollectionIntegrityLog:
		return true
	}
	return false
}
