package sqlite

import "path/filepath"

// File names inside DataDir. Each configured store is persisted to
// "<store>.jsonl"; the four engine collections use fixed names.
const (
	dbFileName = "carsync.db"

	syncLinksJSONL    = "sync-links.jsonl"
	syncLogJSONL      = "sync-log.jsonl"
	clientLinksJSONL  = "client-car-links.jsonl"
	integrityLogJSONL = "integrity-log.jsonl"
)

// storeJSONL returns the JSONL file name of a store.
func storeJSONL(store string) string {
	return store + ".jsonl"
}

// validStoreFileName reports whether a store name can be used as a file
// name inside DataDir.
func validStoreFileName(store string) bool {
	return store != "" && store != "." && store != ".." && filepath.Base(store) == store
}

// collectionMapping maps a JSONL file to its SQLite table. The columns are
// the JSON keys of the persisted type; defaults fill NOT NULL columns whose
// key was omitted from a line.
type collectionMapping struct {
	file     string
	table    string
	columns  []string
	defaults map[string]any
}

var recordColumns = []string{"id", "kind", "secondary_key", "fields", "last_updated"}

var recordDefaults = map[string]any{"fields": "{}"}

// collectionMappings lists the engine collections in load order.
var collectionMappings = []collectionMapping{
	{
		file:    syncLinksJSONL,
		table:   "sync_links",
		columns: []string{"source_store", "target_store", "entity_kind", "direction", "last_sync_time", "status", "error_detail"},
		defaults: map[string]any{
			"status": "pending",
		},
	},
	{
		file:    syncLogJSONL,
		table:   "sync_log",
		columns: []string{"id", "timestamp", "source_store", "target_store", "entity_kind", "record_id", "success", "error_code", "error"},
		defaults: map[string]any{
			"success": false,
		},
	},
	{
		file:    clientLinksJSONL,
		table:   "client_car_links",
		columns: []string{"car_id", "secondary_key", "car", "status", "location", "client", "last_updated", "integrity"},
		defaults: map[string]any{
			"car":       "{}",
			"client":    "{}",
			"integrity": "{}",
		},
	},
	{
		file:    integrityLogJSONL,
		table:   "integrity_log",
		columns: []string{"id", "timestamp", "action", "car_id", "vin", "status", "client_name", "client_phone", "recorded_by", "integrity"},
		defaults: map[string]any{
			"integrity": "{}",
		},
	},
}
