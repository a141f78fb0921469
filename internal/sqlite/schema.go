package sqlite

// Schema DDL. Every table has an implicit rowid that preserves insertion
// order, which is the order callers observe when listing.
const (
	createRecords = `CREATE TABLE records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    store_name TEXT NOT NULL,
    id TEXT NOT NULL,
    kind TEXT NOT NULL,
    secondary_key TEXT,
    fields TEXT NOT NULL DEFAULT '{}',
    last_updated TEXT NOT NULL,
    UNIQUE (store_name, id)
);`

	createSyncLinks = `CREATE TABLE sync_links (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    source_store TEXT NOT NULL,
    target_store TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    direction TEXT NOT NULL,
    last_sync_time TEXT,
    status TEXT NOT NULL,
    error_detail TEXT,
    UNIQUE (source_store, target_store, entity_kind)
);`

	createSyncLog = `CREATE TABLE sync_log (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    source_store TEXT NOT NULL,
    target_store TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    record_id TEXT,
    success INTEGER NOT NULL,
    error_code TEXT,
    error TEXT
);`

	createClientCarLinks = `CREATE TABLE client_car_links (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    car_id TEXT NOT NULL UNIQUE,
    secondary_key TEXT,
    car TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    location TEXT,
    client TEXT NOT NULL DEFAULT '{}',
    last_updated TEXT NOT NULL,
    integrity TEXT NOT NULL DEFAULT '{}'
);`

	createIntegrityLog = `CREATE TABLE integrity_log (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    action TEXT NOT NULL,
    car_id TEXT NOT NULL,
    vin TEXT,
    status TEXT,
    client_name TEXT,
    client_phone TEXT,
    recorded_by TEXT,
    integrity TEXT NOT NULL DEFAULT '{}'
);`
)

// Index DDL for common queries.
const (
	idxRecordsSecondary  = `CREATE INDEX idx_records_secondary ON records(store_name, kind, secondary_key);`
	idxSyncLinksSource   = `CREATE INDEX idx_sync_links_source ON sync_links(source_store, entity_kind);`
	idxSyncLinksTarget   = `CREATE INDEX idx_sync_links_target ON sync_links(target_store, entity_kind);`
	idxClientLinksStatus = `CREATE INDEX idx_client_car_links_status ON client_car_links(status);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createRecords,
	createSyncLinks,
	createSyncLog,
	createClientCarLinks,
	createIntegrityLog,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxRecordsSecondary,
	idxSyncLinksSource,
	idxSyncLinksTarget,
	idxClientLinksStatus,
}
