package types

import "context"

// RecordStore reads and writes the per-location stores.
type RecordStore interface {
	// Stores returns the store names in configuration order.
	Stores() []string

	// HasStore reports whether name is a configured store.
	HasStore(name string) bool

	// Records returns every record of store in insertion order.
	// Returns ErrStoreNotFound if the store is not configured.
	Records(ctx context.Context, store string) ([]EntityRecord, error)

	// Find returns the record with the given id.
	// Returns ErrNotFound if no record has that id.
	Find(ctx context.Context, store, id string) (EntityRecord, error)

	// FindBySecondaryKey returns the first record of kind whose secondary
	// key equals key. Returns ErrNotFound if none matches.
	FindBySecondaryKey(ctx context.Context, store string, kind Kind, key string) (EntityRecord, error)

	// Upsert merges rec into the record with the same id, or appends it
	// when none exists. Fields present in rec overwrite; absent fields are
	// preserved. LastUpdated is stamped. The stored result is returned.
	// Returns ErrInvalidID if rec.ID is empty.
	Upsert(ctx context.Context, store string, rec EntityRecord) (EntityRecord, error)

	// Remove deletes the record with the given id.
	// Returns ErrNotFound if no record has that id.
	Remove(ctx context.Context, store, id string) error
}

// LinkStore persists the declared sync links.
type LinkStore interface {
	// Links returns every link in registration order.
	Links(ctx context.Context) ([]SyncLink, error)

	// SaveLink inserts link, or replaces the link with the same key in
	// place.
	SaveLink(ctx context.Context, link SyncLink) error

	// DeleteLink removes the link with the given key.
	// Returns ErrLinkNotFound if there is none.
	DeleteLink(ctx context.Context, key LinkKey) error
}

// SyncLogStore is the append-only sync log.
type SyncLogStore interface {
	AppendSyncLog(ctx context.Context, entry SyncLogEntry) error
	SyncLog(ctx context.Context) ([]SyncLogEntry, error)
}

// ClientLinkStore persists ClientCarLinks keyed by car id.
type ClientLinkStore interface {
	ClientLinks(ctx context.Context) ([]ClientCarLink, error)

	// ClientLink returns the link for carID, or ErrNotFound.
	ClientLink(ctx context.Context, carID string) (ClientCarLink, error)

	// SaveClientLink inserts or replaces the link for link.CarID.
	SaveClientLink(ctx context.Context, link ClientCarLink) error

	// DeleteClientLink removes the link for carID, or returns ErrNotFound.
	DeleteClientLink(ctx context.Context, carID string) error
}

// IntegrityLogStore is the append-only integrity log.
type IntegrityLogStore interface {
	AppendIntegrityLog(ctx context.Context, entry IntegrityLogEntry) error
	IntegrityLog(ctx context.Context) ([]IntegrityLogEntry, error)
}

// Repository combines every collection the engine reads and writes. One
// instance is created per process and passed by reference to the registry,
// sync engine, linking index and audit log.
type Repository interface {
	RecordStore
	LinkStore
	SyncLogStore
	ClientLinkStore
	IntegrityLogStore
}

// Backend is a Repository with an attach/detach lifecycle.
type Backend interface {
	Repository

	// Attach connects the backend to the storage described by config.
	// Returns ErrAlreadyAttached if called while attached.
	Attach(config Config) error

	// Detach releases resources and flushes pending writes. Idempotent.
	// After Detach, operations return ErrDetached.
	Detach() error
}
