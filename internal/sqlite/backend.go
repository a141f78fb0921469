// Package sqlite implements the SQLite storage backend for carsync.
//
// SQLite is the query engine; JSONL files in DataDir are the source of
// truth. Attach recreates the database from the JSONL files, and every
// mutation rewrites (or appends to) the affected file according to the
// configured sync strategy.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

var _ types.Backend = (*Backend)(nil)

// Backend implements types.Backend on SQLite with JSONL persistence.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	stores   []string
	storeSet map[string]bool

	syncStrategy  string         // effective sync strategy: immediate, on_close, batch
	batchSize     int            // number of writes before batch flush
	batchInterval time.Duration  // time between batch flushes
	pendingWrites []pendingWrite // queue of writes pending JSONL persist
	batchTimer    *time.Timer    // timer for interval-based batch flush
	batchMu       sync.Mutex     // protects pendingWrites and batchTimer

	now func() time.Time
}

// pendingWrite is a deferred JSONL write, used by the on_close and batch
// sync strategies.
type pendingWrite struct {
	file    string
	persist func() error
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{now: func() time.Time { return time.Now().UTC() }}
}

// Attach creates DataDir if needed, builds a fresh SQLite schema and loads
// every JSONL file into it.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	stores := config.GetStores()
	for _, name := range stores {
		if !validStoreFileName(name) {
			return fmt.Errorf("%w: %q", types.ErrStoreNameInvalid, name)
		}
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// The database is a cache of the JSONL files and is rebuilt on attach.
	dbPath := filepath.Join(dataDir, dbFileName)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	// A single connection serializes writers and keeps the schema visible
	// to every query.
	db.SetMaxOpenConns(1)

	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := initJSONLFiles(dataDir, stores); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, dataDir, stores); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	config.DataDir = dataDir
	b.db = db
	b.config = config
	b.stores = stores
	b.storeSet = make(map[string]bool, len(stores))
	for _, name := range stores {
		b.storeSet[name] = true
	}

	b.syncStrategy = config.GetSyncStrategy()
	b.batchSize = config.GetBatchSize()
	b.batchInterval = time.Duration(config.GetBatchInterval()) * time.Second
	b.pendingWrites = nil
	b.attached = true

	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}
	return nil
}

// Detach flushes pending writes and closes the database. Detach is
// idempotent; after Detach every operation returns ErrDetached.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.stopBatchTimer()

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.stores = nil
	b.storeSet = nil
	return nil
}

// Stores returns the configured store names.
func (b *Backend) Stores() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.stores))
	copy(out, b.stores)
	return out
}

// HasStore reports whether name is a configured store.
func (b *Backend) HasStore(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.storeSet[name]
}

// initJSONLFiles creates an empty JSONL file for every store and
// collection that does not have one yet.
func initJSONLFiles(dataDir string, stores []string) error {
	for _, store := range stores {
		if err := ensureFile(filepath.Join(dataDir, storeJSONL(store))); err != nil {
			return err
		}
	}
	for _, m := range collectionMappings {
		if err := ensureFile(filepath.Join(dataDir, m.file)); err != nil {
			return err
		}
	}
	return nil
}

// path returns the absolute path of a file inside DataDir.
func (b *Backend) path(file string) string {
	return filepath.Join(b.config.DataDir, file)
}

// checkStoreLocked returns ErrDetached or ErrStoreNotFound as appropriate.
// The caller must hold b.mu.
func (b *Backend) checkStoreLocked(store string) error {
	if !b.attached {
		return types.ErrDetached
	}
	if !b.storeSet[store] {
		return types.ErrStoreNotFound
	}
	return nil
}

// Sync strategy dispatch.

// persist runs fn now under the immediate strategy, or queues it.
// The caller must hold b.mu.
func (b *Backend) persist(file string, fn func() error) error {
	if b.shouldPersistImmediately() {
		return fn()
	}
	b.queueWrite(file, fn)
	return nil
}

// shouldPersistImmediately returns true for the "immediate" strategy.
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// queueWrite adds a write to the pending queue. Under the batch strategy
// the queue is flushed as soon as it reaches the batch size.
// The caller must hold b.mu (read or write lock).
func (b *Backend) queueWrite(file string, persist func() error) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	b.pendingWrites = append(b.pendingWrites, pendingWrite{file: file, persist: persist})

	if b.syncStrategy == types.SyncBatch && b.batchSize > 0 && len(b.pendingWrites) >= b.batchSize {
		_ = b.flushPendingWritesBatchLocked()
	}
}

// flushPendingWritesLocked flushes all pending writes to JSONL files.
// The caller must hold b.mu write lock.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked executes all pending writes in order. On
// failure the remaining writes stay queued so a later flush retries them.
// The caller must hold b.batchMu.
func (b *Backend) flushPendingWritesBatchLocked() error {
	for len(b.pendingWrites) > 0 {
		pw := b.pendingWrites[0]
		if err := pw.persist(); err != nil {
			return fmt.Errorf("flush %s: %w", pw.file, err)
		}
		b.pendingWrites = b.pendingWrites[1:]
	}
	b.pendingWrites = nil
	return nil
}

// startBatchTimer starts the batch interval timer for periodic flushes.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}

	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.attached {
			return
		}

		_ = b.flushPendingWritesLocked()

		b.batchMu.Lock()
		if b.batchTimer != nil && b.attached {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the batch interval timer if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}
