package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

const selectRecord = "SELECT id, kind, secondary_key, fields, last_updated FROM records"

// Records returns every record of store in insertion order.
func (b *Backend) Records(ctx context.Context, store string) ([]types.EntityRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkStoreLocked(store); err != nil {
		return nil, err
	}
	return b.listRecords(ctx, b.db, store)
}

// Find returns the record of store with the given id.
func (b *Backend) Find(ctx context.Context, store, id string) (types.EntityRecord, error) {
	if id == "" {
		return types.EntityRecord{}, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkStoreLocked(store); err != nil {
		return types.EntityRecord{}, err
	}
	return b.findRecord(ctx, store, id)
}

// FindBySecondaryKey returns the first record of kind in store whose
// secondary key equals key.
func (b *Backend) FindBySecondaryKey(ctx context.Context, store string, kind types.Kind, key string) (types.EntityRecord, error) {
	if key == "" {
		return types.EntityRecord{}, types.ErrNotFound
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkStoreLocked(store); err != nil {
		return types.EntityRecord{}, err
	}
	row := b.db.QueryRowContext(ctx,
		selectRecord+" WHERE store_name = ? AND kind = ? AND secondary_key = ? ORDER BY seq LIMIT 1",
		store, string(kind), key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.EntityRecord{}, types.ErrNotFound
	}
	return rec, err
}

// Upsert merges rec into the record with the same id or appends it, then
// persists the store file.
func (b *Backend) Upsert(ctx context.Context, store string, rec types.EntityRecord) (types.EntityRecord, error) {
	if rec.ID == "" {
		return types.EntityRecord{}, types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkStoreLocked(store); err != nil {
		return types.EntityRecord{}, err
	}

	existing, err := b.findRecord(ctx, store, rec.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return types.EntityRecord{}, err
	}

	var stored types.EntityRecord
	if exists {
		stored = existing.Merge(rec)
	} else {
		stored = rec.Clone()
		if stored.Fields == nil {
			stored.Fields = make(map[string]any)
		}
	}
	stored.LastUpdated = b.now()

	fields, err := json.Marshal(stored.Fields)
	if err != nil {
		return types.EntityRecord{}, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	lastUpdated := formatTime(stored.LastUpdated)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return types.EntityRecord{}, fmt.Errorf("begin upsert %s: %w", stored.ID, err)
	}
	defer tx.Rollback()

	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE records SET secondary_key = ?, fields = ?, last_updated = ? WHERE store_name = ? AND id = ?",
			stored.SecondaryKey, string(fields), lastUpdated, store, stored.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO records (store_name, id, kind, secondary_key, fields, last_updated) VALUES (?, ?, ?, ?, ?, ?)",
			store, stored.ID, string(stored.Kind), stored.SecondaryKey, string(fields), lastUpdated)
	}
	if err != nil {
		return types.EntityRecord{}, fmt.Errorf("persisting record %s: %w", stored.ID, err)
	}

	// Under the immediate strategy the row is committed only once the
	// JSONL file holds it.
	if b.shouldPersistImmediately() {
		if err := b.writeStoreFile(ctx, tx, store); err != nil {
			return types.EntityRecord{}, fmt.Errorf("persisting %s: %w", storeJSONL(store), err)
		}
		if err := tx.Commit(); err != nil {
			return types.EntityRecord{}, fmt.Errorf("commit upsert %s: %w", stored.ID, err)
		}
		return stored, nil
	}
	if err := tx.Commit(); err != nil {
		return types.EntityRecord{}, fmt.Errorf("commit upsert %s: %w", stored.ID, err)
	}
	b.queueWrite(storeJSONL(store), b.storePersister(store))
	return stored, nil
}

// Remove deletes the record of store with the given id.
func (b *Backend) Remove(ctx context.Context, store, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkStoreLocked(store); err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, "DELETE FROM records WHERE store_name = ? AND id = ?", store, id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return b.persist(storeJSONL(store), b.storePersister(store))
}

func (b *Backend) findRecord(ctx context.Context, store, id string) (types.EntityRecord, error) {
	row := b.db.QueryRowContext(ctx, selectRecord+" WHERE store_name = ? AND id = ?", store, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.EntityRecord{}, types.ErrNotFound
	}
	return rec, err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (b *Backend) listRecords(ctx context.Context, q queryer, store string) ([]types.EntityRecord, error) {
	rows, err := q.QueryContext(ctx, selectRecord+" WHERE store_name = ? ORDER BY seq", store)
	if err != nil {
		return nil, fmt.Errorf("querying store %s: %w", store, err)
	}
	defer rows.Close()

	out := []types.EntityRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// storePersister returns the function that rewrites the JSONL file of
// store from the database.
func (b *Backend) storePersister(store string) func() error {
	return func() error {
		return b.writeStoreFile(context.Background(), b.db, store)
	}
}

// writeStoreFile rewrites the JSONL file of store from the rows visible
// through q.
func (b *Backend) writeStoreFile(ctx context.Context, q queryer, store string) error {
	recs, err := b.listRecords(ctx, q, store)
	if err != nil {
		return err
	}
	lines, err := encodeJSONL(recs)
	if err != nil {
		return err
	}
	return writeJSONL(b.path(storeJSONL(store)), lines)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (types.EntityRecord, error) {
	var (
		rec          types.EntityRecord
		kind         string
		secondaryKey sql.NullString
		fields       string
		lastUpdated  string
	)
	if err := row.Scan(&rec.ID, &kind, &secondaryKey, &fields, &lastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scanning record: %w", err)
	}
	rec.Kind = types.Kind(kind)
	rec.SecondaryKey = secondaryKey.String
	rec.Fields = make(map[string]any)
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return rec, fmt.Errorf("%w: record %s fields: %v", types.ErrInvalidData, rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	t, err := parseTime(lastUpdated)
	if err != nil {
		return rec, fmt.Errorf("parsing record %s last_updated: %w", rec.ID, err)
	}
	rec.LastUpdated = t
	return rec, nil
}

// parseTime parses a stored timestamp. An empty string is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
