package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// AppendSyncLog records a sync attempt and appends it to sync-log.jsonl.
func (b *Backend) AppendSyncLog(ctx context.Context, entry types.SyncLogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	_, err := b.db.ExecContext(ctx, `INSERT INTO sync_log
    (id, timestamp, source_store, target_store, entity_kind, record_id, success, error_code, error)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, formatTime(entry.Timestamp), entry.Source, entry.Target, string(entry.Kind),
		entry.RecordID, entry.Success, string(entry.ErrorCode), entry.Error)
	if err != nil {
		return fmt.Errorf("appending sync log: %w", err)
	}
	return b.appendLine(syncLogJSONL, entry)
}

// SyncLog returns the sync log oldest first.
func (b *Backend) SyncLog(ctx context.Context) ([]types.SyncLogEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, timestamp, source_store, target_store, entity_kind,
    record_id, success, error_code, error FROM sync_log ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying sync log: %w", err)
	}
	defer rows.Close()

	out := []types.SyncLogEntry{}
	for rows.Next() {
		var (
			e                          types.SyncLogEntry
			ts, kind                   string
			recordID, code, errMessage sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Source, &e.Target, &kind, &recordID, &e.Success, &code, &errMessage); err != nil {
			return nil, fmt.Errorf("scanning sync log: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing sync log timestamp: %w", err)
		}
		e.Kind = types.Kind(kind)
		e.RecordID = recordID.String
		e.ErrorCode = types.ErrorCode(code.String)
		e.Error = errMessage.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendIntegrityLog records a link change and appends it to
// integrity-log.jsonl.
func (b *Backend) AppendIntegrityLog(ctx context.Context, entry types.IntegrityLogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	integrity, err := json.Marshal(entry.Integrity)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO integrity_log
    (id, timestamp, action, car_id, vin, status, client_name, client_phone, recorded_by, integrity)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, formatTime(entry.Timestamp), entry.Action, entry.CarID, entry.VIN, entry.Status,
		entry.ClientName, entry.ClientPhone, entry.RecordedBy, string(integrity))
	if err != nil {
		return fmt.Errorf("appending integrity log: %w", err)
	}
	return b.appendLine(integrityLogJSONL, entry)
}

// IntegrityLog returns the integrity log oldest first.
func (b *Backend) IntegrityLog(ctx context.Context) ([]types.IntegrityLogEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, timestamp, action, car_id, vin, status,
    client_name, client_phone, recorded_by, integrity FROM integrity_log ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying integrity log: %w", err)
	}
	defer rows.Close()

	out := []types.IntegrityLogEntry{}
	for rows.Next() {
		var (
			e                                    types.IntegrityLogEntry
			ts, integrity                        string
			vin, status, name, phone, recordedBy sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Action, &e.CarID, &vin, &status, &name, &phone, &recordedBy, &integrity); err != nil {
			return nil, fmt.Errorf("scanning integrity log: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing integrity log timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(integrity), &e.Integrity); err != nil {
			return nil, fmt.Errorf("%w: integrity of %s: %v", types.ErrInvalidData, e.ID, err)
		}
		e.VIN = vin.String
		e.Status = status.String
		e.ClientName = name.String
		e.ClientPhone = phone.String
		e.RecordedBy = recordedBy.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// appendLine persists one log entry by appending to file.
// The caller must hold b.mu.
func (b *Backend) appendLine(file string, entry any) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling %s entry: %w", file, err)
	}
	path := b.path(file)
	return b.persist(file, func() error {
		return appendJSONL(path, line)
	})
}
