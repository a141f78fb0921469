package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Links returns every sync link in registration order.
func (b *Backend) Links(ctx context.Context) ([]types.SyncLink, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	return b.listLinks(ctx)
}

// SaveLink inserts link or replaces the link with the same key, keeping
// its position.
func (b *Backend) SaveLink(ctx context.Context, link types.SyncLink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}

	var lastSync any
	if link.LastSyncTime != nil {
		lastSync = formatTime(*link.LastSyncTime)
	}
	_, err := b.db.ExecContext(ctx, `INSERT INTO sync_links
    (source_store, target_store, entity_kind, direction, last_sync_time, status, error_detail)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (source_store, target_store, entity_kind) DO UPDATE SET
    direction = excluded.direction,
    last_sync_time = excluded.last_sync_time,
    status = excluded.status,
    error_detail = excluded.error_detail`,
		link.SourceStore, link.TargetStore, string(link.EntityKind), string(link.Direction),
		lastSync, string(link.Status), link.ErrorDetail)
	if err != nil {
		return fmt.Errorf("saving link %s: %w", link.Key(), err)
	}
	return b.persist(syncLinksJSONL, b.linksPersister())
}

// DeleteLink removes the link with the given key.
func (b *Backend) DeleteLink(ctx context.Context, key types.LinkKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	res, err := b.db.ExecContext(ctx,
		"DELETE FROM sync_links WHERE source_store = ? AND target_store = ? AND entity_kind = ?",
		key.Source, key.Target, string(key.Kind))
	if err != nil {
		return fmt.Errorf("deleting link %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrLinkNotFound
	}
	return b.persist(syncLinksJSONL, b.linksPersister())
}

func (b *Backend) listLinks(ctx context.Context) ([]types.SyncLink, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT source_store, target_store, entity_kind, direction,
    last_sync_time, status, error_detail FROM sync_links ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying sync links: %w", err)
	}
	defer rows.Close()

	out := []types.SyncLink{}
	for rows.Next() {
		var (
			l                       types.SyncLink
			kind, direction, status string
			lastSync, errorDetail   sql.NullString
		)
		if err := rows.Scan(&l.SourceStore, &l.TargetStore, &kind, &direction, &lastSync, &status, &errorDetail); err != nil {
			return nil, fmt.Errorf("scanning sync link: %w", err)
		}
		l.EntityKind = types.Kind(kind)
		l.Direction = types.Direction(direction)
		l.Status = types.LinkStatus(status)
		l.ErrorDetail = errorDetail.String
		if lastSync.Valid && lastSync.String != "" {
			t, err := parseTime(lastSync.String)
			if err != nil {
				return nil, fmt.Errorf("parsing last_sync_time of %s: %w", l.Key(), err)
			}
			l.LastSyncTime = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (b *Backend) linksPersister() func() error {
	return func() error {
		links, err := b.listLinks(context.Background())
		if err != nil {
			return err
		}
		lines, err := encodeJSONL(links)
		if err != nil {
			return err
		}
		return writeJSONL(b.path(syncLinksJSONL), lines)
	}
}
