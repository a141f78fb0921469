package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

const selectClientLink = `SELECT car_id, secondary_key, car, status, location, client,
    last_updated, integrity FROM client_car_links`

// ClientLinks returns every client-car link in creation order.
func (b *Backend) ClientLinks(ctx context.Context) ([]types.ClientCarLink, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	return b.listClientLinks(ctx)
}

// ClientLink returns the link for carID.
func (b *Backend) ClientLink(ctx context.Context, carID string) (types.ClientCarLink, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ClientCarLink{}, types.ErrDetached
	}
	link, err := scanClientLink(b.db.QueryRowContext(ctx, selectClientLink+" WHERE car_id = ?", carID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.ClientCarLink{}, types.ErrNotFound
	}
	return link, err
}

// SaveClientLink inserts or replaces the link for link.CarID.
func (b *Backend) SaveClientLink(ctx context.Context, link types.ClientCarLink) error {
	if link.CarID == "" {
		return types.ErrInvalidID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}

	car, err := json.Marshal(link.Car)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	client, err := json.Marshal(link.Client)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	integrity, err := json.Marshal(link.Integrity)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}

	_, err = b.db.ExecContext(ctx, `INSERT INTO client_car_links
    (car_id, secondary_key, car, status, location, client, last_updated, integrity)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (car_id) DO UPDATE SET
    secondary_key = excluded.secondary_key,
    car = excluded.car,
    status = excluded.status,
    location = excluded.location,
    client = excluded.client,
    last_updated = excluded.last_updated,
    integrity = excluded.integrity`,
		link.CarID, link.SecondaryKey, string(car), link.Status, link.Location, string(client),
		formatTime(link.LastUpdated), string(integrity))
	if err != nil {
		return fmt.Errorf("saving client link %s: %w", link.CarID, err)
	}
	return b.persist(clientLinksJSONL, b.clientLinksPersister())
}

// DeleteClientLink removes the link for carID.
func (b *Backend) DeleteClientLink(ctx context.Context, carID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrDetached
	}
	res, err := b.db.ExecContext(ctx, "DELETE FROM client_car_links WHERE car_id = ?", carID)
	if err != nil {
		return fmt.Errorf("deleting client link %s: %w", carID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return b.persist(clientLinksJSONL, b.clientLinksPersister())
}

func (b *Backend) listClientLinks(ctx context.Context) ([]types.ClientCarLink, error) {
	rows, err := b.db.QueryContext(ctx, selectClientLink+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying client links: %w", err)
	}
	defer rows.Close()

	out := []types.ClientCarLink{}
	for rows.Next() {
		link, err := scanClientLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (b *Backend) clientLinksPersister() func() error {
	return func() error {
		links, err := b.listClientLinks(context.Background())
		if err != nil {
			return err
		}
		lines, err := encodeJSONL(links)
		if err != nil {
			return err
		}
		return writeJSONL(b.path(clientLinksJSONL), lines)
	}
}

func scanClientLink(row rowScanner) (types.ClientCarLink, error) {
	var (
		l                          types.ClientCarLink
		car, client, integrity, ts string
		secondaryKey, location     sql.NullString
	)
	if err := row.Scan(&l.CarID, &secondaryKey, &car, &l.Status, &location, &client, &ts, &integrity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l, err
		}
		return l, fmt.Errorf("scanning client link: %w", err)
	}
	l.SecondaryKey = secondaryKey.String
	l.Location = location.String
	if err := json.Unmarshal([]byte(car), &l.Car); err != nil {
		return l, fmt.Errorf("%w: car of %s: %v", types.ErrInvalidData, l.CarID, err)
	}
	if err := json.Unmarshal([]byte(client), &l.Client); err != nil {
		return l, fmt.Errorf("%w: client of %s: %v", types.ErrInvalidData, l.CarID, err)
	}
	if err := json.Unmarshal([]byte(integrity), &l.Integrity); err != nil {
		return l, fmt.Errorf("%w: integrity of %s: %v", types.ErrInvalidData, l.CarID, err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return l, fmt.Errorf("parsing last_updated of %s: %w", l.CarID, err)
	}
	l.LastUpdated = t
	return l, nil
}
