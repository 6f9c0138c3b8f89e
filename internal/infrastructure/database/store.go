package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// Store persists device identities and the gateway sync cursor. It
// implements the hub controller's Store port.
//
// Identities are the only device state worth a disk write: last
// telemetry and link states are rebuilt from live traffic after a
// restart, but without the identity row a device would be forgotten
// until it re-announced itself.
type Store struct {
	db *DB
}

// NewStore creates a store backed by the given database. Migrate must
// have been run before first use.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// SaveIdentity inserts or updates a device identity row.
func (s *Store) SaveIdentity(ctx context.Context, ident registry.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_identities (device_id, class, name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			class = excluded.class,
			name = excluded.name,
			updated_at = excluded.updated_at
	`,
		ident.ID,
		uint8(ident.Class),
		ident.Name,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving identity %d: %w", ident.ID, err)
	}
	return nil
}

// DeleteIdentity removes a device identity row. Deleting an absent row
// is not an error.
func (s *Store) DeleteIdentity(ctx context.Context, deviceID uint32) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM device_identities WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting identity %d: %w", deviceID, err)
	}
	return nil
}

// LoadIdentities returns every persisted device identity.
func (s *Store) LoadIdentities(ctx context.Context) ([]registry.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT device_id, class, name FROM device_identities ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var idents []registry.Identity
	for rows.Next() {
		var (
			ident registry.Identity
			class uint8
		)
		if err := rows.Scan(&ident.ID, &class, &ident.Name); err != nil {
			return nil, fmt.Errorf("scanning identity row: %w", err)
		}
		ident.Class = protocol.DeviceClass(class)
		idents = append(idents, ident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	return idents, nil
}

// SaveCursor records the last gateway-acknowledged sync event ID.
func (s *Store) SaveCursor(ctx context.Context, lastEventID uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursor (id, last_event_id, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_event_id = excluded.last_event_id,
			updated_at = excluded.updated_at
	`,
		lastEventID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the persisted sync cursor, or zero when no event
// has ever been acknowledged.
func (s *Store) LoadCursor(ctx context.Context) (uint64, error) {
	var cursor uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_event_id FROM sync_cursor WHERE id = 1").Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading cursor: %w", err)
	}
	return cursor, nil
}
