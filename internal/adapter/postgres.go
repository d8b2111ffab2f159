package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/room"
)

// Postgres is a durable Adapter backed by a single JSONB column per
// room: the latest known server copy is eventually stored, with no
// stronger durability guarantee attempted.
type Postgres struct {
	pool *pgxpool.Pool
	perm *acl.Checker
}

// NewPostgres creates a Postgres-backed adapter. permStore may be nil,
// in which case CheckDiffs always allows.
func NewPostgres(pool *pgxpool.Pool, permStore acl.Store) *Postgres {
	var checker *acl.Checker
	if permStore != nil {
		checker = acl.NewChecker(permStore)
	}

	return &Postgres{pool: pool, perm: checker}
}

// Migrate creates the rooms table if it doesn't exist. Called once at
// startup from cmd/diffsyncd.
func (p *Postgres) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS diffsync_rooms (
	room_id     TEXT PRIMARY KEY,
	server_copy JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	_, err := p.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("adapter: migrate: %w", err)
	}

	return nil
}

// GetData loads the room's stored document, creating an empty seed row
// on first access.
func (p *Postgres) GetData(ctx context.Context, roomID, _ string) (any, error) {
	var raw []byte

	err := p.pool.QueryRow(ctx,
		`SELECT server_copy FROM diffsync_rooms WHERE room_id = $1`, roomID,
	).Scan(&raw)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		seed := map[string]any{}

		if insErr := p.insertSeed(ctx, roomID, seed); insErr != nil {
			return nil, insErr
		}

		return seed, nil
	case err != nil:
		return nil, fmt.Errorf("adapter: get data for room %q: %w", roomID, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("adapter: decode room %q: %w", roomID, err)
	}

	return doc, nil
}

func (p *Postgres) insertSeed(ctx context.Context, roomID string, seed any) error {
	raw, err := json.Marshal(seed)
	if err != nil {
		return fmt.Errorf("adapter: encode seed for room %q: %w", roomID, err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO diffsync_rooms (room_id, server_copy) VALUES ($1, $2)
		 ON CONFLICT (room_id) DO NOTHING`, roomID, raw)
	if err != nil {
		return fmt.Errorf("adapter: seed room %q: %w", roomID, err)
	}

	return nil
}

// CheckDiffs allows the edit unless an ACL store is configured and
// denies write access to the acting user.
func (p *Postgres) CheckDiffs(ctx context.Context, msg room.EditMessage, _ *room.RoomState) (bool, error) {
	if p.perm == nil {
		return true, nil
	}

	userID := UserIDFromContext(ctx)

	if err := p.perm.RequirePermission(msg.Room, userID, acl.ActionWrite); err != nil {
		return false, nil //nolint:nilerr // permission denial is a silent drop, not an error
	}

	return true, nil
}

// StoreData persists the room's latest server copy.
func (p *Postgres) StoreData(ctx context.Context, roomID, _ string, serverCopy any, _ []room.Edit) error {
	raw, err := json.Marshal(serverCopy)
	if err != nil {
		return fmt.Errorf("adapter: encode room %q: %w", roomID, err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO diffsync_rooms (room_id, server_copy, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (room_id) DO UPDATE SET server_copy = $2, updated_at = now()`,
		roomID, raw)
	if err != nil {
		return fmt.Errorf("adapter: store room %q: %w", roomID, err)
	}

	return nil
}

// Delete removes a room's row outright. It satisfies Deleter.
func (p *Postgres) Delete(ctx context.Context, roomID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM diffsync_rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("adapter: delete room %q: %w", roomID, err)
	}

	return nil
}

// Seed creates or overwrites a room's row with doc, unlike insertSeed's
// ON CONFLICT DO NOTHING used on the GetData miss path. It satisfies
// Seeder.
func (p *Postgres) Seed(ctx context.Context, roomID string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("adapter: encode seed for room %q: %w", roomID, err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO diffsync_rooms (room_id, server_copy, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (room_id) DO UPDATE SET server_copy = $2, updated_at = now()`,
		roomID, raw)
	if err != nil {
		return fmt.Errorf("adapter: seed room %q: %w", roomID, err)
	}

	return nil
}

var (
	_ Adapter = (*Postgres)(nil)
	_ Deleter = (*Postgres)(nil)
	_ Seeder  = (*Postgres)(nil)
)
