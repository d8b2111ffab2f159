// Package adapter defines the storage/authorization contract the
// differential sync core delegates to, and provides an in-memory
// reference implementation plus Postgres- and Redis-backed ones for
// running the service for real.
package adapter

import (
	"context"

	"github.com/serroba/diffsyncd/internal/room"
)

// Adapter is the external collaborator: persistence and authorization
// live entirely behind this interface, so the core never has to know
// whether a room is backed by memory, Postgres, or anything else.
//
// Go's blocking calls play the role the original callback-based design
// gave to (err, result) callbacks: GetData/CheckDiffs/StoreData are the
// only three points where a caller may suspend, and no other code holds
// a room lock across any of them.
type Adapter interface {
	// GetData loads or creates the seed document for room. It is called
	// at most once per room's lifetime by RoomStore (until Reset).
	GetData(ctx context.Context, roomID, userID string) (any, error)

	// CheckDiffs authorizes an incoming edit message. A false result
	// (with a nil error) means the message is silently dropped: no
	// reply, no broadcast, no save. The wire contract for this call
	// carries no user identifier of its own; callers attach one to ctx
	// with WithUserID.
	CheckDiffs(ctx context.Context, msg room.EditMessage, state *room.RoomState) (bool, error)

	// StoreData persists the latest known server copy for room.
	// Idempotency is not required; edits is informational only and
	// reflects the batch that triggered this particular save.
	StoreData(ctx context.Context, roomID, userID string, serverCopy any, edits []room.Edit) error
}

// Deleter is implemented by adapters that support removing a room's
// stored document outright. It is not part of the core Adapter contract
// (the sync algorithm itself never deletes a room); it exists purely
// for the HTTP room-management surface.
type Deleter interface {
	Delete(ctx context.Context, roomID string) error
}

// Seeder is implemented by adapters that support creating a room with
// caller-supplied initial content rather than the empty-object default
// GetData falls back to. Like Deleter, it exists for the HTTP
// room-management surface, not the core sync algorithm.
type Seeder interface {
	Seed(ctx context.Context, roomID string, doc any) error
}

type ctxKey string

const userIDKey ctxKey = "userID"

// WithUserID attaches the acting user's ID to ctx, following the same
// context-value pattern the HTTP layer uses for request-scoped identity.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the user ID attached by WithUserID, or ""
// if none was attached.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)

	return v
}
