// Package save implements the per-room save-coalescing state machine: at
// most one adapter.StoreData call in flight per room, with any saves
// requested while one is running collapsing into exactly one follow-up
// save.
package save

import (
	"context"
	"log/slog"
	"sync"

	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/metrics"
	"github.com/serroba/diffsyncd/internal/room"
	"github.com/serroba/diffsyncd/internal/roomstore"
)

// Coalescer runs adapter.StoreData for each room, tracking a per-room
// Idle / Saving / Saving+Queued state.
type Coalescer struct {
	adapter adapter.Adapter
	rooms   *roomstore.Store
	logger  *slog.Logger

	mu     sync.Mutex
	savers map[string]*roomSaver
}

// roomSaver holds the tri-state flag pair for a single room, generalized
// from the teacher's storage.SnapshotPolicy per-doc counter map.
type roomSaver struct {
	mu            sync.Mutex
	saving        bool
	queued        bool
	pendingUserID string
	pendingEdits  []room.Edit
}

// New creates a Coalescer that persists through a and re-reads server
// copies from rooms.
func New(a adapter.Adapter, rooms *roomstore.Store, logger *slog.Logger) *Coalescer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coalescer{
		adapter: a,
		rooms:   rooms,
		logger:  logger,
		savers:  make(map[string]*roomSaver),
	}
}

func (c *Coalescer) saverFor(roomID string) *roomSaver {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.savers[roomID]
	if !ok {
		s = &roomSaver{}
		c.savers[roomID] = s
	}

	return s
}

// SaveSnapshot schedules a persistence of roomID's current server copy.
// It never blocks the caller: the actual adapter.StoreData call happens
// on a background goroutine.
func (c *Coalescer) SaveSnapshot(ctx context.Context, roomID, userID string, edits []room.Edit) {
	s := c.saverFor(roomID)

	s.mu.Lock()

	if s.saving {
		s.queued = true
		s.pendingUserID = userID
		s.pendingEdits = edits
		s.mu.Unlock()
		metrics.SavesCoalesced.Inc()

		return
	}

	s.saving = true
	s.mu.Unlock()

	go c.run(ctx, roomID, userID, edits, s)
}

func (c *Coalescer) run(ctx context.Context, roomID, userID string, edits []room.Edit, s *roomSaver) {
	serverCopy := c.currentServerCopy(roomID)

	metrics.SavesIssued.Inc()

	if err := c.adapter.StoreData(ctx, roomID, userID, serverCopy, edits); err != nil {
		c.logger.Warn("save failed", "room", roomID, "error", err)
		metrics.SaveFailures.Inc()
	}

	s.mu.Lock()

	if s.queued {
		s.queued = false
		nextUserID := s.pendingUserID
		nextEdits := s.pendingEdits
		s.pendingEdits = nil
		s.mu.Unlock()

		// The follow-up save re-reads the room's latest server copy
		// inside run() above; it does not reuse the parameters
		// captured by this call.
		go c.run(ctx, roomID, nextUserID, nextEdits, s)

		return
	}

	s.saving = false
	s.mu.Unlock()
}

// currentServerCopy reads a fresh deep copy of the room's server copy
// under the room's own lock, so a save never races with concurrent edit
// application.
func (c *Coalescer) currentServerCopy(roomID string) any {
	state := c.rooms.Peek(roomID)
	if state == nil {
		return nil
	}

	state.Lock()
	defer state.Unlock()

	return diffsync.DeepCopy(state.ServerCopy)
}

// Idle reports whether roomID has no save in flight and none queued.
// Unknown rooms are considered idle.
func (c *Coalescer) Idle(roomID string) bool {
	c.mu.Lock()
	s, ok := c.savers[roomID]
	c.mu.Unlock()

	if !ok {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.saving && !s.queued
}

// AllIdle reports whether every room this Coalescer has ever saved for
// is currently idle. It is the callback RoomStore.Reset polls.
func (c *Coalescer) AllIdle() bool {
	c.mu.Lock()
	savers := make([]*roomSaver, 0, len(c.savers))
	for _, s := range c.savers {
		savers = append(savers, s)
	}
	c.mu.Unlock()

	for _, s := range savers {
		s.mu.Lock()
		idle := !s.saving && !s.queued
		s.mu.Unlock()

		if !idle {
			return false
		}
	}

	return true
}
