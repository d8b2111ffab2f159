// Package roomstore is the in-memory cache of room state: a load-through
// cache over an adapter.Adapter that de-duplicates concurrent loads for
// the same room.
package roomstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/metrics"
	"github.com/serroba/diffsyncd/internal/room"
)

// Store caches one RoomState per live room, loading through to an
// Adapter on first miss. Concurrent GetData calls for the same room
// while a load is in flight are all queued and notified together: every
// waiter gets the result, not just the caller that triggered the load.
type Store struct {
	adapter adapter.Adapter

	mu       sync.Mutex
	data     map[string]*room.RoomState
	inflight map[string][]chan loadResult
}

type loadResult struct {
	state *room.RoomState
	err   error
}

// New creates an empty Store backed by a.
func New(a adapter.Adapter) *Store {
	return &Store{
		adapter:  a,
		data:     make(map[string]*room.RoomState),
		inflight: make(map[string][]chan loadResult),
	}
}

// GetData returns the cached RoomState for roomID, loading it via the
// adapter on first miss. At most one adapter.GetData call is in flight
// per room at any time; every caller that arrives while a load is
// pending is queued and notified when it completes.
func (s *Store) GetData(ctx context.Context, roomID, userID string) (*room.RoomState, error) {
	s.mu.Lock()

	if state, ok := s.data[roomID]; ok {
		s.mu.Unlock()

		return state, nil
	}

	if waiters, loading := s.inflight[roomID]; loading {
		wait := make(chan loadResult, 1)
		s.inflight[roomID] = append(waiters, wait)
		s.mu.Unlock()

		select {
		case res := <-wait:
			return res.state, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// We are the first caller: own the load.
	s.inflight[roomID] = nil
	s.mu.Unlock()

	doc, err := s.adapter.GetData(ctx, roomID, userID)

	s.mu.Lock()

	waiters := s.inflight[roomID]
	delete(s.inflight, roomID)

	var result loadResult

	if err != nil {
		result = loadResult{err: fmt.Errorf("roomstore: load room %q: %w", roomID, err)}
	} else {
		state := room.New(doc)
		s.data[roomID] = state
		result = loadResult{state: state}
		metrics.RoomsLoaded.Inc()
	}

	s.mu.Unlock()

	for _, w := range waiters {
		w <- result
	}

	return result.state, result.err
}

// Peek returns the cached RoomState for roomID without loading it, or
// nil if the room has never been loaded.
func (s *Store) Peek(roomID string) *room.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data[roomID]
}

// Reset drops all cached rooms and in-flight load state once no save is
// in progress. allIdle is polled once a second until it reports true,
// then the callback runs and Reset returns.
func (s *Store) Reset(ctx context.Context, allIdle func() bool, done func()) error {
	const pollInterval = time.Second

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !allIdle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.mu.Lock()
	s.data = make(map[string]*room.RoomState)
	s.inflight = make(map[string][]chan loadResult)
	s.mu.Unlock()

	if done != nil {
		done()
	}

	return nil
}
