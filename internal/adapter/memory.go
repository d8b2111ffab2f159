package adapter

import (
	"context"
	"sync"

	"github.com/serroba/diffsyncd/internal/acl"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/room"
)

// Memory is an in-process Adapter implementation. It combines a plain
// document store (grounded on the teacher's storage.MemoryStore) with an
// acl.Checker (grounded on the teacher's acl package) for the CheckDiffs
// half of the contract.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]any

	perm *acl.Checker
}

// NewMemory creates an in-memory adapter. permStore may be nil, in which
// case CheckDiffs always allows.
func NewMemory(permStore acl.Store) *Memory {
	var checker *acl.Checker
	if permStore != nil {
		checker = acl.NewChecker(permStore)
	}

	return &Memory{
		docs: make(map[string]any),
		perm: checker,
	}
}

// Seed pre-populates a room's document, e.g. from an HTTP "create room"
// request. It satisfies Seeder.
func (m *Memory) Seed(_ context.Context, roomID string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[roomID] = diffsync.DeepCopy(doc)

	return nil
}

// GetData returns the room's stored document, creating an empty object
// as its seed value on first access.
func (m *Memory) GetData(_ context.Context, roomID, _ string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc, ok := m.docs[roomID]; ok {
		return diffsync.DeepCopy(doc), nil
	}

	doc := map[string]any{}
	m.docs[roomID] = doc

	return diffsync.DeepCopy(doc), nil
}

// CheckDiffs allows the edit unless an ACL store is configured and
// denies write access to the acting user.
func (m *Memory) CheckDiffs(ctx context.Context, msg room.EditMessage, _ *room.RoomState) (bool, error) {
	if m.perm == nil {
		return true, nil
	}

	userID := UserIDFromContext(ctx)

	err := m.perm.RequirePermission(msg.Room, userID, acl.ActionWrite)
	if err != nil {
		return false, nil //nolint:nilerr // permission denial is a silent drop, not an error
	}

	return true, nil
}

// StoreData persists the room's latest server copy.
func (m *Memory) StoreData(_ context.Context, roomID, _ string, serverCopy any, _ []room.Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[roomID] = diffsync.DeepCopy(serverCopy)

	return nil
}

// Delete removes a room's stored document. It satisfies Deleter, used
// by the room-deletion HTTP endpoint.
func (m *Memory) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs, roomID)

	return nil
}

var (
	_ Adapter = (*Memory)(nil)
	_ Deleter = (*Memory)(nil)
	_ Seeder  = (*Memory)(nil)
)
