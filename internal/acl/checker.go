package acl

import "errors"

// Action is an operation a room's Adapter is asked to authorize on
// behalf of a connected client.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionShare
	ActionDelete
)

// String returns the lowercase name of the action.
func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionShare:
		return "share"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Checker turns a Store's recorded roles into yes/no authorization
// decisions, the shape adapter.Memory and adapter.Postgres's
// CheckDiffs need before merging a client's edits, and internal/api's
// room handlers need before deleting a room.
type Checker struct {
	store Store
}

// NewChecker creates a Checker backed by store.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// CanPerform reports whether userID's role within roomID permits
// action. A user with no recorded role is treated as permitted
// nothing, not as an error.
func (c *Checker) CanPerform(roomID, userID string, action Action) (bool, error) {
	role, err := c.store.GetRole(roomID, userID)
	if err != nil {
		if errors.Is(err, ErrPermissionNotFound) {
			return false, nil
		}

		return false, err
	}

	switch action {
	case ActionRead:
		return role.CanRead(), nil
	case ActionWrite:
		return role.CanWrite(), nil
	case ActionShare:
		return role.CanShare(), nil
	case ActionDelete:
		return role.CanDelete(), nil
	default:
		return false, nil
	}
}

// RequirePermission is CanPerform with the false case turned into
// ErrAccessDenied, the form a request handler that must fail outright
// on denial wants.
func (c *Checker) RequirePermission(roomID, userID string, action Action) error {
	allowed, err := c.CanPerform(roomID, userID, action)
	if err != nil {
		return err
	}

	if !allowed {
		return ErrAccessDenied
	}

	return nil
}
