package acl

// Role is the level of access a user holds within a single room. It
// gates which of the room's operations an Adapter's CheckDiffs call
// permits for the edits and management requests that user submits.
type Role int

const (
	// Viewer may load a room's current document but not submit edits
	// to it.
	Viewer Role = iota
	// Editor may load a room's document and submit edits that get
	// merged into its shared state.
	Editor
	// Owner holds every Editor permission plus the ability to grant
	// roles to other users and delete the room.
	Owner
)

// String returns the lowercase name of the role.
func (r Role) String() string {
	switch r {
	case Viewer:
		return "viewer"
	case Editor:
		return "editor"
	case Owner:
		return "owner"
	default:
		return "unknown"
	}
}

// CanRead reports whether the role may load a room's document.
func (r Role) CanRead() bool {
	return r >= Viewer
}

// CanWrite reports whether the role may submit edits to a room.
func (r Role) CanWrite() bool {
	return r >= Editor
}

// CanShare reports whether the role may grant roles to other users
// within the room.
func (r Role) CanShare() bool {
	return r >= Owner
}

// CanDelete reports whether the role may delete the room outright.
func (r Role) CanDelete() bool {
	return r >= Owner
}

// Permission binds one user to the role they hold within one room.
type Permission struct {
	RoomID string
	UserID string
	Role   Role
}
