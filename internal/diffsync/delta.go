// Package diffsync implements structural diff, patch, and deep-copy over
// arbitrary JSON-typed values (map[string]any, []any, and scalars), with
// array-element identity resolved through a configurable object-hash
// function rather than positional index.
package diffsync

// Kind identifies what shape of change a Delta describes.
type Kind int

const (
	// KindNone means a and b are structurally equal; the delta is empty.
	KindNone Kind = iota
	// KindReplace means the whole value at this position was replaced,
	// either because the types differ or because a scalar changed.
	KindReplace
	// KindObject means a and b are both objects and Delta.Fields /
	// Delta.Removed describe the per-key changes.
	KindObject
	// KindArray means a and b are both arrays and Delta.Array describes
	// an ordered walk that reconstructs b from a.
	KindArray
)

// Delta is a structural description of the difference between two JSON
// values, produced by Diff and consumed by Patch.
type Delta struct {
	Kind Kind

	// New holds the replacement value when Kind == KindReplace.
	New any

	// Fields holds per-key sub-deltas for keys present in b (added or
	// changed) when Kind == KindObject. A key present in Fields but not
	// in a is treated as an add: patching applies its sub-delta against
	// an absent value.
	Fields map[string]*Delta
	// Removed lists keys present in a but absent from b, when Kind ==
	// KindObject.
	Removed []string

	// Array is an ordered sequence of operations that, applied against
	// a's elements in order, reconstructs b. It walks every element of
	// a exactly once (as ArrayKeep, ArrayPatch, or ArrayDelete) with
	// ArrayInsert operations interleaved wherever b introduces a new
	// element, when Kind == KindArray.
	Array []ArrayOp
}

// ArrayOpKind identifies one step in an array delta's reconstruction walk.
type ArrayOpKind int

const (
	// ArrayKeep carries the next element of a through unchanged.
	ArrayKeep ArrayOpKind = iota
	// ArrayPatch carries the next element of a through, patched by Sub.
	ArrayPatch
	// ArrayDelete consumes the next element of a and drops it.
	ArrayDelete
	// ArrayInsert appends Item without consuming an element of a.
	ArrayInsert
)

// ArrayOp is one step of an ArrayDelta's reconstruction walk.
type ArrayOp struct {
	Kind ArrayOpKind
	// Hash is the object-hash of the element this op refers to (the a
	// element for Keep/Patch/Delete, the b element for Insert). It is
	// carried along mainly for diagnostics; Patch does not require it
	// to match, only the sequential walk order.
	Hash string
	// Sub is the nested delta to apply, for ArrayPatch.
	Sub *Delta
	// Item is the literal value to insert, for ArrayInsert.
	Item any
}

// IsEmpty reports whether the delta describes no change at all.
func (d Delta) IsEmpty() bool {
	switch d.Kind {
	case KindNone:
		return true
	case KindObject:
		return len(d.Fields) == 0 && len(d.Removed) == 0
	case KindArray:
		for _, op := range d.Array {
			if op.Kind != ArrayKeep {
				return false
			}
		}

		return true
	default:
		return false
	}
}
