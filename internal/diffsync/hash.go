package diffsync

import (
	"encoding/json"
	"fmt"
)

// HashFunc computes an identity for an array element. Two elements with
// the same hash are considered the "same" element across a diff even if
// their positions or contents differ.
type HashFunc func(v any) string

// Options configures an Engine.
type Options struct {
	// Hash computes array-element identity. Defaults to ObjectHash.
	Hash HashFunc
}

// ObjectHash is the default HashFunc: it returns obj["id"] if present,
// else obj["_id"], else a canonical serialization of the whole value.
// Non-object elements always fall through to canonical serialization,
// which makes each distinct scalar its own identity.
func ObjectHash(v any) string {
	if obj, ok := v.(map[string]any); ok {
		if id, ok := obj["id"]; ok {
			return fmt.Sprintf("id:%v", id)
		}

		if id, ok := obj["_id"]; ok {
			return fmt.Sprintf("_id:%v", id)
		}
	}

	return canonicalJSON(v)
}

// canonicalJSON serializes v with map keys in sorted order, which
// encoding/json already guarantees for map[string]any.
func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// v came from decoded JSON or from our own DeepCopy, so this
		// should not happen; fall back to a type-tagged best effort.
		return fmt.Sprintf("%T:%v", v, v)
	}

	return string(b)
}
