package diffsync

import "fmt"

// Patch applies delta to doc and returns the resulting value. It does not
// mutate doc or delta; the DiffEngine may build new structures during
// application but never reaches back into either input.
func (e *Engine) Patch(doc any, delta Delta) (any, error) {
	switch delta.Kind {
	case KindNone:
		return DeepCopy(doc), nil
	case KindReplace:
		return DeepCopy(delta.New), nil
	case KindObject:
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("diffsync: object delta applied to %T", doc)
		}

		return e.patchObject(obj, delta)
	case KindArray:
		arr, ok := doc.([]any)
		if !ok {
			return nil, fmt.Errorf("diffsync: array delta applied to %T", doc)
		}

		return e.patchArray(arr, delta)
	default:
		return nil, fmt.Errorf("diffsync: unknown delta kind %d", delta.Kind)
	}
}

func (e *Engine) patchObject(obj map[string]any, delta Delta) (any, error) {
	out := make(map[string]any, len(obj)+len(delta.Fields))

	for k, v := range obj {
		out[k] = DeepCopy(v)
	}

	for _, k := range delta.Removed {
		delete(out, k)
	}

	for k, sub := range delta.Fields {
		if sub.Kind == KindReplace {
			out[k] = DeepCopy(sub.New)

			continue
		}

		cur, ok := out[k]
		if !ok {
			return nil, fmt.Errorf("diffsync: patch references missing field %q", k)
		}

		patched, err := e.Patch(cur, *sub)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}

		out[k] = patched
	}

	return out, nil
}

func (e *Engine) patchArray(arr []any, delta Delta) (any, error) {
	out := make([]any, 0, len(arr)+len(delta.Array))

	ai := 0

	for _, op := range delta.Array {
		switch op.Kind {
		case ArrayKeep:
			if ai >= len(arr) {
				return nil, fmt.Errorf("diffsync: array delta walks past end of source array")
			}

			out = append(out, DeepCopy(arr[ai]))
			ai++
		case ArrayPatch:
			if ai >= len(arr) {
				return nil, fmt.Errorf("diffsync: array delta walks past end of source array")
			}

			patched, err := e.Patch(arr[ai], *op.Sub)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", ai, err)
			}

			out = append(out, patched)
			ai++
		case ArrayDelete:
			if ai >= len(arr) {
				return nil, fmt.Errorf("diffsync: array delta walks past end of source array")
			}

			ai++
		case ArrayInsert:
			out = append(out, DeepCopy(op.Item))
		default:
			return nil, fmt.Errorf("diffsync: unknown array op kind %d", op.Kind)
		}
	}

	if ai != len(arr) {
		return nil, fmt.Errorf("diffsync: array delta did not consume all %d source elements (consumed %d)", len(arr), ai)
	}

	return out, nil
}
