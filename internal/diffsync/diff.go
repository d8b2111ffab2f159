package diffsync

// Engine bundles a HashFunc with the Diff/Patch/DeepCopy operations, so
// callers configure identity semantics once at construction.
type Engine struct {
	hash HashFunc
}

// New creates an Engine. A zero Options uses ObjectHash.
func New(opts Options) *Engine {
	h := opts.Hash
	if h == nil {
		h = ObjectHash
	}

	return &Engine{hash: h}
}

// DeepCopy returns a value-independent copy of v.
func (e *Engine) DeepCopy(v any) any {
	return DeepCopy(v)
}

// Diff computes the structural difference between a and b. The result is
// empty iff a and b are structurally equal.
func (e *Engine) Diff(a, b any) Delta {
	aObj, aIsObj := a.(map[string]any)
	bObj, bIsObj := b.(map[string]any)

	if aIsObj && bIsObj {
		return e.diffObject(aObj, bObj)
	}

	aArr, aIsArr := a.([]any)
	bArr, bIsArr := b.([]any)

	if aIsArr && bIsArr {
		return e.diffArray(aArr, bArr)
	}

	if deepEqual(a, b) {
		return Delta{Kind: KindNone}
	}

	return Delta{Kind: KindReplace, New: DeepCopy(b)}
}

func (e *Engine) diffObject(a, b map[string]any) Delta {
	fields := make(map[string]*Delta)

	var removed []string

	for k, av := range a {
		if bv, ok := b[k]; ok {
			sub := e.Diff(av, bv)
			if !sub.IsEmpty() {
				fields[k] = &sub
			}
		} else {
			removed = append(removed, k)
		}
	}

	for k, bv := range b {
		if _, ok := a[k]; !ok {
			fields[k] = &Delta{Kind: KindReplace, New: DeepCopy(bv)}
		}
	}

	if len(fields) == 0 && len(removed) == 0 {
		return Delta{Kind: KindNone}
	}

	return Delta{Kind: KindObject, Fields: fields, Removed: removed}
}

// diffArray aligns a and b by object hash using a longest-common-
// subsequence over their hash sequences, then walks both arrays to
// produce an interleaved Keep/Patch/Delete/Insert op list that
// reconstructs b from a in order.
func (e *Engine) diffArray(a, b []any) Delta {
	aHash := make([]string, len(a))
	for i, v := range a {
		aHash[i] = e.hash(v)
	}

	bHash := make([]string, len(b))
	for i, v := range b {
		bHash[i] = e.hash(v)
	}

	matchA, matchB := lcsMatch(aHash, bHash)

	ops := make([]ArrayOp, 0, len(a)+len(b))

	changed := false
	ai, bi := 0, 0

	for ai < len(a) || bi < len(b) {
		switch {
		case ai < len(a) && matchA[ai] == -1:
			// a[ai] has no counterpart in b: deleted.
			ops = append(ops, ArrayOp{Kind: ArrayDelete, Hash: aHash[ai]})
			changed = true
			ai++
		case bi < len(b) && matchB[bi] == -1:
			// b[bi] has no counterpart in a: inserted.
			ops = append(ops, ArrayOp{Kind: ArrayInsert, Hash: bHash[bi], Item: DeepCopy(b[bi])})
			changed = true
			bi++
		case ai < len(a) && bi < len(b) && matchA[ai] == bi:
			// Matched pair: keep or patch in place.
			if deepEqual(a[ai], b[bi]) {
				ops = append(ops, ArrayOp{Kind: ArrayKeep, Hash: aHash[ai]})
			} else {
				sub := e.Diff(a[ai], b[bi])
				ops = append(ops, ArrayOp{Kind: ArrayPatch, Hash: aHash[ai], Sub: &sub})
				changed = true
			}

			ai++
			bi++
		default:
			// Should not happen given lcsMatch's contract, but avoid an
			// infinite loop defensively.
			if ai < len(a) {
				ops = append(ops, ArrayOp{Kind: ArrayDelete, Hash: aHash[ai]})
				changed = true
				ai++
			} else {
				ops = append(ops, ArrayOp{Kind: ArrayInsert, Hash: bHash[bi], Item: DeepCopy(b[bi])})
				changed = true
				bi++
			}
		}
	}

	if !changed {
		return Delta{Kind: KindNone}
	}

	return Delta{Kind: KindArray, Array: ops}
}

// lcsMatch finds a longest common subsequence of equal hashes between aHash
// and bHash and returns, for each index in aHash/bHash, the matched index
// in the other slice, or -1 if unmatched.
func lcsMatch(aHash, bHash []string) (matchA, matchB []int) {
	n, m := len(aHash), len(bHash)

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}

	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if aHash[i] == bHash[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	matchA = make([]int, n)
	matchB = make([]int, m)

	for i := range matchA {
		matchA[i] = -1
	}

	for j := range matchB {
		matchB[j] = -1
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case aHash[i] == bHash[j]:
			matchA[i] = j
			matchB[j] = i
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}

	return matchA, matchB
}

// deepEqual reports whether two decoded-JSON values are structurally
// equal.
func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}

		for k, aval := range av {
			bval, ok := bv[k]
			if !ok || !deepEqual(aval, bval) {
				return false
			}
		}

		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}

		return true
	default:
		return a == b
	}
}
