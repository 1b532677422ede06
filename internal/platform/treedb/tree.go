package treedb

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}

func valueAt(root map[string]any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return root, true
	}
	current := root
	for i, seg := range segs {
		child, ok := current[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return child, true
		}
		next, ok := child.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

func setAt(root map[string]any, segs []string, value any) {
	current := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			// a scalar ancestor is overwritten by the deeper write
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	current[segs[len(segs)-1]] = cloneValue(value)
}

func deleteAt(root map[string]any, segs []string) {
	current := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segs[len(segs)-1])
}

// pruneEmpty removes empty object nodes so that an emptied subtree reads
// back as absent, mirroring how real-time tree databases treat {}.
func pruneEmpty(m map[string]any) {
	for k, v := range m {
		child, ok := v.(map[string]any)
		if !ok {
			continue
		}
		pruneEmpty(child)
		if len(child) == 0 {
			delete(m, k)
		}
	}
}
