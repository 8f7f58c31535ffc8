package model

import (
	"sort"
	"strings"
)

const handleSeparator = ","

// HandleSet is the ordered list of reminder handles backing one medication,
// one per daily occurrence. It is persisted in a single column.
type HandleSet []string

func ParseHandleSet(raw string) HandleSet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, handleSeparator)
	out := make(HandleSet, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (h HandleSet) Encode() string {
	return strings.Join(h, handleSeparator)
}

func (h HandleSet) IsEmpty() bool { return len(h) == 0 }

// AllIn reports whether every handle is in live. An empty set is never live.
func (h HandleSet) AllIn(live map[string]struct{}) bool {
	if len(h) == 0 {
		return false
	}
	for _, id := range h {
		if _, ok := live[id]; !ok {
			return false
		}
	}
	return true
}

// Intersect returns the members of h present in live, sorted.
func (h HandleSet) Intersect(live map[string]struct{}) []string {
	out := make([]string, 0, len(h))
	for _, id := range h {
		if _, ok := live[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Replace swaps old for next, keeping position. It reports whether old was found.
func (h HandleSet) Replace(old, next string) (HandleSet, bool) {
	out := make(HandleSet, len(h))
	copy(out, h)
	for i, id := range out {
		if id == old {
			out[i] = next
			return out, true
		}
	}
	return out, false
}
