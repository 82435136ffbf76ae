package webhook

import "sync"

const defaultDedupSize = 1024

// dedupRing remembers the last n event IDs. When full, the oldest ID is
// forgotten, which bounds memory while still catching the short
// redelivery bursts vendors produce.
type dedupRing struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
}

func newDedupRing(size int) *dedupRing {
	if size <= 0 {
		size = defaultDedupSize
	}
	return &dedupRing{
		seen:  make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

// add records the ID and reports whether it was new.
func (r *dedupRing) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return false
	}

	if old := r.order[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.seen[id] = struct{}{}
	return true
}
