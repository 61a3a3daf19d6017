package graph

import "sync"

const defaultRingCapacity = 256

// ring is a bounded buffer of sync records. When full, the oldest record is
// overwritten; observability state never grows without bound.
type ring struct {
	mu      sync.Mutex
	records []SyncRecord
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &ring{records: make([]SyncRecord, capacity)}
}

func (r *ring) add(record SyncRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = record
	r.next++
	if r.next == len(r.records) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns records newest first.
func (r *ring) snapshot() []SyncRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.records)
	}
	out := make([]SyncRecord, 0, size)
	for i := 0; i < size; i++ {
		idx := r.next - 1 - i
		if idx < 0 {
			idx += len(r.records)
		}
		out = append(out, r.records[idx])
	}
	return out
}
