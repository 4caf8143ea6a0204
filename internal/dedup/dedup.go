// Package dedup implements the bounded FIFO set that keeps ingestion
// from reprocessing a transaction id twice, adapted from the
// hot-map/order-list eviction pattern in the teacher's internal/peer
// address store.
package dedup

import (
	"container/list"
	"sync"
)

// DefaultCapacity is the fixed set size the ingestion engine uses.
const DefaultCapacity = 5000

// Set is a fixed-capacity set with FIFO eviction: once full, inserting
// a new value evicts the oldest. Membership and insertion are O(1)
// expected, backed by a hash map for lookup and a doubly linked list
// for age order.
type Set struct {
	mu       sync.Mutex
	capacity int
	hot      map[string]*list.Element
	order    *list.List
}

// New returns an empty Set with the given capacity. capacity <= 0
// falls back to DefaultCapacity.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		capacity: capacity,
		hot:      make(map[string]*list.Element),
		order:    list.New(),
	}
}

// TryAdd reports false if v is already present; otherwise it inserts v
// (evicting the oldest entry first if the set is at capacity) and
// returns true.
func (s *Set) TryAdd(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.hot[v]; exists {
		return false
	}
	if s.order.Len() >= s.capacity {
		oldest := s.order.Front()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.hot, oldest.Value.(string))
		}
	}
	el := s.order.PushBack(v)
	s.hot[v] = el
	return true
}

// Len returns the current number of held values.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Contains reports whether v is currently held, without inserting it.
func (s *Set) Contains(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hot[v]
	return ok
}
