// Package dedup provides the identity-keyed seen-set that keeps a device
// observed more than once from being counted twice.
package dedup

import "sync"

// keySep cannot occur in device or address identifiers.
const keySep = "\x00"

// Key builds the composite identity of a device under an address.
func Key(identifier, parentID string) string {
	return identifier + keySep + parentID
}

// Set records keys that have already been counted.
// It is safe for concurrent use.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates an empty set.
func New() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Seen reports whether key has been marked.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// Mark records key.
func (s *Set) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = struct{}{}
}

// Add marks key and reports whether it was new. Check and mark happen
// under one lock so concurrent callers cannot both observe a key as new.
func (s *Set) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
