package memorystore

import "sync"

// MemoryOrderStore is the process-lifetime set of seen order fingerprints.
// Entries are never evicted, and nothing is persisted: after a restart the
// first poll window may alert once more for orders already alerted.
type MemoryOrderStore struct {
	mu   sync.RWMutex
	seen map[Fingerprint]struct{}
}

func NewOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		seen: make(map[Fingerprint]struct{}),
	}
}

// IsNew reports whether fp has not been marked seen.
func (s *MemoryOrderStore) IsNew(fp Fingerprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[fp]
	return !ok
}

// MarkSeen records fp. Marking twice is a no-op.
func (s *MemoryOrderStore) MarkSeen(fp Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[fp] = struct{}{}
}

// CountAll returns the number of fingerprints recorded.
func (s *MemoryOrderStore) CountAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
