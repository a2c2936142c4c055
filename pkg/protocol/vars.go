package protocol

import "sync"

// VarStore is the run-scoped variable store shared by data nodes. Independent
// nodes may execute in parallel, so access is serialized.
type VarStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewVarStore creates a store seeded with the workflow's variables.
func NewVarStore(seed map[string]any) *VarStore {
	values := make(map[string]any, len(seed))
	for key, val := range seed {
		values[key] = val
	}

	return &VarStore{values: values}
}

// Get returns the value stored under key, with presence.
func (s *VarStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.values[key]

	return val, ok
}

// Set stores a value under key.
func (s *VarStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

// Snapshot returns a copy of the current values.
func (s *VarStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for key, val := range s.values {
		out[key] = val
	}

	return out
}
