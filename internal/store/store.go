package store

import (
	"sync"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
)

// Store holds the kiosk's cached snapshot of the remote session.
type Store struct {
	mu           sync.RWMutex
	snap         model.Snapshot
	lastSequence uint64
	version      uint64
	onChange     []func(version uint64)
}

func New() *Store {
	return &Store{}
}

// Current returns a deep copy of the cached snapshot.
func (s *Store) Current() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Version increases by one on every accepted Replace.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnChange registers fn to run after every accepted Replace.
func (s *Store) OnChange(fn func(version uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Replace swaps in snap as a whole if seq is newer than the last accepted
// one. Older or duplicate sequences are ignored.
func (s *Store) Replace(snap model.Snapshot, seq uint64) bool {
	s.mu.Lock()
	if s.version > 0 && seq <= s.lastSequence {
		s.mu.Unlock()
		return false
	}
	snap = snap.Clone()
	snap.Sequence = seq
	s.snap = snap
	s.lastSequence = seq
	s.version++
	version := s.version
	listeners := append(([]func(uint64))(nil), s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(version)
	}
	return true
}
