package queue

import "sync/atomic"

// Sequencer numbers kiosk actions in submission order. The store compares
// these numbers to drop a snapshot older than the one it holds.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
