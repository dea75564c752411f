package store

import (
	"errors"

	"go.uber.org/atomic"

	"github.com/i474232898/household-energy-dashboard/internal/household"
)

var (
	// ErrNotFound is returned when no table has been published yet.
	ErrNotFound = errors.New("no household data published yet")
)

// TableSlot holds the most recently published household snapshot.
// Publishing is a single pointer swap, so readers see either the old or the
// new snapshot in full and are never blocked by a writer.
type TableSlot struct {
	current    atomic.Pointer[household.Snapshot]
	generation atomic.Int64
}

// NewTableSlot creates an empty slot.
func NewTableSlot() *TableSlot {
	return &TableSlot{}
}

// Publish replaces the current snapshot. A nil snapshot is ignored.
func (s *TableSlot) Publish(snapshot *household.Snapshot) {
	if snapshot == nil {
		return
	}
	s.current.Store(snapshot)
	s.generation.Inc()
}

// Current returns the published snapshot, or nil.
func (s *TableSlot) Current() *household.Snapshot {
	return s.current.Load()
}

// Latest is Current with ErrNotFound for the empty slot.
func (s *TableSlot) Latest() (*household.Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotFound
	}
	return snap, nil
}

// Generation counts successful publishes since start.
func (s *TableSlot) Generation() int64 {
	return s.generation.Load()
}

var _ household.Slot = (*TableSlot)(nil)
