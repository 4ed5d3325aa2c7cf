package id

import (
	"slices"
	"sync"
)

// IdentityManager hands out ids for one object kind.
//
// A freed index is reused with its epoch bumped; a fresh index starts at
// epoch 1. Epoch 0 is never issued, so the zero id is never live.
//
// IdentityManager is safe for concurrent use.
type IdentityManager struct {
	mu sync.Mutex

	// free holds released indices, reused last-in first-out.
	free []uint32

	// epochs[i] is the epoch of live index i, or the epoch its next
	// allocation receives when it is free.
	epochs []uint32
}

// NewIdentityManager returns an empty manager.
func NewIdentityManager() *IdentityManager {
	return &IdentityManager{}
}

// Alloc returns a new id tagged with backend.
func (m *IdentityManager) Alloc(backend Backend) RawID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.free); n > 0 {
		index := m.free[n-1]
		m.free = m.free[:n-1]
		return Zip(index, m.epochs[index], backend)
	}

	index := uint32(len(m.epochs))
	m.epochs = append(m.epochs, 1)
	return Zip(index, 1, backend)
}

// Free releases r. The index becomes available again with the next epoch.
// Freeing an id that is not the current generation of its index is a no-op.
func (m *IdentityManager) Free(r RawID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, epoch := r.Index(), r.Epoch()
	if int(index) >= len(m.epochs) || m.epochs[index] != epoch || slices.Contains(m.free, index) {
		return
	}
	m.epochs[index] = nextEpoch(epoch)
	m.free = append(m.free, index)
}

// Sync makes the manager agree with a registry whose live ids are given.
//
// Live indices leave the free list and their epoch is raised to the live
// one. Any index below the highest live one that the manager has never
// tracked becomes free. Epochs never move backwards.
func (m *IdentityManager) Sync(live []RawID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occupied := make(map[uint32]struct{}, len(live))
	for _, r := range live {
		index, epoch := r.Index(), r.Epoch()
		occupied[index] = struct{}{}
		for uint32(len(m.epochs)) <= index {
			m.epochs = append(m.epochs, 1)
			if uint32(len(m.epochs)-1) != index {
				m.free = append(m.free, uint32(len(m.epochs)-1))
			}
		}
		if m.epochs[index] < epoch {
			m.epochs[index] = epoch
		}
	}

	m.free = slices.DeleteFunc(m.free, func(index uint32) bool {
		_, ok := occupied[index]
		return ok
	})
}

// Live reports how many indices are currently handed out.
func (m *IdentityManager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.epochs) - len(m.free)
}

func nextEpoch(epoch uint32) uint32 {
	if epoch >= MaxEpoch {
		return 1
	}
	return epoch + 1
}
