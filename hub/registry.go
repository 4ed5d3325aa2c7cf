package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpuplay/id"
)

var (
	// ErrInvalidHandle is returned when an id does not name a live object:
	// the slot is vacant, the epoch is stale, or the id carries another
	// backend.
	ErrInvalidHandle = errors.New("hub: invalid handle")

	// ErrHandleInUse is returned when registering an id whose slot is
	// already occupied.
	ErrHandleInUse = errors.New("hub: handle already in use")
)

type slot[T any] struct {
	epoch    uint32
	occupied bool
	value    T
}

// Registry maps ids of one kind on one backend to their objects.
//
// Access goes through guards taken with a Token, which enforces the
// global lock order. Registry is safe for concurrent use.
type Registry[K id.Kind, T any] struct {
	mu       sync.RWMutex
	backend  id.Backend
	level    Level
	identity *id.IdentityManager
	slots    []slot[T]
}

// NewRegistry returns an empty registry for ids tagged with b.
func NewRegistry[K id.Kind, T any](b id.Backend, level Level) *Registry[K, T] {
	return &Registry[K, T]{
		backend:  b,
		level:    level,
		identity: id.NewIdentityManager(),
	}
}

// Backend returns the backend tag every id in the registry carries.
func (r *Registry[K, T]) Backend() id.Backend { return r.backend }

// Level returns the registry's lock level.
func (r *Registry[K, T]) Level() Level { return r.level }

// Alloc returns an unused id from the registry's identity manager.
func (r *Registry[K, T]) Alloc() id.ID[K] {
	return id.ID[K](r.identity.Alloc(r.backend))
}

// Read locks the registry for reading.
func (r *Registry[K, T]) Read(tok Token) (*ReadGuard[K, T], Token) {
	child := tok.lock(r.level)
	r.mu.RLock()
	return &ReadGuard[K, T]{r: r, parent: tok, child: child}, child
}

// Write locks the registry for writing.
func (r *Registry[K, T]) Write(tok Token) (*WriteGuard[K, T], Token) {
	child := tok.lock(r.level)
	r.mu.Lock()
	return &WriteGuard[K, T]{r: r, parent: tok, child: child}, child
}

// Register inserts v under i.
func (r *Registry[K, T]) Register(tok Token, i id.ID[K], v T) error {
	g, _ := r.Write(tok)
	defer g.Release()
	return g.Insert(i, v)
}

// Get returns the object named by i.
func (r *Registry[K, T]) Get(tok Token, i id.ID[K]) (T, error) {
	g, _ := r.Read(tok)
	defer g.Release()
	return g.Get(i)
}

// Unregister removes and returns the object named by i.
func (r *Registry[K, T]) Unregister(tok Token, i id.ID[K]) (T, error) {
	g, _ := r.Write(tok)
	defer g.Release()
	return g.Remove(i)
}

// Len reports the number of live objects.
func (r *Registry[K, T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].occupied {
			n++
		}
	}
	return n
}

// syncIdentity brings the identity manager in line with the live slots.
func (r *Registry[K, T]) syncIdentity() {
	r.mu.RLock()
	live := make([]id.RawID, 0, len(r.slots))
	for i, s := range r.slots {
		if s.occupied {
			live = append(live, id.Zip(uint32(i), s.epoch, r.backend))
		}
	}
	r.mu.RUnlock()
	r.identity.Sync(live)
}

func (r *Registry[K, T]) check(i id.ID[K]) error {
	if b := i.Backend(); b != r.backend {
		return fmt.Errorf("%w: %s on %s registry", ErrInvalidHandle, i, r.backend)
	}
	return nil
}

func (r *Registry[K, T]) get(i id.ID[K]) (T, error) {
	var zero T
	if err := r.check(i); err != nil {
		return zero, err
	}
	index := i.Index()
	if int(index) >= len(r.slots) || !r.slots[index].occupied {
		return zero, fmt.Errorf("%w: %s is vacant", ErrInvalidHandle, i)
	}
	s := &r.slots[index]
	if s.epoch != i.Epoch() {
		return zero, fmt.Errorf("%w: %s is stale, live epoch is %d", ErrInvalidHandle, i, s.epoch)
	}
	return s.value, nil
}

// ReadGuard is a held read lock on a Registry.
type ReadGuard[K id.Kind, T any] struct {
	r      *Registry[K, T]
	parent Token
	child  Token
}

// Get returns the object named by i.
func (g *ReadGuard[K, T]) Get(i id.ID[K]) (T, error) { return g.r.get(i) }

// Release unlocks the registry and re-issues the parent token.
func (g *ReadGuard[K, T]) Release() {
	g.parent.unlock(g.child)
	g.r.mu.RUnlock()
}

// WriteGuard is a held write lock on a Registry.
type WriteGuard[K id.Kind, T any] struct {
	r      *Registry[K, T]
	parent Token
	child  Token
}

// Get returns the object named by i.
func (g *WriteGuard[K, T]) Get(i id.ID[K]) (T, error) { return g.r.get(i) }

// Insert stores v under i.
func (g *WriteGuard[K, T]) Insert(i id.ID[K], v T) error {
	r := g.r
	if err := r.check(i); err != nil {
		return err
	}
	index := int(i.Index())
	if index >= len(r.slots) {
		r.slots = append(r.slots, make([]slot[T], index+1-len(r.slots))...)
	}
	s := &r.slots[index]
	if s.occupied {
		return fmt.Errorf("%w: %s", ErrHandleInUse, i)
	}
	*s = slot[T]{epoch: i.Epoch(), occupied: true, value: v}
	return nil
}

// Remove vacates the slot named by i and returns its object. The id is
// released to the identity manager.
func (g *WriteGuard[K, T]) Remove(i id.ID[K]) (T, error) {
	v, err := g.r.get(i)
	if err != nil {
		return v, err
	}
	g.r.slots[i.Index()] = slot[T]{}
	g.r.identity.Free(i.Raw())
	return v, nil
}

// RemoveFunc removes every object for which del reports true and returns
// them in index order.
func (g *WriteGuard[K, T]) RemoveFunc(del func(T) bool) []T {
	var removed []T
	for index := range g.r.slots {
		s := &g.r.slots[index]
		if !s.occupied || !del(s.value) {
			continue
		}
		removed = append(removed, s.value)
		g.r.identity.Free(id.Zip(uint32(index), s.epoch, g.r.backend))
		*s = slot[T]{}
	}
	return removed
}

// Release unlocks the registry and re-issues the parent token.
func (g *WriteGuard[K, T]) Release() {
	g.parent.unlock(g.child)
	g.r.mu.Unlock()
}
