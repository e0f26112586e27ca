package actuator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/joakim000/grow/internal/device"
)

// Owner identifies one logical operation holding resources, typically one
// irrigation cycle. Reentrancy is detected per Owner, not per goroutine.
type Owner struct {
	Name string
}

// NewOwner returns a fresh owner identity.
func NewOwner(name string) *Owner {
	return &Owner{Name: name}
}

// slot is the lock object of one physical resource.
type slot struct {
	sem chan struct{} // capacity 1; holding the token means holding the resource

	mu     sync.Mutex
	holder *Owner
}

// Locks is the mutual-exclusion broker over shared physical resources.
//
// Every resource (arm, pump, tank) has its own lock object keyed by its
// device.Ref. Multi-resource requests are taken in a fixed global order
// (kind order, then id) so two requests sharing resources cannot deadlock.
//
// Thread Safety: All methods are safe for concurrent use.
type Locks struct {
	mu    sync.Mutex // guards the slots map only, never held while waiting
	slots map[device.Ref]*slot

	timeout time.Duration
}

// NewLocks creates a lock broker. A positive timeout bounds every Acquire in
// addition to the caller's context; zero waits as long as the context allows.
func NewLocks(timeout time.Duration) *Locks {
	return &Locks{
		slots:   make(map[device.Ref]*slot),
		timeout: timeout,
	}
}

func (l *Locks) slot(ref device.Ref) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[ref]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[ref] = s
	}
	return s
}

// SortRefs orders resources in the global acquisition order: by kind order,
// then by id.
func SortRefs(refs []device.Ref) {
	slices.SortFunc(refs, func(a, b device.Ref) int {
		if a.Kind != b.Kind {
			return a.Kind.Order() - b.Kind.Order()
		}
		return a.ID - b.ID
	})
}

// Acquire grants owner exclusive access to every resource in refs.
//
// Resources are acquired in global order regardless of the order given.
// Acquire blocks until all are free, the context is done, or the broker
// timeout elapses. On failure nothing stays held.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - owner: The logical operation requesting the resources
//   - refs: Resources to acquire
//
// Returns:
//   - *Guard: Release it (typically with defer) to free every resource
//   - error: ErrReentrantLock or ErrResourceBusy (wrapped)
func (l *Locks) Acquire(ctx context.Context, owner *Owner, refs ...device.Ref) (*Guard, error) {
	if owner == nil {
		return nil, fmt.Errorf("acquire: owner is required")
	}

	ordered := slices.Clone(refs)
	SortRefs(ordered)
	for i := 1; i < len(ordered); i++ {
		if ordered[i] == ordered[i-1] {
			return nil, fmt.Errorf("%w: %s requested twice by %s", ErrReentrantLock, ordered[i], owner.Name)
		}
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	g := &Guard{owner: owner}
	for _, ref := range ordered {
		s := l.slot(ref)

		s.mu.Lock()
		reentrant := s.holder == owner
		s.mu.Unlock()
		if reentrant {
			g.Release()
			return nil, fmt.Errorf("%w: %s already holds %s", ErrReentrantLock, owner.Name, ref)
		}

		select {
		case s.sem <- struct{}{}:
			s.mu.Lock()
			s.holder = owner
			s.mu.Unlock()
			g.held = append(g.held, held{ref: ref, slot: s})
		case <-ctx.Done():
			g.Release()
			return nil, fmt.Errorf("%w: %s for %s: %v", ErrResourceBusy, ref, owner.Name, ctx.Err())
		}
	}

	return g, nil
}

// Holder returns the current owner of a resource, or nil if it is free.
func (l *Locks) Holder(ref device.Ref) *Owner {
	l.mu.Lock()
	s, ok := l.slots[ref]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}

type held struct {
	ref  device.Ref
	slot *slot
}

// Guard is a scoped grant over one or more resources.
type Guard struct {
	owner *Owner

	mu   sync.Mutex
	held []held
}

// Refs returns the resources held, in acquisition order.
func (g *Guard) Refs() []device.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()

	refs := make([]device.Ref, len(g.held))
	for i, h := range g.held {
		refs[i] = h.ref
	}
	return refs
}

// Release frees every resource in reverse acquisition order.
// It is safe to call more than once.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.held) - 1; i >= 0; i-- {
		s := g.held[i].slot
		s.mu.Lock()
		s.holder = nil
		s.mu.Unlock()
		<-s.sem
	}
	g.held = nil
}
