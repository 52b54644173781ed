package graph

import (
	"sync"
	"sync/atomic"
)

// systemRegistry resolves the RenderKey carried by a render notification
// back to its System. Lookups read an immutable map behind an atomic pointer
// and neither lock nor allocate.
type systemRegistry struct {
	mu      sync.Mutex
	nextKey RenderKey
	systems atomic.Pointer[map[RenderKey]*System]
}

var registry systemRegistry

func (r *systemRegistry) register(s *System) RenderKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextKey++
	key := r.nextKey
	r.update(func(m map[RenderKey]*System) { m[key] = s })
	return key
}

func (r *systemRegistry) unregister(key RenderKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.update(func(m map[RenderKey]*System) { delete(m, key) })
}

func (r *systemRegistry) update(f func(map[RenderKey]*System)) {
	m := map[RenderKey]*System{}
	if old := r.systems.Load(); old != nil {
		for k, v := range *old {
			m[k] = v
		}
	}
	f(m)
	r.systems.Store(&m)
}

func (r *systemRegistry) lookup(key RenderKey) *System {
	if m := r.systems.Load(); m != nil {
		return (*m)[key]
	}
	return nil
}
