package graph

import "sync/atomic"

type atomicTap struct {
	p atomic.Pointer[Tap]
}

func (a *atomicTap) store(t Tap) {
	if t == nil {
		a.p.Store(nil)
		return
	}
	a.p.Store(&t)
}

func (a *atomicTap) load() Tap {
	if p := a.p.Load(); p != nil {
		return *p
	}
	return nil
}
