package router

import (
	"sync"

	"github.com/JMC2002/JmcModLib-sub001/internal/module"
)

// lifecycleEvents holds scan/unscan observers. Delivery is synchronous, in
// subscription order, with a snapshot taken before iterating so observers
// may subscribe or unsubscribe from inside a callback.
type lifecycleEvents struct {
	mu        sync.RWMutex
	nextID    uint64
	scanned   map[uint64]func(*module.Module)
	unscanned map[uint64]func(*module.Module)
	scanIDs   []uint64
	unscanIDs []uint64
}

// Subscription is a handle to one registered observer.
type Subscription struct {
	id     uint64
	cancel func(id uint64)
}

// Unsubscribe removes the observer. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.cancel != nil {
		s.cancel(s.id)
		s.cancel = nil
	}
}

func newLifecycleEvents() *lifecycleEvents {
	return &lifecycleEvents{
		scanned:   make(map[uint64]func(*module.Module)),
		unscanned: make(map[uint64]func(*module.Module)),
	}
}

func (e *lifecycleEvents) onScanned(fn func(*module.Module)) *Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.scanned[id] = fn
	e.scanIDs = append(e.scanIDs, id)
	e.mu.Unlock()
	return &Subscription{id: id, cancel: e.cancelScanned}
}

func (e *lifecycleEvents) onUnscanned(fn func(*module.Module)) *Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.unscanned[id] = fn
	e.unscanIDs = append(e.unscanIDs, id)
	e.mu.Unlock()
	return &Subscription{id: id, cancel: e.cancelUnscanned}
}

func (e *lifecycleEvents) cancelScanned(id uint64) {
	e.mu.Lock()
	delete(e.scanned, id)
	e.mu.Unlock()
}

func (e *lifecycleEvents) cancelUnscanned(id uint64) {
	e.mu.Lock()
	delete(e.unscanned, id)
	e.mu.Unlock()
}

func (e *lifecycleEvents) fireScanned(mod *module.Module) {
	for _, fn := range e.snapshot(true) {
		fn(mod)
	}
}

func (e *lifecycleEvents) fireUnscanned(mod *module.Module) {
	for _, fn := range e.snapshot(false) {
		fn(mod)
	}
}

func (e *lifecycleEvents) snapshot(scanned bool) []func(*module.Module) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids, set := e.scanIDs, e.scanned
	if !scanned {
		ids, set = e.unscanIDs, e.unscanned
	}
	out := make([]func(*module.Module), 0, len(set))
	for _, id := range ids {
		if fn, ok := set[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
