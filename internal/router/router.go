// Package router scans modules for declarative markers and dispatches each
// occurrence to the handlers registered for its kind, with reversible
// per-module bookkeeping.
//
// A module moves Unscanned -> Scanned -> Unscanned; those are the only
// transitions and no partial state is externally observable. Scans of
// different modules may run concurrently; handler execution within one
// scan is synchronous from the caller's perspective.
package router

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/log"
	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
	"github.com/JMC2002/JmcModLib-sub001/internal/module"
)

// Router owns the marker-kind -> handler registry and the scanned-module
// bookkeeping. Create one with New and share it by reference; it is safe
// for concurrent use. Locks guard only the collections and are never held
// across a handler invocation.
type Router struct {
	cache *accessor.Cache
	log   *log.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	records  map[string]*ScanRecord

	events *lifecycleEvents
}

// New creates a router dispatching through the given descriptor cache.
func New(cache *accessor.Cache) *Router {
	return &Router{
		cache:    cache,
		log:      log.New("router"),
		handlers: make(map[string][]Handler),
		records:  make(map[string]*ScanRecord),
		events:   newLifecycleEvents(),
	}
}

// Cache returns the descriptor cache the router scans through.
func (r *Router) Cache() *accessor.Cache { return r.cache }

// RegisterHandler appends a handler for a marker kind. Multiple handlers
// per kind fan out in registration order.
func (r *Router) RegisterHandler(kind string, h Handler) error {
	if kind == "" || h == nil {
		return fmt.Errorf("handler registration requires a marker kind and a handler")
	}
	r.mu.Lock()
	r.handlers[kind] = append(r.handlers[kind], h)
	r.mu.Unlock()
	return nil
}

// UnregisterHandler removes a handler from every kind list. It reports
// whether any removal occurred.
func (r *Router) UnregisterHandler(h Handler) bool {
	removed := false
	r.mu.Lock()
	for kind, list := range r.handlers {
		kept := list[:0]
		for _, cur := range list {
			if cur == h {
				removed = true
				continue
			}
			kept = append(kept, cur)
		}
		if len(kept) == 0 {
			delete(r.handlers, kind)
		} else {
			r.handlers[kind] = kept
		}
	}
	r.mu.Unlock()
	return removed
}

// handlersFor returns a point-in-time snapshot of the handler list for a
// kind, so concurrent registration never corrupts an in-flight scan.
func (r *Router) handlersFor(kind string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.handlers[kind]
	if len(src) == 0 {
		return nil
	}
	out := make([]Handler, len(src))
	copy(out, src)
	return out
}

// IsScanned reports whether a module is currently in the scanned set.
func (r *Router) IsScanned(name string) bool {
	r.mu.RLock()
	_, ok := r.records[name]
	r.mu.RUnlock()
	return ok
}

// Record returns the live scan record for a module, if any.
func (r *Router) Record(name string) (*ScanRecord, bool) {
	r.mu.RLock()
	rec, ok := r.records[name]
	r.mu.RUnlock()
	return rec, ok
}

// ScanModule enumerates the module's scannable types, collects markers on
// each type and on every field/property/method descriptor, and dispatches
// them to the registered handlers. Scanning an already-scanned module is a
// logged no-op. A nil module is a Fatal-severity contract violation: it is
// logged (and panics in strict mode) but does not take the host down.
func (r *Router) ScanModule(mod *module.Module) {
	if mod == nil {
		r.log.Fatal("ScanModule called with nil module")
		return
	}
	logger := r.log.WithField("module", mod.Name())

	// Claim the module. Claiming and checking are one locked step so two
	// concurrent scans of the same module cannot both proceed.
	rec := newScanRecord(mod.Name())
	r.mu.Lock()
	if _, dup := r.records[mod.Name()]; dup {
		r.mu.Unlock()
		logger.Info("module already scanned, skipping")
		return
	}
	r.records[mod.Name()] = rec
	r.mu.Unlock()

	// Apply the module's declared attachments before descriptor lookup so
	// markers are visible on the descriptors.
	markers := r.cache.Markers()
	for _, t := range mod.Types() {
		if tm := mod.TypeMarkers(t); len(tm) > 0 {
			markers.MarkType(t, tm...)
		}
		if holder, ok := mod.Holder(t); ok {
			if err := r.cache.BindHolder(holder); err != nil {
				logger.WithError(err).Error("failed to bind holder")
			}
		}
	}
	for _, mm := range mod.MethodMarks() {
		markers.MarkMethod(mm.Owner, mm.Method, mm.Markers...)
	}

	for _, t := range mod.Types() {
		if !module.Scannable(t) {
			continue
		}
		r.scanType(mod, t, rec, logger)
	}

	logger.Debug("module scan complete")
	r.events.fireScanned(mod)
}

func (r *Router) scanType(mod *module.Module, t reflect.Type, rec *ScanRecord, logger *log.Logger) {
	// The type itself.
	r.dispatch(mod, r.cache.TypeDescriptor(t), rec, logger)

	// Fields.
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			d, err := r.cache.GetMember(t, t.Field(i).Name)
			if err != nil {
				logger.WithError(err).WithField("field", t.Field(i).Name).
					Warn("skipping field during scan")
				continue
			}
			r.dispatch(mod, d, rec, logger)
		}
	}

	// Methods, including property getters; markers on them come from the
	// module's explicit attachments.
	host := t
	if t.Kind() == reflect.Struct {
		host = reflect.PointerTo(t)
	}
	for i := 0; i < host.NumMethod(); i++ {
		d, err := r.cache.GetMethod(t, host.Method(i).Name)
		if err != nil {
			continue
		}
		r.dispatch(mod, d, rec, logger)
	}
}

// dispatch routes every marker on one descriptor to the handlers
// registered for its kind, isolating handler failures.
func (r *Router) dispatch(mod *module.Module, d *accessor.Descriptor, rec *ScanRecord, logger *log.Logger) {
	for _, mk := range d.Markers() {
		for _, h := range r.handlersFor(mk.Kind) {
			r.invoke(h, mod, d, mk, rec, logger)
		}
	}
}

func (r *Router) invoke(h Handler, mod *module.Module, d *accessor.Descriptor, mk marker.Marker, rec *ScanRecord, logger *log.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.WithFields(log.Fields{"marker": mk.Kind, "target": d.String()}).
				Errorf("handler panicked: %v", p)
		}
		rec.add(h, d)
	}()
	if err := h.HandleMarker(mod, d, mk); err != nil {
		logger.WithError(err).WithFields(log.Fields{"marker": mk.Kind, "target": d.String()}).
			Error("handler failed")
	}
}

// UnscanModule removes and consumes the module's scan record, invoking
// each touching handler's optional reversal callback with exactly the
// accessors it processed. Per-handler errors are logged, never propagated.
// Unscanning a module without a record is a no-op.
func (r *Router) UnscanModule(mod *module.Module) {
	if mod == nil {
		r.log.Fatal("UnscanModule called with nil module")
		return
	}
	logger := r.log.WithField("module", mod.Name())

	r.mu.Lock()
	rec, ok := r.records[mod.Name()]
	delete(r.records, mod.Name())
	r.mu.Unlock()
	if !ok {
		logger.Debug("module not scanned, nothing to unscan")
		return
	}

	for _, h := range rec.Handlers() {
		rev, ok := h.(Reverter)
		if !ok {
			continue
		}
		r.revert(rev, mod, rec.Touched(h), logger)
	}

	// The scan applied the module's marker attachments and holder
	// bindings; reverse both so descriptors stop reporting markers of an
	// unloaded module.
	markers := r.cache.Markers()
	for _, t := range mod.Types() {
		if tm := mod.TypeMarkers(t); len(tm) > 0 {
			markers.UnmarkType(t)
		}
		if _, ok := mod.Holder(t); ok {
			r.cache.UnbindHolder(t)
		}
	}
	for _, mm := range mod.MethodMarks() {
		markers.UnmarkMethod(mm.Owner, mm.Method)
	}

	logger.Debug("module unscan complete")
	r.events.fireUnscanned(mod)
}

func (r *Router) revert(rev Reverter, mod *module.Module, touched []*accessor.Descriptor, logger *log.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("reversal panicked: %v", p)
		}
	}()
	if err := rev.Revert(mod, touched); err != nil {
		logger.WithError(err).Error("reversal failed")
	}
}

// OnModuleScanned subscribes to scan completion events. The external
// lifecycle manager typically drives UI refresh from these.
func (r *Router) OnModuleScanned(fn func(*module.Module)) *Subscription {
	return r.events.onScanned(fn)
}

// OnModuleUnscanned subscribes to unscan completion events.
func (r *Router) OnModuleUnscanned(fn func(*module.Module)) *Subscription {
	return r.events.onUnscanned(fn)
}
