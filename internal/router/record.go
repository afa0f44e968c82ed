package router

import (
	"sync"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
)

// ScanRecord tracks, per module, which accessors each handler processed
// during a scan. It is created when a scan claims the module and consumed
// by the matching unscan; its existence is what makes a module "scanned".
type ScanRecord struct {
	module string

	mu      sync.Mutex
	order   []Handler
	touched map[Handler][]*accessor.Descriptor
}

func newScanRecord(moduleName string) *ScanRecord {
	return &ScanRecord{
		module:  moduleName,
		touched: make(map[Handler][]*accessor.Descriptor),
	}
}

// Module returns the owning module's name.
func (r *ScanRecord) Module() string { return r.module }

func (r *ScanRecord) add(h Handler, d *accessor.Descriptor) {
	r.mu.Lock()
	if _, seen := r.touched[h]; !seen {
		r.order = append(r.order, h)
	}
	r.touched[h] = append(r.touched[h], d)
	r.mu.Unlock()
}

// Handlers returns the handlers that touched the module, in first-touch order.
func (r *ScanRecord) Handlers() []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handler, len(r.order))
	copy(out, r.order)
	return out
}

// Touched returns the accessors a handler processed during the scan.
func (r *ScanRecord) Touched(h Handler) []*accessor.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.touched[h]
	out := make([]*accessor.Descriptor, len(src))
	copy(out, src)
	return out
}
