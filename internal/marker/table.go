package marker

import (
	"reflect"
	"sync"
)

// Table attaches markers to types and methods by explicit registration.
// Go has no type- or method-level tags, so modules populate a Table when
// they register their scannable types.
//
// Table is safe for concurrent use. Lookup methods return copies; callers
// may retain the slices freely.
type Table struct {
	mu      sync.RWMutex
	types   map[reflect.Type][]Marker
	methods map[methodKey][]Marker
}

type methodKey struct {
	owner reflect.Type
	name  string
}

// NewTable creates an empty marker table.
func NewTable() *Table {
	return &Table{
		types:   make(map[reflect.Type][]Marker),
		methods: make(map[methodKey][]Marker),
	}
}

// MarkType sets the markers attached to a type. Attachments describe the
// element itself, so re-registration replaces rather than appends; marking
// the same type twice with the same markers is idempotent.
func (t *Table) MarkType(owner reflect.Type, markers ...Marker) {
	if owner == nil || len(markers) == 0 {
		return
	}
	t.mu.Lock()
	t.types[owner] = copyMarkers(markers)
	t.mu.Unlock()
}

// MarkMethod sets the markers attached to a named method of a type.
// Same replace semantics as MarkType.
func (t *Table) MarkMethod(owner reflect.Type, method string, markers ...Marker) {
	if owner == nil || method == "" || len(markers) == 0 {
		return
	}
	t.mu.Lock()
	t.methods[methodKey{owner: owner, name: method}] = copyMarkers(markers)
	t.mu.Unlock()
}

// UnmarkType removes every marker attached to a type.
func (t *Table) UnmarkType(owner reflect.Type) {
	if owner == nil {
		return
	}
	t.mu.Lock()
	delete(t.types, owner)
	t.mu.Unlock()
}

// UnmarkMethod removes every marker attached to a named method of a type.
func (t *Table) UnmarkMethod(owner reflect.Type, method string) {
	if owner == nil || method == "" {
		return
	}
	t.mu.Lock()
	delete(t.methods, methodKey{owner: owner, name: method})
	t.mu.Unlock()
}

// TypeMarkers returns markers attached to a type.
func (t *Table) TypeMarkers(owner reflect.Type) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyMarkers(t.types[owner])
}

// MethodMarkers returns markers attached to a method of a type.
func (t *Table) MethodMarkers(owner reflect.Type, method string) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyMarkers(t.methods[methodKey{owner: owner, name: method}])
}

func copyMarkers(src []Marker) []Marker {
	if len(src) == 0 {
		return nil
	}
	out := make([]Marker, len(src))
	copy(out, src)
	return out
}
