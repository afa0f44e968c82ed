// Package module defines the unit of marker scanning: an independently
// loadable set of types and singleton holders, with configuration key
// uniqueness scoped to one module.
//
// Go cannot enumerate the types of a compilation unit at runtime, so a
// module declares its scannable surface explicitly: holders (singleton
// struct pointers whose fields act as static state) and plain types whose
// elements are instance-bound. Type- and method-level markers, which have
// no struct-tag equivalent, are declared alongside the registration.
package module

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
)

// Module is one scannable unit. The zero value is not usable; create
// modules with New.
type Module struct {
	name string

	mu      sync.RWMutex
	order   []reflect.Type
	holders map[reflect.Type]any
	typeMk  map[reflect.Type][]marker.Marker
	methods []MethodMark
}

// MethodMark is a marker attachment on a named method of a registered type.
type MethodMark struct {
	Owner   reflect.Type
	Method  string
	Markers []marker.Marker
}

// New creates a named module.
func New(name string) *Module {
	return &Module{
		name:    name,
		holders: make(map[reflect.Type]any),
		typeMk:  make(map[reflect.Type][]marker.Marker),
	}
}

// Name returns the module's unique name.
func (m *Module) Name() string { return m.name }

// RegisterHolder registers a singleton holder: a non-nil pointer to a
// struct whose fields are the module's static state. Optional markers
// attach to the holder's type.
func (m *Module) RegisterHolder(holder any, markers ...marker.Marker) error {
	rv := reflect.ValueOf(holder)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() ||
		rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("holder must be a non-nil pointer to struct, got %T", holder)
	}
	t := rv.Type().Elem()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.holders[t]; !dup {
		if _, known := m.typeMk[t]; !known {
			m.order = append(m.order, t)
		}
	}
	m.holders[t] = holder
	m.typeMk[t] = append(m.typeMk[t], markers...)
	return nil
}

// RegisterType registers a scannable type by example value. Elements of the
// type are instance-bound. Optional markers attach to the type.
func (m *Module) RegisterType(example any, markers ...marker.Marker) error {
	t := reflect.TypeOf(example)
	if t == nil {
		return fmt.Errorf("cannot register a nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !Scannable(t) {
		return fmt.Errorf("type %s is not scannable", t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.typeMk[t]; !known {
		m.order = append(m.order, t)
	}
	m.typeMk[t] = append(m.typeMk[t], markers...)
	return nil
}

// MarkMethod attaches markers to a named method of a registered type.
func (m *Module) MarkMethod(example any, method string, markers ...marker.Marker) error {
	t := reflect.TypeOf(example)
	if t == nil || method == "" || len(markers) == 0 {
		return fmt.Errorf("method marking requires a type, method name, and markers")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.typeMk[t]; !known {
		return fmt.Errorf("type %s is not registered with module %q", t, m.name)
	}
	m.methods = append(m.methods, MethodMark{Owner: t, Method: method, Markers: markers})
	return nil
}

// Types returns the registered scannable types in registration order.
func (m *Module) Types() []reflect.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]reflect.Type, len(m.order))
	copy(out, m.order)
	return out
}

// Holder returns the singleton holder for a type, if registered.
func (m *Module) Holder(t reflect.Type) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[t]
	return h, ok
}

// TypeMarkers returns the markers attached to a registered type.
func (m *Module) TypeMarkers(t reflect.Type) []marker.Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.typeMk[t]
	if len(src) == 0 {
		return nil
	}
	out := make([]marker.Marker, len(src))
	copy(out, src)
	return out
}

// MethodMarks returns all method marker attachments.
func (m *Module) MethodMarks() []MethodMark {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MethodMark, len(m.methods))
	copy(out, m.methods)
	return out
}

// Scannable reports whether a type participates in marker scanning.
// Interfaces, pointers, arrays, slices, funcs, and channels are excluded;
// unexported types are included, since markers are legitimately used on
// library-internal code.
func Scannable(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Array, reflect.Slice,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	default:
		return true
	}
}
