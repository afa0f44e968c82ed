// Package accessor turns introspected program elements into cached,
// strongly-typed callable handles.
//
// A Cache introspects a type's fields, properties (getter/SetX method
// pairs), and methods exactly once and hands out identity-stable
// Descriptors. Every descriptor offers a universal boxed get/set/invoke
// path; where the element's shape allows it, generic helpers (GetterOf,
// SetterOf, FuncOf, Invoke) expose a strongly-typed path that callers
// should prefer in performance-critical code.
//
// Descriptors live for the lifetime of their Cache and are never evicted.
// Hosts that reload module definitions should build a fresh Cache per
// generation rather than expect eviction.
package accessor

import (
	"fmt"
	"reflect"

	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
)

// Kind classifies what program element a Descriptor represents.
type Kind uint8

const (
	// KindType represents the type itself (markers only, no value access).
	KindType Kind = iota
	// KindField represents a struct field.
	KindField
	// KindProperty represents a getter/SetX method pair.
	KindProperty
	// KindMethod represents a callable method.
	KindMethod
	// KindIndexer represents a parameterized member (Get(args)/SetX(args, v)).
	KindIndexer
	// KindTemplate represents an unclosed generic method template. It must
	// be closed over a concrete type argument before invocation.
	KindTemplate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindField:
		return "field"
	case KindProperty:
		return "property"
	case KindMethod:
		return "method"
	case KindIndexer:
		return "indexer"
	case KindTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// Descriptor is a cached handle to one introspected program element.
//
// Descriptors are immutable after construction except for their holder
// binding, which the owning Cache updates when a module registers a
// singleton holder for the owner type. All fields are therefore read
// through the Cache's lock where mutation is possible.
type Descriptor struct {
	cache *Cache

	owner reflect.Type
	name  string
	kind  Kind

	// Value element state (field/property).
	index     []int        // field index path
	valueType reflect.Type // element value type
	exported  bool         // unexported fields are visible but inaccessible
	getter    reflect.Method
	setter    reflect.Method
	hasGetter bool
	hasSetter bool

	// Method element state.
	method   reflect.Method
	fn       reflect.Value // closed template function (receiver-free)
	closed   bool          // fn is valid
	variadic bool

	// Indexer parameter types.
	params []reflect.Type

	// Field markers parsed from the struct tag at construction.
	tagMarkers []marker.Marker

	// Template instantiations, keyed by type argument.
	instantiations map[reflect.Type]reflect.Value
}

// Owner returns the declaring type.
func (d *Descriptor) Owner() reflect.Type { return d.owner }

// Name returns the element name.
func (d *Descriptor) Name() string { return d.name }

// Kind returns the element classification.
func (d *Descriptor) Kind() Kind { return d.kind }

// ValueType returns the element's value type for fields, properties, and
// indexers, and nil for other kinds.
func (d *Descriptor) ValueType() reflect.Type { return d.valueType }

// Static reports whether the element is addressable without a caller
// instance, i.e. the owner type has a registered singleton holder.
func (d *Descriptor) Static() bool {
	if d.cache == nil {
		return false
	}
	_, ok := d.cache.holderFor(d.owner)
	return ok
}

// CanRead reports whether the boxed get path can produce a value.
func (d *Descriptor) CanRead() bool {
	switch d.kind {
	case KindField:
		return d.exported
	case KindProperty, KindIndexer:
		return d.hasGetter
	default:
		return false
	}
}

// CanWrite reports whether the boxed set path can store a value.
func (d *Descriptor) CanWrite() bool {
	switch d.kind {
	case KindField:
		return d.exported
	case KindProperty, KindIndexer:
		return d.hasSetter
	default:
		return false
	}
}

// Markers returns all markers attached to this element: struct-tag markers
// for fields, plus any attachments registered in the cache's marker table.
func (d *Descriptor) Markers() []marker.Marker {
	var out []marker.Marker
	out = append(out, d.tagMarkers...)
	if d.cache != nil {
		switch d.kind {
		case KindType:
			out = append(out, d.cache.Markers().TypeMarkers(d.owner)...)
		case KindMethod, KindTemplate, KindProperty, KindIndexer:
			out = append(out, d.cache.Markers().MethodMarkers(d.owner, d.name)...)
		}
	}
	return out
}

// Marker returns the first attached marker of the given kind.
func (d *Descriptor) Marker(kind string) (marker.Marker, bool) {
	for _, m := range d.Markers() {
		if m.Kind == kind {
			return m, true
		}
	}
	return marker.Marker{}, false
}

// HasMarker reports whether a marker of the given kind is attached.
func (d *Descriptor) HasMarker(kind string) bool {
	_, ok := d.Marker(kind)
	return ok
}

// String returns "Owner.Name (kind)" for logs and errors.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s.%s (%s)", d.owner, d.name, d.kind)
}
