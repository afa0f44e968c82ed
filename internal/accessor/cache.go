package accessor

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
)

// Cache introspects types once and hands out identity-stable descriptors.
//
// Caching is unconditional: two lookups of the same (type, element) pair
// always return the identical *Descriptor. Entries are never evicted; the
// cache is expected to live as long as the process (or the module
// generation it serves).
//
// Cache is safe for concurrent use. Locks are held only around map access,
// never across reflection-heavy construction of a descriptor that another
// goroutine could also be building; the second builder loses and adopts
// the first one's descriptor.
type Cache struct {
	mu        sync.RWMutex
	members   map[memberKey]*Descriptor
	methods   map[memberKey]*Descriptor
	indexers  map[indexerKey]*Descriptor
	types     map[reflect.Type]*Descriptor
	templates map[memberKey]*Descriptor
	closed    map[closedKey]*Descriptor
	holders   map[reflect.Type]reflect.Value
	defaults  map[memberKey][]any

	markers *marker.Table
}

type memberKey struct {
	owner reflect.Type
	name  string
}

type indexerKey struct {
	owner reflect.Type
	name  string
	sig   string
}

type closedKey struct {
	owner   reflect.Type
	name    string
	typeArg reflect.Type
}

// NewCache creates an empty descriptor cache.
func NewCache() *Cache {
	return &Cache{
		members:   make(map[memberKey]*Descriptor),
		methods:   make(map[memberKey]*Descriptor),
		indexers:  make(map[indexerKey]*Descriptor),
		types:     make(map[reflect.Type]*Descriptor),
		templates: make(map[memberKey]*Descriptor),
		closed:    make(map[closedKey]*Descriptor),
		holders:   make(map[reflect.Type]reflect.Value),
		defaults:  make(map[memberKey][]any),
	}
}

// Markers returns the cache's marker attachment table.
func (c *Cache) Markers() *marker.Table {
	c.mu.Lock()
	if c.markers == nil {
		c.markers = marker.NewTable()
	}
	t := c.markers
	c.mu.Unlock()
	return t
}

// BindHolder registers a singleton holder for its struct type. Elements of
// that type become static: addressable without a caller-supplied instance.
// The holder must be a non-nil pointer to a struct.
func (c *Cache) BindHolder(holder any) error {
	rv := reflect.ValueOf(holder)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() ||
		rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: holder must be a non-nil pointer to struct, got %T",
			ErrArgument, holder)
	}
	c.mu.Lock()
	c.holders[rv.Type().Elem()] = rv
	c.mu.Unlock()
	return nil
}

// UnbindHolder removes a holder binding for a struct type. Descriptors of
// that type revert to instance-bound access.
func (c *Cache) UnbindHolder(t reflect.Type) {
	t = baseType(t)
	c.mu.Lock()
	delete(c.holders, t)
	c.mu.Unlock()
}

func (c *Cache) holderFor(t reflect.Type) (reflect.Value, bool) {
	c.mu.RLock()
	v, ok := c.holders[t]
	c.mu.RUnlock()
	return v, ok
}

// TypeDescriptor returns the descriptor for the type itself, used to query
// type-level markers during scanning.
func (c *Cache) TypeDescriptor(t reflect.Type) *Descriptor {
	t = baseType(t)
	c.mu.RLock()
	d, ok := c.types[t]
	c.mu.RUnlock()
	if ok {
		return d
	}

	d = &Descriptor{cache: c, owner: t, name: t.Name(), kind: KindType}
	c.mu.Lock()
	if prior, ok := c.types[t]; ok {
		d = prior
	} else {
		c.types[t] = d
	}
	c.mu.Unlock()
	return d
}

// GetMember returns the descriptor for a named field or property of t.
// A property is a getter method Name() V, optionally paired with a setter
// SetName(V). Fields shadow properties of the same name. Fails with
// ErrMissingMember if the type has neither.
func (c *Cache) GetMember(t reflect.Type, name string) (*Descriptor, error) {
	if t == nil || name == "" {
		return nil, fmt.Errorf("%w: nil type or empty member name", ErrArgument)
	}
	t = baseType(t)

	key := memberKey{owner: t, name: name}
	c.mu.RLock()
	d, ok := c.members[key]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := c.buildMember(t, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if prior, ok := c.members[key]; ok {
		d = prior
	} else {
		c.members[key] = d
	}
	c.mu.Unlock()
	return d, nil
}

func (c *Cache) buildMember(t reflect.Type, name string) (*Descriptor, error) {
	if t.Kind() == reflect.Struct {
		if f, ok := t.FieldByName(name); ok {
			tagMarkers, err := marker.ParseTag(f.Tag.Get(marker.TagKey))
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrArgument, t, name, err)
			}
			return &Descriptor{
				cache:      c,
				owner:      t,
				name:       name,
				kind:       KindField,
				index:      f.Index,
				valueType:  f.Type,
				exported:   f.IsExported(),
				tagMarkers: tagMarkers,
			}, nil
		}
	}

	// Fall back to a getter/SetName property pair.
	d := &Descriptor{cache: c, owner: t, name: name, kind: KindProperty}
	pt := methodHost(t)

	if g, ok := pt.MethodByName(name); ok &&
		g.Type.NumIn() == 1 && g.Type.NumOut() == 1 {
		d.getter = g
		d.hasGetter = true
		d.valueType = g.Type.Out(0)
	}
	if s, ok := pt.MethodByName("Set" + name); ok &&
		s.Type.NumIn() == 2 && s.Type.NumOut() <= 1 &&
		(!d.hasGetter || s.Type.In(1) == d.valueType) &&
		(s.Type.NumOut() == 0 || isErrorType(s.Type.Out(0))) {
		d.setter = s
		d.hasSetter = true
		if !d.hasGetter {
			d.valueType = s.Type.In(1)
		}
	}

	if !d.hasGetter && !d.hasSetter {
		return nil, fmt.Errorf("%w: %s has no member %q", ErrMissingMember, t, name)
	}
	return d, nil
}

// GetMethod returns the descriptor for a named method of t. When
// paramTypes are supplied, the method's parameter list must match them
// exactly (a trailing-prefix match is allowed when declared defaults cover
// the remainder); otherwise any method with the name matches. Fails with
// ErrMissingMethod if no method matches. If a generic template is
// registered under the name, the unclosed template descriptor is returned.
func (c *Cache) GetMethod(t reflect.Type, name string, paramTypes ...reflect.Type) (*Descriptor, error) {
	if t == nil || name == "" {
		return nil, fmt.Errorf("%w: nil type or empty method name", ErrArgument)
	}
	t = baseType(t)
	key := memberKey{owner: t, name: name}

	c.mu.RLock()
	tmpl, isTemplate := c.templates[key]
	d, ok := c.methods[key]
	c.mu.RUnlock()

	if isTemplate {
		return tmpl, nil
	}

	if !ok {
		m, found := methodHost(t).MethodByName(name)
		if !found {
			return nil, fmt.Errorf("%w: %s has no method %q", ErrMissingMethod, t, name)
		}
		d = &Descriptor{
			cache:    c,
			owner:    t,
			name:     name,
			kind:     KindMethod,
			method:   m,
			variadic: m.Type.IsVariadic(),
		}
		c.mu.Lock()
		if prior, ok := c.methods[key]; ok {
			d = prior
		} else {
			c.methods[key] = d
		}
		c.mu.Unlock()
	}

	if len(paramTypes) > 0 && !d.matchesParams(paramTypes, c.declaredDefaults(key)) {
		return nil, fmt.Errorf("%w: %s.%s: no overload matching (%s)",
			ErrMissingMethod, t, name, typeList(paramTypes))
	}
	return d, nil
}

// matchesParams reports whether the method's declared parameters (minus
// the receiver) match want, allowing omission of trailing parameters that
// declared defaults cover.
func (d *Descriptor) matchesParams(want []reflect.Type, defaults []any) bool {
	mt := d.method.Type
	declared := mt.NumIn() - 1
	if len(want) > declared {
		return false
	}
	if len(want) < declared && declared-len(want) > len(defaults) {
		return false
	}
	for i, w := range want {
		if mt.In(i+1) != w {
			return false
		}
	}
	return true
}

// GetIndexer returns the descriptor for a parameterized member: a getter
// method name(params...) V with an optional setter Setname(params..., V).
// Indexers have no strongly-typed path; use the boxed GetValueIndexed and
// SetValueIndexed.
func (c *Cache) GetIndexer(t reflect.Type, name string, paramTypes []reflect.Type) (*Descriptor, error) {
	if t == nil || name == "" || len(paramTypes) == 0 {
		return nil, fmt.Errorf("%w: indexer lookup requires a type, name, and parameter types", ErrArgument)
	}
	t = baseType(t)
	key := indexerKey{owner: t, name: name, sig: typeList(paramTypes)}

	c.mu.RLock()
	d, ok := c.indexers[key]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	pt := methodHost(t)
	g, found := pt.MethodByName(name)
	if !found || g.Type.NumIn() != len(paramTypes)+1 || g.Type.NumOut() != 1 {
		return nil, fmt.Errorf("%w: %s has no indexer %q(%s)",
			ErrMissingMember, t, name, typeList(paramTypes))
	}
	for i, p := range paramTypes {
		if g.Type.In(i+1) != p {
			return nil, fmt.Errorf("%w: %s has no indexer %q(%s)",
				ErrMissingMember, t, name, typeList(paramTypes))
		}
	}

	d = &Descriptor{
		cache:     c,
		owner:     t,
		name:      name,
		kind:      KindIndexer,
		getter:    g,
		hasGetter: true,
		valueType: g.Type.Out(0),
		params:    append([]reflect.Type(nil), paramTypes...),
	}
	if s, ok := pt.MethodByName("Set" + name); ok &&
		s.Type.NumIn() == len(paramTypes)+2 &&
		s.Type.In(len(paramTypes)+1) == d.valueType {
		match := true
		for i, p := range paramTypes {
			if s.Type.In(i+1) != p {
				match = false
				break
			}
		}
		if match {
			d.setter = s
			d.hasSetter = true
		}
	}

	c.mu.Lock()
	if prior, ok := c.indexers[key]; ok {
		d = prior
	} else {
		c.indexers[key] = d
	}
	c.mu.Unlock()
	return d, nil
}

// DeclareDefaults declares default values for the trailing parameters of a
// method, enabling the boxed invoke path to backfill omitted arguments.
// defaults align to the rightmost parameters; each must be assignable to
// its parameter type.
func (c *Cache) DeclareDefaults(t reflect.Type, method string, defaults ...any) error {
	d, err := c.GetMethod(t, method)
	if err != nil {
		return err
	}
	if d.kind != KindMethod {
		return fmt.Errorf("%w: defaults are only supported on plain methods", ErrArgument)
	}
	mt := d.method.Type
	declared := mt.NumIn() - 1
	if len(defaults) > declared {
		return fmt.Errorf("%w: %d defaults for %d parameters", ErrArgument, len(defaults), declared)
	}
	offset := declared - len(defaults)
	for i, def := range defaults {
		pt := mt.In(offset + i + 1)
		if def == nil {
			continue
		}
		if !reflect.TypeOf(def).AssignableTo(pt) {
			return fmt.Errorf("%w: default %d (%T) not assignable to %s",
				ErrArgument, i, def, pt)
		}
	}

	c.mu.Lock()
	c.defaults[memberKey{owner: baseType(t), name: method}] = append([]any(nil), defaults...)
	c.mu.Unlock()
	return nil
}

func (c *Cache) declaredDefaults(key memberKey) []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults[key]
}

// RegisterTemplate registers a generic method template: a family of
// function instantiations keyed by type argument. Looking the name up via
// GetMethod yields an unclosed template descriptor; it must be closed over
// a concrete type argument before invocation. Every instantiation must be
// a func value.
func (c *Cache) RegisterTemplate(t reflect.Type, name string, instantiations map[reflect.Type]any) error {
	if t == nil || name == "" || len(instantiations) == 0 {
		return fmt.Errorf("%w: template registration requires a type, name, and instantiations", ErrArgument)
	}
	t = baseType(t)

	insts := make(map[reflect.Type]reflect.Value, len(instantiations))
	for arg, fn := range instantiations {
		fv := reflect.ValueOf(fn)
		if !fv.IsValid() || fv.Kind() != reflect.Func {
			return fmt.Errorf("%w: instantiation for %s is not a func", ErrArgument, arg)
		}
		insts[arg] = fv
	}

	d := &Descriptor{
		cache:          c,
		owner:          t,
		name:           name,
		kind:           KindTemplate,
		instantiations: insts,
	}

	c.mu.Lock()
	c.templates[memberKey{owner: t, name: name}] = d
	c.mu.Unlock()
	return nil
}

// Close resolves a template descriptor over a concrete type argument,
// returning an invocable descriptor. Closed descriptors are cached: closing
// the same template over the same argument returns the same instance.
func (c *Cache) Close(d *Descriptor, typeArg reflect.Type) (*Descriptor, error) {
	if d == nil || d.kind != KindTemplate {
		return nil, fmt.Errorf("%w: Close requires a template descriptor", ErrArgument)
	}
	if typeArg == nil {
		return nil, fmt.Errorf("%w: nil type argument", ErrArgument)
	}

	key := closedKey{owner: d.owner, name: d.name, typeArg: typeArg}
	c.mu.RLock()
	cd, ok := c.closed[key]
	c.mu.RUnlock()
	if ok {
		return cd, nil
	}

	fn, ok := d.instantiations[typeArg]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no instantiation for %s",
			ErrMissingMethod, d.owner, d.name, typeArg)
	}

	cd = &Descriptor{
		cache:    c,
		owner:    d.owner,
		name:     fmt.Sprintf("%s[%s]", d.name, typeArg),
		kind:     KindMethod,
		fn:       fn,
		closed:   true,
		variadic: fn.Type().IsVariadic(),
	}

	c.mu.Lock()
	if prior, ok := c.closed[key]; ok {
		cd = prior
	} else {
		c.closed[key] = cd
	}
	c.mu.Unlock()
	return cd, nil
}

// baseType strips one level of pointer so lookups on T and *T coincide.
func baseType(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// methodHost returns the type whose method set is searched: *T for struct
// types (the superset including pointer receivers), t itself otherwise.
func methodHost(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Struct {
		return reflect.PointerTo(t)
	}
	return t
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool { return t == errType }

func typeList(types []reflect.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
