// Package entry implements the typed configuration-entry runtime and its
// factory.
//
// A configuration entry owns one value's default, live get/set, change
// notification, persistence sync, and reentrancy safety. Entries are
// generic in their value type; the non-generic Entry interface is the
// capability surface handed to UI and storage collaborators. The Factory
// resolves the correct generic instantiation at runtime from a dispatch
// table keyed by reflect.Type, and is itself a marker handler: markers of
// kind "config" route to it during module scanning.
package entry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/samber/oops"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/log"
	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
	"github.com/JMC2002/JmcModLib-sub001/internal/store"
)

// Entry is the non-generic capability surface of a configuration entry.
type Entry interface {
	// Key is Group + "." + DisplayName, unique within the owning module.
	// Immutable after construction.
	Key() string
	Group() string
	DisplayName() string
	Description() string

	// Module names the owning module.
	Module() string

	// ValueType is the entry's UI-facing value type.
	ValueType() reflect.Type

	// DefaultAny returns the boxed default value.
	DefaultAny() any

	// ValueAny reads the live value boxed. On a read failure it logs and
	// returns the cached current value.
	ValueAny() any

	// SetAny writes a boxed value; fails with an Argument error when the
	// value is not of ValueType.
	SetAny(v any) error

	// Reset sets the entry back to its default. No-op if already equal.
	Reset() error

	// SyncFromFile reconciles the entry against its persisted value.
	SyncFromFile()

	// SyncFromData reconciles the entry against out-of-band mutation of
	// the backing state.
	SyncFromData()

	// Persist stages the current value into the store without notifying.
	Persist()

	// SubscribeAny registers a type-erased change observer.
	SubscribeAny(fn func(old, new any)) *Subscription

	// SubscribeIdentity registers an identity-keyed change observer,
	// used by UI-sync subscribers bound to one entry.
	SubscribeIdentity(fn func(e Entry, old, new any)) *Subscription

	// UIMarker returns the UI-facing marker, when one was attached.
	UIMarker() (marker.Marker, bool)
}

// Subscription is a handle to one change observer.
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

// Typed is a configuration entry for values of type T.
//
// Reentrancy guards are single-writer flags, not locks: concurrent Get/Set
// on the same entry from multiple goroutines is outside the supported
// contract. Subscription management is independently locked and safe.
type Typed[T any] struct {
	group  string
	name   string
	desc   string
	module string
	key    string

	def     T
	current T

	getter func() (T, error)
	setter func(T) error
	equal  func(a, b T) bool

	store     store.Store
	validator func(Entry) bool
	uiMarker  *marker.Marker

	log *log.Logger

	getting bool
	setting bool

	subMu        sync.Mutex
	nextSubID    uint64
	typedSubs    map[uint64]func(old, new T)
	erasedSubs   map[uint64]func(old, new any)
	identitySubs map[uint64]func(e Entry, old, new any)
	typedIDs     []uint64
	erasedIDs    []uint64
	identityIDs  []uint64

	callback func(T)
}

// Option configures a Typed entry at construction.
type Option[T any] func(*Typed[T])

// WithDescription sets the human-readable description.
func WithDescription[T any](desc string) Option[T] {
	return func(e *Typed[T]) { e.desc = desc }
}

// WithModule names the owning module.
func WithModule[T any](name string) Option[T] {
	return func(e *Typed[T]) { e.module = name }
}

// WithStore links the entry to a persistence backend.
func WithStore[T any](s store.Store) Option[T] {
	return func(e *Typed[T]) { e.store = s }
}

// WithEquality overrides the debounce comparison. The default is
// reflect.DeepEqual.
func WithEquality[T any](eq func(a, b T) bool) Option[T] {
	return func(e *Typed[T]) { e.equal = eq }
}

// WithCallback wires the optional change callback, fired last in the
// notification order.
func WithCallback[T any](fn func(T)) Option[T] {
	return func(e *Typed[T]) { e.callback = fn }
}

// WithValidator wires the validity predicate consulted by the sync paths.
func WithValidator[T any](fn func(Entry) bool) Option[T] {
	return func(e *Typed[T]) { e.validator = fn }
}

// WithUIMarker attaches the UI-facing marker.
func WithUIMarker[T any](mk marker.Marker) Option[T] {
	return func(e *Typed[T]) { e.uiMarker = &mk }
}

// FromClosures constructs an entry from an explicit getter, setter, and
// default value. The default is taken as given, never re-derived from the
// getter: callers may intentionally seed a starting value the getter does
// not yet report. CurrentValue starts at the default.
func FromClosures[T any](group, name string, def T, getter func() (T, error), setter func(T) error, opts ...Option[T]) (*Typed[T], error) {
	if group == "" || name == "" {
		return nil, oops.Wrapf(accessor.ErrArgument, "entry requires a group and display name")
	}
	if getter == nil || setter == nil {
		return nil, oops.With("entry", group+"."+name).
			Wrapf(accessor.ErrArgument, "entry requires a getter and a setter")
	}

	e := &Typed[T]{
		group:        group,
		name:         name,
		key:          group + "." + name,
		def:          def,
		current:      def,
		getter:       getter,
		setter:       setter,
		equal:        func(a, b T) bool { return reflect.DeepEqual(a, b) },
		typedSubs:    make(map[uint64]func(old, new T)),
		erasedSubs:   make(map[uint64]func(old, new any)),
		identitySubs: make(map[uint64]func(e Entry, old, new any)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = log.New("entry").WithField("key", e.key)
	return e, nil
}

// Key returns Group + "." + DisplayName.
func (e *Typed[T]) Key() string { return e.key }

// Group returns the entry's group.
func (e *Typed[T]) Group() string { return e.group }

// DisplayName returns the entry's display name.
func (e *Typed[T]) DisplayName() string { return e.name }

// Description returns the entry's description.
func (e *Typed[T]) Description() string { return e.desc }

// Module returns the owning module's name.
func (e *Typed[T]) Module() string { return e.module }

// ValueType returns the entry's value type.
func (e *Typed[T]) ValueType() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// Default returns the typed default value.
func (e *Typed[T]) Default() T { return e.def }

// DefaultAny implements Entry.
func (e *Typed[T]) DefaultAny() any { return e.def }

// Current returns the cached current value: the last value that
// successfully passed through the set path.
func (e *Typed[T]) Current() T { return e.current }

// UIMarker implements Entry.
func (e *Typed[T]) UIMarker() (marker.Marker, bool) {
	if e.uiMarker == nil {
		return marker.Marker{}, false
	}
	return *e.uiMarker, true
}

// Get reads the live value through the backing getter. A reentrant call
// (a self-referential getter loop) is logged at Fatal severity and breaks
// the loop by returning the default value.
func (e *Typed[T]) Get() (T, error) {
	if e.getting {
		e.log.Fatal("reentrant get, returning default value")
		return e.def, nil
	}
	e.getting = true
	defer func() { e.getting = false }()

	v, err := e.getter()
	if err != nil {
		var zero T
		return zero, oops.With("entry", e.key).With("phase", "get").Wrap(err)
	}
	return v, nil
}

// Set writes a new value. The operation is debounced: when v equals the
// current value by the entry's equality rule, the setter, persistence, and
// every notification are skipped. Otherwise the current value is updated
// optimistically, the backing setter runs, the value is persisted, and the
// notification chain fires in fixed order: typed observers, type-erased
// observers, identity-keyed observers, then the change callback. If the
// setter fails, the current value is rolled back and nothing fires.
// A reentrant call is logged at Fatal severity and has no effect.
func (e *Typed[T]) Set(v T) error {
	if e.setting {
		e.log.Fatal("reentrant set ignored")
		return nil
	}
	if e.equal(v, e.current) {
		return nil
	}
	e.setting = true
	defer func() { e.setting = false }()

	old := e.current
	e.current = v
	if err := e.setter(v); err != nil {
		e.current = old
		return oops.With("entry", e.key).With("phase", "set").Wrap(err)
	}

	if e.store != nil {
		e.store.Save(e.name, e.group, v)
	}

	for _, fn := range e.typedSnapshot() {
		fn(old, v)
	}
	for _, fn := range e.erasedSnapshot() {
		fn(old, v)
	}
	for _, fn := range e.identitySnapshot() {
		fn(e, old, v)
	}
	if e.callback != nil {
		e.callback(v)
	}
	return nil
}

// Reset routes through Set with the default value.
func (e *Typed[T]) Reset() error { return e.Set(e.def) }

// ValueAny implements Entry.
func (e *Typed[T]) ValueAny() any {
	v, err := e.Get()
	if err != nil {
		e.log.WithError(err).Warn("live read failed, returning cached value")
		return e.current
	}
	return v
}

// SetAny implements Entry.
func (e *Typed[T]) SetAny(v any) error {
	tv, ok := v.(T)
	if !ok {
		return oops.With("entry", e.key).With("phase", "set").
			Wrapf(accessor.ErrArgument, "expected %s, got %T", e.ValueType(), v)
	}
	return e.Set(tv)
}

// Persist stages the current value into the store without notifying.
func (e *Typed[T]) Persist() {
	if e.store != nil {
		e.store.Save(e.name, e.group, e.current)
	}
}

// SyncFromFile reconciles the entry with its persisted value. An absent
// value persists the current one as the initial baseline. A present, equal
// value is a no-op. A present, different value is applied through Set; if
// the validity predicate rejects the applied value the entry reverts to
// its pre-load value with a warning, and if applying fails the pre-load
// value is re-persisted, self-healing a corrupt stored value.
func (e *Typed[T]) SyncFromFile() {
	if e.store == nil {
		return
	}

	raw, found := e.store.TryLoad(e.name, e.group, e.ValueType())
	if !found {
		e.store.Save(e.name, e.group, e.current)
		return
	}
	v, ok := raw.(T)
	if !ok {
		e.log.Warnf("persisted value has type %T, re-persisting current", raw)
		e.store.Save(e.name, e.group, e.current)
		return
	}
	if e.equal(v, e.current) {
		return
	}

	pre := e.current
	if err := e.Set(v); err != nil {
		e.log.WithError(err).Warn("persisted value failed to apply, re-persisting pre-load value")
		e.store.Save(e.name, e.group, pre)
		return
	}
	if e.validator != nil && !e.validator(e) {
		e.log.Warn("persisted value rejected by validity predicate, reverting")
		if err := e.Set(pre); err != nil {
			e.log.WithError(err).Error("failed to revert to pre-load value")
		}
	}
}

// SyncFromData re-reads the live getter (not the cache) to detect
// out-of-band mutation by code that bypassed Set. A differing live value
// is applied through Set so persistence and notifications observe it, then
// validated and rolled back if invalid.
func (e *Typed[T]) SyncFromData() {
	live, err := e.Get()
	if err != nil {
		e.log.WithError(err).Warn("live read failed during data sync")
		return
	}
	if e.equal(live, e.current) {
		return
	}

	pre := e.current
	if err := e.Set(live); err != nil {
		e.log.WithError(err).Warn("out-of-band value failed to apply")
		return
	}
	if e.validator != nil && !e.validator(e) {
		e.log.Warn("out-of-band value rejected by validity predicate, reverting")
		if err := e.Set(pre); err != nil {
			e.log.WithError(err).Error("failed to revert out-of-band value")
		}
	}
}

// Subscribe registers a typed change observer, fired first in the
// notification order.
func (e *Typed[T]) Subscribe(fn func(old, new T)) *Subscription {
	e.subMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.typedSubs[id] = fn
	e.typedIDs = append(e.typedIDs, id)
	e.subMu.Unlock()
	return &Subscription{id: id, cancel: func(id uint64) {
		e.subMu.Lock()
		delete(e.typedSubs, id)
		e.subMu.Unlock()
	}}
}

// SubscribeAny implements Entry.
func (e *Typed[T]) SubscribeAny(fn func(old, new any)) *Subscription {
	e.subMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.erasedSubs[id] = fn
	e.erasedIDs = append(e.erasedIDs, id)
	e.subMu.Unlock()
	return &Subscription{id: id, cancel: func(id uint64) {
		e.subMu.Lock()
		delete(e.erasedSubs, id)
		e.subMu.Unlock()
	}}
}

// SubscribeIdentity implements Entry.
func (e *Typed[T]) SubscribeIdentity(fn func(e Entry, old, new any)) *Subscription {
	e.subMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.identitySubs[id] = fn
	e.identityIDs = append(e.identityIDs, id)
	e.subMu.Unlock()
	return &Subscription{id: id, cancel: func(id uint64) {
		e.subMu.Lock()
		delete(e.identitySubs, id)
		e.subMu.Unlock()
	}}
}

func (e *Typed[T]) typedSnapshot() []func(old, new T) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	out := make([]func(old, new T), 0, len(e.typedSubs))
	for _, id := range e.typedIDs {
		if fn, ok := e.typedSubs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (e *Typed[T]) erasedSnapshot() []func(old, new any) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	out := make([]func(old, new any), 0, len(e.erasedSubs))
	for _, id := range e.erasedIDs {
		if fn, ok := e.erasedSubs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (e *Typed[T]) identitySnapshot() []func(e Entry, old, new any) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	out := make([]func(e Entry, old, new any), 0, len(e.identitySubs))
	for _, id := range e.identityIDs {
		if fn, ok := e.identitySubs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// String returns "key (type)" for logs.
func (e *Typed[T]) String() string {
	return fmt.Sprintf("%s (%s)", e.key, e.ValueType())
}
