package entry

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/log"
	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
	"github.com/JMC2002/JmcModLib-sub001/internal/module"
	"github.com/JMC2002/JmcModLib-sub001/internal/store"
)

// UIBuilder is the UI collaborator boundary: the factory hands each new
// entry over exactly once and never calls back beyond that.
type UIBuilder interface {
	BuildUI(e Entry)
}

// PendingUIEntry pairs an entry with its UI-facing marker, queued until a
// UIBuilder is available to consume it.
type PendingUIEntry struct {
	Entry  Entry
	Marker marker.Marker
}

// uiMarkerPrefix identifies UI-facing marker kinds ("ui.slider", ...).
const uiMarkerPrefix = "ui."

// Factory resolves the correct generic entry instantiation at runtime and
// wires entries into persistence, validation, and the UI handoff. It is
// the marker handler for kind "config" and reverses itself on unscan with
// a final write-back.
type Factory struct {
	cache *accessor.Cache
	store store.Store
	log   *log.Logger

	mu         sync.RWMutex
	builders   map[reflect.Type]*builder
	named      map[string]reflect.Type
	convs      map[convKey]conversion
	validators map[string]func(Entry) bool
	uiBuilder  UIBuilder
	pending    []PendingUIEntry
	entries    map[string]map[string]Entry // module -> key -> entry
}

// builder holds the construction closures for one value type, captured
// with the concrete type parameter at registration time. This is the
// dispatch table that stands in for runtime generic instantiation.
type builder struct {
	direct    func(f *Factory, d *accessor.Descriptor, spec entrySpec) (Entry, error)
	converted func(f *Factory, d *accessor.Descriptor, spec entrySpec, conv conversion) (Entry, error)
}

// entrySpec carries the parsed config-marker parameters for one entry.
type entrySpec struct {
	module   string
	group    string
	name     string
	desc     string
	callback string
	uiMk     *marker.Marker
}

func (s entrySpec) key() string { return s.group + "." + s.name }

// NewFactory creates a factory persisting through st and introspecting
// through cache. Built-in entry types (bool, int, int64, float64, string,
// duration) and conversions are pre-registered.
func NewFactory(cache *accessor.Cache, st store.Store) *Factory {
	f := &Factory{
		cache:      cache,
		store:      st,
		log:        log.New("entry.factory"),
		builders:   make(map[reflect.Type]*builder),
		named:      make(map[string]reflect.Type),
		convs:      make(map[convKey]conversion),
		validators: make(map[string]func(Entry) bool),
		entries:    make(map[string]map[string]Entry),
	}

	RegisterEntryType[bool](f, "bool")
	RegisterEntryType[int](f, "int")
	RegisterEntryType[int64](f, "int64")
	RegisterEntryType[float64](f, "float64")
	RegisterEntryType[string](f, "string")
	RegisterEntryType[time.Duration](f, "duration")
	registerBuiltinConversions(f)

	return f
}

// Store returns the factory's persistence backend.
func (f *Factory) Store() store.Store { return f.store }

// RegisterEntryType adds T to the factory's dispatch table under an
// optional marker-facing name.
func RegisterEntryType[T any](f *Factory, name string) {
	t := typeOf[T]()
	b := &builder{
		direct: func(f *Factory, d *accessor.Descriptor, spec entrySpec) (Entry, error) {
			return buildDirect[T](f, d, spec)
		},
		converted: func(f *Factory, d *accessor.Descriptor, spec entrySpec, conv conversion) (Entry, error) {
			return buildConverted[T](f, d, spec, conv)
		},
	}

	f.mu.Lock()
	f.builders[t] = b
	if name != "" {
		f.named[name] = t
	}
	f.mu.Unlock()
}

// RegisterValidator supplies the validity predicate for one UI-marker
// kind, consulted by SyncFromFile and SyncFromData on entries carrying
// that marker.
func (f *Factory) RegisterValidator(uiKind string, fn func(Entry) bool) {
	f.mu.Lock()
	f.validators[uiKind] = fn
	f.mu.Unlock()
}

// validate runs the predicate registered for the entry's UI-marker kind.
// Entries without a UI marker, or kinds without a predicate, are valid.
func (f *Factory) validate(e Entry) bool {
	mk, ok := e.UIMarker()
	if !ok {
		return true
	}
	f.mu.RLock()
	fn := f.validators[mk.Kind]
	f.mu.RUnlock()
	if fn == nil {
		return true
	}
	return fn(e)
}

// HandleMarker implements the router handler for marker kind "config":
// build a typed entry for the marked element, register it under the
// module, pull its persisted value, and hand it to the UI collaborator.
func (f *Factory) HandleMarker(mod *module.Module, d *accessor.Descriptor, mk marker.Marker) error {
	if mk.Kind != marker.KindConfig {
		return nil
	}

	e, err := f.Build(mod, d, mk)
	if err != nil {
		return err
	}
	if err := f.register(mod.Name(), e); err != nil {
		return err
	}

	e.SyncFromFile()
	f.handoffUI(e)
	return nil
}

// Revert implements the router reversal: the module's entries perform
// their final write-back and are dropped.
func (f *Factory) Revert(mod *module.Module, _ []*accessor.Descriptor) error {
	f.mu.Lock()
	owned := f.entries[mod.Name()]
	delete(f.entries, mod.Name())
	f.mu.Unlock()

	for _, e := range owned {
		e.Persist()
	}
	if f.store != nil {
		if err := f.store.Flush(); err != nil {
			f.log.WithError(err).Error("final write-back failed")
		}
	}
	return nil
}

// Build constructs a typed entry for a config-marked element, resolving
// the generic instantiation from the element's declared type and, when the
// UI marker asks for one, a (UI type, logical type) conversion.
func (f *Factory) Build(mod *module.Module, d *accessor.Descriptor, mk marker.Marker) (Entry, error) {
	logical := d.ValueType()
	if logical == nil {
		return nil, oops.With("target", d.String()).With("phase", "construct").
			Wrapf(accessor.ErrArgument, "config marker on a non-value element")
	}

	spec := parseSpec(mod, d, mk)
	errCtx := oops.With("entry", spec.name).With("phase", "construct")

	uiType := logical
	if spec.uiMk != nil {
		if as, ok := spec.uiMk.Param("as"); ok {
			f.mu.RLock()
			t, known := f.named[as]
			f.mu.RUnlock()
			if !known {
				return nil, errCtx.Wrapf(accessor.ErrArgument, "unknown UI type %q", as)
			}
			uiType = t
		}
	}

	f.mu.RLock()
	b := f.builders[uiType]
	var conv conversion
	var haveConv bool
	if uiType != logical {
		conv, haveConv = f.convs[convKey{ui: uiType, logical: logical}]
	}
	f.mu.RUnlock()

	if b == nil {
		return nil, errCtx.Wrapf(accessor.ErrArgument, "no entry type registered for %s", uiType)
	}
	if uiType == logical {
		return b.direct(f, d, spec)
	}
	if !haveConv {
		return nil, errCtx.Wrapf(accessor.ErrArgument,
			"no conversion registered for %s <- %s", uiType, logical)
	}
	return b.converted(f, d, spec, conv)
}

// parseSpec extracts construction parameters from the config marker and
// the descriptor: group defaults to "General", display name to the element
// name. The first UI-facing marker on the element rides along.
func parseSpec(mod *module.Module, d *accessor.Descriptor, mk marker.Marker) entrySpec {
	spec := entrySpec{
		module:   mod.Name(),
		group:    mk.ParamOr("group", "General"),
		name:     mk.ParamOr("name", d.Name()),
		desc:     mk.ParamOr("desc", ""),
		callback: mk.ParamOr("callback", ""),
	}
	for _, m := range d.Markers() {
		if strings.HasPrefix(m.Kind, uiMarkerPrefix) {
			ui := m
			spec.uiMk = &ui
			break
		}
	}
	return spec
}

// buildDirect constructs an entry whose UI-facing type equals the backing
// element's declared type, on the strongly-typed accessor path.
func buildDirect[T any](f *Factory, d *accessor.Descriptor, spec entrySpec) (Entry, error) {
	errCtx := oops.With("entry", spec.key()).With("phase", "construct")

	if !d.Static() {
		return nil, errCtx.Wrapf(accessor.ErrArgument,
			"entries bound to instance state are unsupported - entries must be addressable without an owning object")
	}
	if !d.CanRead() || !d.CanWrite() {
		return nil, errCtx.Wrapf(accessor.ErrArgument,
			"backing element must be both readable and writable")
	}

	get, err := accessor.GetterOf[T](d)
	if err != nil {
		return nil, errCtx.Wrap(err)
	}
	set, err := accessor.SetterOf[T](d)
	if err != nil {
		return nil, errCtx.Wrap(err)
	}

	// DefaultValue is captured by invoking the getter exactly once.
	def, err := get(nil)
	if err != nil {
		return nil, errCtx.Wrap(err)
	}

	opts := commonOptions[T](f, spec)
	if cb := directCallback[T](f, d, spec); cb != nil {
		opts = append(opts, WithCallback(cb))
	}

	return FromClosures(spec.group, spec.name, def,
		func() (T, error) { return get(nil) },
		func(v T) error { return set(nil, v) },
		opts...)
}

// buildConverted constructs an entry whose UI-facing type T differs from
// the backing element's logical type, synthesizing adapter closures that
// convert in each direction through the boxed accessor path.
func buildConverted[T any](f *Factory, d *accessor.Descriptor, spec entrySpec, conv conversion) (Entry, error) {
	errCtx := oops.With("entry", spec.key()).With("phase", "construct")

	if !d.Static() {
		return nil, errCtx.Wrapf(accessor.ErrArgument,
			"entries bound to instance state are unsupported - entries must be addressable without an owning object")
	}
	if !d.CanRead() || !d.CanWrite() {
		return nil, errCtx.Wrapf(accessor.ErrArgument,
			"backing element must be both readable and writable")
	}

	getter := func() (T, error) {
		var zero T
		lv, err := d.GetValue(nil)
		if err != nil {
			return zero, oops.With("entry", spec.key()).With("phase", "get").Wrap(err)
		}
		uv, err := conv.toUI(lv)
		if err != nil {
			return zero, oops.With("entry", spec.key()).With("phase", "get").Wrap(err)
		}
		return uv.(T), nil
	}
	setter := func(v T) error {
		lv, err := conv.fromUI(v)
		if err != nil {
			return oops.With("entry", spec.key()).With("phase", "set").Wrap(err)
		}
		return d.SetValue(nil, lv)
	}

	def, err := getter()
	if err != nil {
		return nil, errCtx.Wrap(err)
	}

	opts := commonOptions[T](f, spec)
	if cb := convertedCallback[T](f, d, spec, conv); cb != nil {
		opts = append(opts, WithCallback(cb))
	}

	return FromClosures(spec.group, spec.name, def, getter, setter, opts...)
}

// commonOptions assembles the options every construction path shares.
func commonOptions[T any](f *Factory, spec entrySpec) []Option[T] {
	opts := []Option[T]{
		WithModule[T](spec.module),
		WithDescription[T](spec.desc),
		WithStore[T](f.store),
		WithValidator[T](f.validate),
	}
	if spec.uiMk != nil {
		opts = append(opts, WithUIMarker[T](*spec.uiMk))
	}
	return opts
}

// directCallback wires the optional change callback for same-type entries:
// a static method taking a single parameter of type T. A method failing
// validation is logged and skipped; it never fails construction.
func directCallback[T any](f *Factory, d *accessor.Descriptor, spec entrySpec) func(T) {
	if spec.callback == "" {
		return nil
	}
	logger := f.log.WithFields(log.Fields{"entry": spec.key(), "callback": spec.callback})

	cbDesc, err := f.cache.GetMethod(d.Owner(), spec.callback)
	if err != nil {
		logger.WithError(err).Warn("change callback not found, skipping")
		return nil
	}
	fn, err := accessor.FuncOf[func(T)](cbDesc, nil)
	if err != nil {
		logger.WithError(err).Warn("change callback has wrong shape, skipping")
		return nil
	}
	return fn
}

// convertedCallback wires the change callback for converted entries: the
// module's method takes the logical type, so the adapter converts the
// UI-facing value back before invoking it. Shape and holder binding are
// validated once here, like the direct path; a method failing validation
// is logged and skipped, never wired.
func convertedCallback[T any](f *Factory, d *accessor.Descriptor, spec entrySpec, conv conversion) func(T) {
	if spec.callback == "" {
		return nil
	}
	logger := f.log.WithFields(log.Fields{"entry": spec.key(), "callback": spec.callback})

	cbDesc, err := f.cache.GetMethod(d.Owner(), spec.callback)
	if err != nil {
		logger.WithError(err).Warn("change callback not found, skipping")
		return nil
	}
	invoke, err := accessor.UnaryOf(cbDesc, nil, d.ValueType())
	if err != nil {
		logger.WithError(err).Warn("change callback has wrong shape, skipping")
		return nil
	}

	return func(v T) {
		lv, err := conv.fromUI(v)
		if err != nil {
			logger.WithError(err).Warn("change callback conversion failed")
			return
		}
		if err := invoke(lv); err != nil {
			logger.WithError(err).Warn("change callback invocation failed")
		}
	}
}

// register records an entry under its module, enforcing key uniqueness
// within the module.
func (f *Factory) register(moduleName string, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	owned, ok := f.entries[moduleName]
	if !ok {
		owned = make(map[string]Entry)
		f.entries[moduleName] = owned
	}
	if _, dup := owned[e.Key()]; dup {
		return oops.With("entry", e.Key()).With("module", moduleName).
			Wrapf(accessor.ErrArgument, "duplicate configuration key")
	}
	owned[e.Key()] = e
	return nil
}

// AddEntry registers an explicitly constructed entry (the closure-triple
// path) under a module, applying the same persistence sync and UI handoff
// as marker-scanned entries.
func (f *Factory) AddEntry(moduleName string, e Entry) error {
	if err := f.register(moduleName, e); err != nil {
		return err
	}
	e.SyncFromFile()
	f.handoffUI(e)
	return nil
}

// Entry returns one module's entry by key.
func (f *Factory) Entry(moduleName, key string) (Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[moduleName][key]
	return e, ok
}

// Entries returns a snapshot of one module's entries.
func (f *Factory) Entries(moduleName string) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	owned := f.entries[moduleName]
	out := make([]Entry, 0, len(owned))
	for _, e := range owned {
		out = append(out, e)
	}
	return out
}

// SyncAllFromFile reconciles every live entry against the store, typically
// driven by a store file watcher.
func (f *Factory) SyncAllFromFile() {
	for _, e := range f.allEntries() {
		e.SyncFromFile()
	}
}

// SyncAllFromData reconciles every live entry against out-of-band state.
func (f *Factory) SyncAllFromData() {
	for _, e := range f.allEntries() {
		e.SyncFromData()
	}
}

func (f *Factory) allEntries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []Entry
	for _, owned := range f.entries {
		for _, e := range owned {
			out = append(out, e)
		}
	}
	return out
}

// SetUIBuilder installs the UI collaborator and drains the pending queue
// through it.
func (f *Factory) SetUIBuilder(b UIBuilder) {
	f.mu.Lock()
	f.uiBuilder = b
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	if b == nil {
		return
	}
	for _, p := range pending {
		b.BuildUI(p.Entry)
	}
}

// PendingUI drains and returns the queued UI handoffs, for collaborators
// that poll instead of registering a builder.
func (f *Factory) PendingUI() []PendingUIEntry {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	return pending
}

// handoffUI delivers an entry carrying a UI marker to the UI collaborator,
// or queues it when none is installed yet.
func (f *Factory) handoffUI(e Entry) {
	mk, ok := e.UIMarker()
	if !ok {
		return
	}

	f.mu.Lock()
	b := f.uiBuilder
	if b == nil {
		f.pending = append(f.pending, PendingUIEntry{Entry: e, Marker: mk})
	}
	f.mu.Unlock()

	if b != nil {
		b.BuildUI(e)
	}
}
