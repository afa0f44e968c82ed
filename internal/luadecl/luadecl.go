// Package luadecl lets a module ship a Lua manifest that declares
// configuration entries. The manifest is an ordinary Lua script run with a
// global declare{} function:
//
//	declare{
//	    group       = "Audio",
//	    name        = "Volume",
//	    type        = "float",
//	    default     = 0.8,
//	    description = "Master output volume",
//	    ui          = "slider",
//	    on_change   = function(v) ... end,
//	}
//
// Declared values live in Go-side cells owned by the manifest; the entries
// created from them go through the same closure path as hand-built entries.
//
// IMPORTANT: gopher-lua's LState is not goroutine-safe. All entry operations
// that can reach an on_change handler (Set, Reset, sync) must run on the
// goroutine that owns the manifest's LState.
package luadecl

import (
	"fmt"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/JMC2002/JmcModLib-sub001/internal/entry"
	"github.com/JMC2002/JmcModLib-sub001/internal/log"
	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
)

// Manifest holds the Lua state and the entries a script declared through it.
// Close the manifest when the owning module is unloaded.
type Manifest struct {
	module  string
	factory *entry.Factory
	state   *lua.LState
	entries []entry.Entry

	// Table storing on_change handler functions to prevent GC.
	handlerTbl *lua.LTable
	nextID     int
}

// Load runs the Lua manifest at path and registers every entry it declares
// with the factory under the given module name. The returned Manifest owns
// the Lua state; callers must Close it when the module unloads.
func Load(f *entry.Factory, moduleName, path string) (*Manifest, error) {
	m := newManifest(f, moduleName)
	if err := m.state.DoFile(path); err != nil {
		m.Close()
		return nil, oops.With("module", moduleName).With("path", path).Wrapf(err, "load manifest")
	}
	return m, nil
}

// LoadString runs an in-memory manifest script. Used by tests and by
// modules that embed their manifest.
func LoadString(f *entry.Factory, moduleName, script string) (*Manifest, error) {
	m := newManifest(f, moduleName)
	if err := m.state.DoString(script); err != nil {
		m.Close()
		return nil, oops.With("module", moduleName).Wrapf(err, "load manifest")
	}
	return m, nil
}

func newManifest(f *entry.Factory, moduleName string) *Manifest {
	L := lua.NewState()
	m := &Manifest{
		module:     moduleName,
		factory:    f,
		state:      L,
		handlerTbl: L.NewTable(),
	}
	L.SetGlobal("_decl_handlers", m.handlerTbl)
	L.SetGlobal("declare", L.NewFunction(m.declare))
	return m
}

// Entries returns the entries declared so far, in declaration order.
func (m *Manifest) Entries() []entry.Entry {
	out := make([]entry.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Close releases the Lua state. Entries created by the manifest remain
// registered but their on_change handlers stop firing.
func (m *Manifest) Close() {
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
	m.handlerTbl = nil
}

// declare(tbl) implements the global declare{} function.
func (m *Manifest) declare(L *lua.LState) int {
	tbl := L.CheckTable(1)

	group := stringField(tbl, "group", "General")
	name := stringField(tbl, "name", "")
	if name == "" {
		L.RaiseError("declare: name is required")
		return 0
	}
	typ := stringField(tbl, "type", "")
	desc := stringField(tbl, "description", "")

	var uiMk marker.Marker
	if ui := stringField(tbl, "ui", ""); ui != "" {
		uiMk = marker.New("ui." + ui)
	}

	handler := m.captureHandler(tbl.RawGetString("on_change"))

	var (
		e   entry.Entry
		err error
	)
	switch typ {
	case "bool":
		e, err = declareCell(m, group, name, desc, uiMk, handler, boolField(tbl, "default"))
	case "int":
		e, err = declareCell(m, group, name, desc, uiMk, handler, intField(tbl, "default"))
	case "float", "":
		e, err = declareCell(m, group, name, desc, uiMk, handler, floatField(tbl, "default"))
	case "string":
		e, err = declareCell(m, group, name, desc, uiMk, handler, stringField(tbl, "default", ""))
	case "duration":
		d, perr := durationField(tbl, "default")
		if perr != nil {
			L.RaiseError("declare %s.%s: %v", group, name, perr)
			return 0
		}
		e, err = declareCell(m, group, name, desc, uiMk, handler, d)
	default:
		L.RaiseError("declare %s.%s: unsupported type %q", group, name, typ)
		return 0
	}
	if err != nil {
		L.RaiseError("declare %s.%s: %v", group, name, err)
		return 0
	}
	m.entries = append(m.entries, e)
	return 0
}

// captureHandler anchors fn in the handler table so the GC keeps it alive,
// and returns a callback that invokes it with the new value. Returns nil
// when fn is not a function.
func (m *Manifest) captureHandler(fn lua.LValue) func(any) {
	f, ok := fn.(*lua.LFunction)
	if !ok {
		return nil
	}
	m.nextID++
	key := fmt.Sprintf("h%d", m.nextID)
	m.handlerTbl.RawSetString(key, f)

	logger := log.New("luadecl").WithField("module", m.module)
	return func(v any) {
		L := m.state
		if L == nil {
			return
		}
		hv := m.handlerTbl.RawGetString(key)
		hf, ok := hv.(*lua.LFunction)
		if !ok {
			return
		}
		if err := L.CallByParam(lua.P{Fn: hf, NRet: 0, Protect: true}, toLua(v)); err != nil {
			logger.WithError(err).Warn("on_change handler failed")
		}
	}
}

// declareCell builds a Typed[T] entry whose value lives in a manifest-owned
// cell, registers it, and pulls its persisted value in.
func declareCell[T any](m *Manifest, group, name, desc string, uiMk marker.Marker, handler func(any), def T) (entry.Entry, error) {
	cell := def
	opts := []entry.Option[T]{
		entry.WithDescription[T](desc),
		entry.WithModule[T](m.module),
		entry.WithStore[T](m.factory.Store()),
	}
	if uiMk.Kind != "" {
		opts = append(opts, entry.WithUIMarker[T](uiMk))
	}
	if handler != nil {
		opts = append(opts, entry.WithCallback[T](func(v T) { handler(v) }))
	}
	e, err := entry.FromClosures(
		group, name, def,
		func() (T, error) { return cell, nil },
		func(v T) error { cell = v; return nil },
		opts...,
	)
	if err != nil {
		return nil, err
	}
	if err := m.factory.AddEntry(m.module, e); err != nil {
		return nil, err
	}
	return e, nil
}

func stringField(tbl *lua.LTable, key, def string) string {
	if s, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return def
}

func boolField(tbl *lua.LTable, key string) bool {
	if b, ok := tbl.RawGetString(key).(lua.LBool); ok {
		return bool(b)
	}
	return false
}

func intField(tbl *lua.LTable, key string) int {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return 0
}

func floatField(tbl *lua.LTable, key string) float64 {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

func durationField(tbl *lua.LTable, key string) (time.Duration, error) {
	switch v := tbl.RawGetString(key).(type) {
	case lua.LString:
		return time.ParseDuration(string(v))
	case lua.LNumber:
		// Bare numbers are seconds.
		return time.Duration(float64(v) * float64(time.Second)), nil
	default:
		return 0, nil
	}
}

func toLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case time.Duration:
		return lua.LString(val.String())
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
