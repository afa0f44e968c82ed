package luadecl

import (
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/entry"
	"github.com/JMC2002/JmcModLib-sub001/internal/store"
)

func newFactory() *entry.Factory {
	return entry.NewFactory(accessor.NewCache(), store.NewMemStore())
}

func TestLoadString_DeclaresEntries(t *testing.T) {
	f := newFactory()
	m, err := LoadString(f, "demo", `
		declare{ group = "Audio", name = "Volume", type = "float", default = 0.8,
		         description = "Master volume", ui = "slider" }
		declare{ group = "Audio", name = "Muted", type = "bool", default = false }
		declare{ name = "Greeting", type = "string", default = "hello" }
		declare{ group = "Net", name = "Timeout", type = "duration", default = "5s" }
		declare{ group = "Video", name = "FrameRate", type = "int", default = 60 }
	`)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	defer m.Close()

	if got := len(m.Entries()); got != 5 {
		t.Fatalf("declared %d entries, want 5", got)
	}

	vol, ok := f.Entry("demo", "Audio.Volume")
	if !ok {
		t.Fatal("Audio.Volume not registered")
	}
	if vol.DefaultAny() != 0.8 {
		t.Errorf("default = %v, want 0.8", vol.DefaultAny())
	}
	if vol.Description() != "Master volume" {
		t.Errorf("description = %q", vol.Description())
	}
	if mk, ok := vol.UIMarker(); !ok || mk.Kind != "ui.slider" {
		t.Errorf("UI marker = %v, %v; want ui.slider", mk, ok)
	}

	// Group defaults to General when omitted.
	if _, ok := f.Entry("demo", "General.Greeting"); !ok {
		t.Error("General.Greeting not registered")
	}

	timeout, _ := f.Entry("demo", "Net.Timeout")
	if timeout.DefaultAny() != 5*time.Second {
		t.Errorf("timeout default = %v, want 5s", timeout.DefaultAny())
	}

	fr, _ := f.Entry("demo", "Video.FrameRate")
	if err := fr.SetAny(120); err != nil {
		t.Fatalf("SetAny failed: %v", err)
	}
	if fr.ValueAny() != 120 {
		t.Errorf("value = %v, want 120", fr.ValueAny())
	}
}

func TestLoadString_OnChangeHandler(t *testing.T) {
	f := newFactory()
	m, err := LoadString(f, "demo", `
		hits = 0
		declare{ group = "Audio", name = "Volume", type = "float", default = 0.5,
		         on_change = function(v) hits = hits + 1; last = v end }
	`)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	defer m.Close()

	e, _ := f.Entry("demo", "Audio.Volume")
	if err := e.SetAny(0.9); err != nil {
		t.Fatalf("SetAny failed: %v", err)
	}

	if hits := m.state.GetGlobal("hits"); hits != lua.LNumber(1) {
		t.Errorf("hits = %v, want 1", hits)
	}
	if last := m.state.GetGlobal("last"); last != lua.LNumber(0.9) {
		t.Errorf("last = %v, want 0.9", last)
	}

	// Debounced set does not re-fire the handler.
	if err := e.SetAny(0.9); err != nil {
		t.Fatalf("SetAny failed: %v", err)
	}
	if hits := m.state.GetGlobal("hits"); hits != lua.LNumber(1) {
		t.Errorf("hits = %v after debounced set, want 1", hits)
	}
}

func TestLoadString_Errors(t *testing.T) {
	f := newFactory()

	if _, err := LoadString(f, "demo", `declare{ group = "Audio" }`); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := LoadString(f, "demo", `declare{ name = "X", type = "tensor" }`); err == nil {
		t.Error("expected error for unsupported type")
	}
	if _, err := LoadString(f, "demo", `this is not lua`); err == nil {
		t.Error("expected error for invalid script")
	}
}

func TestManifest_CloseStopsHandlers(t *testing.T) {
	f := newFactory()
	m, err := LoadString(f, "demo", `
		declare{ group = "Audio", name = "Volume", type = "float", default = 0.5,
		         on_change = function(v) end }
	`)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	m.Close()

	// The entry survives the manifest; setting it must not touch the
	// closed Lua state.
	e, _ := f.Entry("demo", "Audio.Volume")
	if err := e.SetAny(0.7); err != nil {
		t.Fatalf("SetAny after Close failed: %v", err)
	}
	if e.ValueAny() != 0.7 {
		t.Errorf("value = %v, want 0.7", e.ValueAny())
	}
}
