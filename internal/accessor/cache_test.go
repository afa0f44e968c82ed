package accessor

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

var errNegativeScale = errors.New("scale must be non-negative")

// gadget is the shared introspection fixture: tagged fields, a read/write
// property pair, a read-only property, plain methods, an indexer pair, a
// variadic method, and an out parameter.
type gadget struct {
	Label  string `mod:"config,group=UI,name=Label,desc=Display label"`
	Count  int
	hidden int

	scale float64
	items map[int]string
}

func (g *gadget) Scale() float64 { return g.scale }

func (g *gadget) SetScale(v float64) error {
	if v < 0 {
		return errNegativeScale
	}
	g.scale = v
	return nil
}

func (g *gadget) Version() string { return "1.0" }

func (g *gadget) Add(a, b int) int { return a + b }

func (g *gadget) Describe(label string, upper bool) string {
	if upper {
		return strings.ToUpper(label)
	}
	return label
}

func (g *gadget) Measure(s string, n *int) string {
	*n = len(s)
	return s
}

func (g *gadget) Sum(ns ...int) int {
	total := 0
	for _, n := range ns {
		total += n
	}
	return total
}

func (g *gadget) Bump() { g.Count++ }

func (g *gadget) Item(i int) string { return g.items[i] }

func (g *gadget) SetItem(i int, v string) {
	if g.items == nil {
		g.items = make(map[int]string)
	}
	g.items[i] = v
}

var gadgetType = reflect.TypeOf(gadget{})

func TestCache_GetMember_IdentityStable(t *testing.T) {
	c := NewCache()

	d1, err := c.GetMember(gadgetType, "Label")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	d2, err := c.GetMember(reflect.TypeOf(&gadget{}), "Label")
	if err != nil {
		t.Fatalf("GetMember via pointer type failed: %v", err)
	}
	if d1 != d2 {
		t.Error("expected identical descriptor for repeated lookups")
	}

	m1, err := c.GetMethod(gadgetType, "Add")
	if err != nil {
		t.Fatalf("GetMethod failed: %v", err)
	}
	m2, _ := c.GetMethod(gadgetType, "Add")
	if m1 != m2 {
		t.Error("expected identical method descriptor for repeated lookups")
	}
}

func TestCache_GetMember_Missing(t *testing.T) {
	c := NewCache()

	_, err := c.GetMember(gadgetType, "Nope")
	if !errors.Is(err, ErrMissingMember) {
		t.Errorf("expected ErrMissingMember, got %v", err)
	}

	_, err = c.GetMethod(gadgetType, "Nope")
	if !errors.Is(err, ErrMissingMethod) {
		t.Errorf("expected ErrMissingMethod, got %v", err)
	}

	_, err = c.GetMember(nil, "Label")
	if !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for nil type, got %v", err)
	}
}

func TestCache_GetMember_Property(t *testing.T) {
	c := NewCache()

	d, err := c.GetMember(gadgetType, "Scale")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if d.Kind() != KindProperty {
		t.Fatalf("expected property, got %s", d.Kind())
	}
	if !d.CanRead() || !d.CanWrite() {
		t.Error("Scale should be readable and writable")
	}
	if d.ValueType() != reflect.TypeOf(float64(0)) {
		t.Errorf("expected float64 value type, got %s", d.ValueType())
	}

	ro, err := c.GetMember(gadgetType, "Version")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if !ro.CanRead() || ro.CanWrite() {
		t.Error("Version should be read-only")
	}
}

func TestCache_GetMember_TagMarkers(t *testing.T) {
	c := NewCache()

	d, err := c.GetMember(gadgetType, "Label")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	mk, ok := d.Marker("config")
	if !ok {
		t.Fatal("expected config marker from struct tag")
	}
	if got := mk.ParamOr("group", ""); got != "UI" {
		t.Errorf("group = %q, want UI", got)
	}
	if got := mk.ParamOr("name", ""); got != "Label" {
		t.Errorf("name = %q, want Label", got)
	}

	untagged, _ := c.GetMember(gadgetType, "Count")
	if untagged.HasMarker("config") {
		t.Error("untagged field should carry no markers")
	}
}

func TestCache_GetMethod_ParamMatch(t *testing.T) {
	c := NewCache()
	intType := reflect.TypeOf(0)

	if _, err := c.GetMethod(gadgetType, "Add", intType, intType); err != nil {
		t.Fatalf("exact match failed: %v", err)
	}
	_, err := c.GetMethod(gadgetType, "Add", reflect.TypeOf(""))
	if !errors.Is(err, ErrMissingMethod) {
		t.Errorf("expected ErrMissingMethod for wrong parameters, got %v", err)
	}
}

func TestCache_DeclareDefaults(t *testing.T) {
	c := NewCache()
	stringType := reflect.TypeOf("")

	// Without defaults, omitting the trailing bool is a mismatch.
	_, err := c.GetMethod(gadgetType, "Describe", stringType)
	if !errors.Is(err, ErrMissingMethod) {
		t.Fatalf("expected ErrMissingMethod before defaults, got %v", err)
	}

	if err := c.DeclareDefaults(gadgetType, "Describe", true); err != nil {
		t.Fatalf("DeclareDefaults failed: %v", err)
	}
	d, err := c.GetMethod(gadgetType, "Describe", stringType)
	if err != nil {
		t.Fatalf("prefix match with defaults failed: %v", err)
	}

	// The omitted argument is backfilled at invocation.
	out, err := d.Invoke1(&gadget{}, "loud")
	if err != nil {
		t.Fatalf("Invoke1 failed: %v", err)
	}
	if out != "LOUD" {
		t.Errorf("got %v, want LOUD", out)
	}

	// Non-assignable default is rejected up front.
	err = c.DeclareDefaults(gadgetType, "Describe", "nope")
	if !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for bad default, got %v", err)
	}
}

func TestCache_BindHolder(t *testing.T) {
	c := NewCache()

	if err := c.BindHolder(gadget{}); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for non-pointer holder, got %v", err)
	}
	var nilHolder *gadget
	if err := c.BindHolder(nilHolder); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for nil holder, got %v", err)
	}

	h := &gadget{Label: "static"}
	if err := c.BindHolder(h); err != nil {
		t.Fatalf("BindHolder failed: %v", err)
	}

	d, err := c.GetMember(gadgetType, "Label")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if !d.Static() {
		t.Error("descriptor should be static while holder is bound")
	}
	v, err := d.GetValue(nil)
	if err != nil {
		t.Fatalf("static GetValue failed: %v", err)
	}
	if v != "static" {
		t.Errorf("got %v, want static", v)
	}
	if err := d.SetValue(nil, "updated"); err != nil {
		t.Fatalf("static SetValue failed: %v", err)
	}
	if h.Label != "updated" {
		t.Errorf("holder field = %q, want updated", h.Label)
	}

	c.UnbindHolder(gadgetType)
	if d.Static() {
		t.Error("descriptor should drop static after unbind")
	}
	if _, err := d.GetValue(nil); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument after unbind, got %v", err)
	}
}

func TestCache_Templates(t *testing.T) {
	c := NewCache()

	err := c.RegisterTemplate(gadgetType, "Render", map[reflect.Type]any{
		reflect.TypeOf(0):          func(v int) string { return "int" },
		reflect.TypeOf(float64(0)): func(v float64) string { return "float64" },
	})
	if err != nil {
		t.Fatalf("RegisterTemplate failed: %v", err)
	}

	tmpl, err := c.GetMethod(gadgetType, "Render")
	if err != nil {
		t.Fatalf("GetMethod failed: %v", err)
	}
	if tmpl.Kind() != KindTemplate {
		t.Fatalf("expected template descriptor, got %s", tmpl.Kind())
	}

	// Unclosed templates are not invocable.
	if _, err := tmpl.Invoke1(nil, 1); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for unclosed template, got %v", err)
	}

	closed, err := c.Close(tmpl, reflect.TypeOf(0))
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	out, err := closed.Invoke1(nil, 42)
	if err != nil {
		t.Fatalf("closed invoke failed: %v", err)
	}
	if out != "int" {
		t.Errorf("got %v, want int", out)
	}

	again, err := c.Close(tmpl, reflect.TypeOf(0))
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed != again {
		t.Error("closing the same type argument should return the cached descriptor")
	}

	_, err = c.Close(tmpl, reflect.TypeOf(""))
	if !errors.Is(err, ErrMissingMethod) {
		t.Errorf("expected ErrMissingMethod for missing instantiation, got %v", err)
	}
}

func TestCache_GetIndexer(t *testing.T) {
	c := NewCache()
	intType := reflect.TypeOf(0)

	d, err := c.GetIndexer(gadgetType, "Item", []reflect.Type{intType})
	if err != nil {
		t.Fatalf("GetIndexer failed: %v", err)
	}
	if d.Kind() != KindIndexer {
		t.Fatalf("expected indexer, got %s", d.Kind())
	}
	if !d.CanWrite() {
		t.Error("Item has a SetItem pair and should be writable")
	}

	g := &gadget{}
	if err := d.SetValueIndexed(g, "hello", 3); err != nil {
		t.Fatalf("SetValueIndexed failed: %v", err)
	}
	v, err := d.GetValueIndexed(g, 3)
	if err != nil {
		t.Fatalf("GetValueIndexed failed: %v", err)
	}
	if v != "hello" {
		t.Errorf("got %v, want hello", v)
	}

	// Index arity is checked.
	if _, err := d.GetValueIndexed(g, 1, 2); !errors.Is(err, ErrParameterCount) {
		t.Errorf("expected ErrParameterCount, got %v", err)
	}

	_, err = c.GetIndexer(gadgetType, "Item", []reflect.Type{reflect.TypeOf("")})
	if !errors.Is(err, ErrMissingMember) {
		t.Errorf("expected ErrMissingMember for wrong index type, got %v", err)
	}
}
