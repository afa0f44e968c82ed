package accessor

import (
	"errors"
	"testing"
)

func TestDescriptor_FieldAccess(t *testing.T) {
	c := NewCache()
	d, err := c.GetMember(gadgetType, "Count")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}

	g := &gadget{Count: 7}
	v, err := d.GetValue(g)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != 7 {
		t.Errorf("got %v, want 7", v)
	}

	if err := d.SetValue(g, 12); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if g.Count != 12 {
		t.Errorf("Count = %d, want 12", g.Count)
	}

	// Reads accept a value instance (copied), writes do not.
	if _, err := d.GetValue(gadget{Count: 3}); err != nil {
		t.Errorf("GetValue on value instance failed: %v", err)
	}
	if err := d.SetValue(gadget{}, 1); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument writing through a value instance, got %v", err)
	}

	// Type mismatches are argument errors.
	if err := d.SetValue(g, "twelve"); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for mismatched value, got %v", err)
	}
}

func TestDescriptor_UnexportedField(t *testing.T) {
	c := NewCache()
	d, err := c.GetMember(gadgetType, "hidden")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}

	g := &gadget{}
	if _, err := d.GetValue(g); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation reading unexported field, got %v", err)
	}
	if err := d.SetValue(g, 1); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation writing unexported field, got %v", err)
	}
}

func TestDescriptor_PropertyAccess(t *testing.T) {
	c := NewCache()
	d, err := c.GetMember(gadgetType, "Scale")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}

	g := &gadget{scale: 1.5}
	v, err := d.GetValue(g)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != 1.5 {
		t.Errorf("got %v, want 1.5", v)
	}

	if err := d.SetValue(g, 2.0); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if g.scale != 2.0 {
		t.Errorf("scale = %v, want 2.0", g.scale)
	}

	// Setter errors propagate unchanged.
	if err := d.SetValue(g, -1.0); !errors.Is(err, errNegativeScale) {
		t.Errorf("expected setter error, got %v", err)
	}
	if g.scale != 2.0 {
		t.Errorf("failed set must not change state, scale = %v", g.scale)
	}
}

func TestDescriptor_ReadOnlyProperty(t *testing.T) {
	c := NewCache()
	d, err := c.GetMember(gadgetType, "Version")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}

	g := &gadget{}
	v, err := d.GetValue(g)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "1.0" {
		t.Errorf("got %v, want 1.0", v)
	}
	if err := d.SetValue(g, "2.0"); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation writing read-only property, got %v", err)
	}
}

func TestDescriptor_InstanceTypeMismatch(t *testing.T) {
	c := NewCache()
	d, err := c.GetMember(gadgetType, "Count")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}

	type other struct{ Count int }
	if _, err := d.GetValue(&other{}); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for foreign instance, got %v", err)
	}
}
