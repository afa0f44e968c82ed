package accessor

import (
	"fmt"
	"reflect"
)

// receiver resolves the instance to call or address an element through,
// always as a *Owner value. A nil instance is allowed only for static
// descriptors (owner type has a registered holder). A non-pointer instance
// is copied to an addressable value; callers that need mutations to stick
// must pass a pointer, and forWrite enforces that.
func (d *Descriptor) receiver(instance any, forWrite bool) (reflect.Value, error) {
	if instance == nil {
		if h, ok := d.cache.holderFor(d.owner); ok {
			return h, nil
		}
		return reflect.Value{}, fmt.Errorf(
			"%w: %s is instance-bound and requires a non-nil instance", ErrArgument, d)
	}

	rv := reflect.ValueOf(instance)
	switch {
	case rv.Kind() == reflect.Pointer:
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil instance for %s", ErrArgument, d)
		}
		if rv.Type().Elem() != d.owner {
			return reflect.Value{}, fmt.Errorf("%w: instance type %T does not match %s",
				ErrArgument, instance, d.owner)
		}
		return rv, nil
	case rv.Type() == d.owner:
		if forWrite {
			return reflect.Value{}, fmt.Errorf(
				"%w: writing through %s requires a pointer instance", ErrArgument, d)
		}
		// Copy to an addressable value so pointer-receiver getters work.
		// Mutations made by the callee land on the copy.
		ptr := reflect.New(d.owner)
		ptr.Elem().Set(rv)
		return ptr, nil
	default:
		return reflect.Value{}, fmt.Errorf("%w: instance type %T does not match %s",
			ErrArgument, instance, d.owner)
	}
}

// GetValue reads the element's value through the universal boxed path.
// Instance elements require a non-nil instance. Reading a write-only
// property or an unexported field fails with ErrInvalidOperation.
func (d *Descriptor) GetValue(instance any) (any, error) {
	switch d.kind {
	case KindField:
		if !d.exported {
			return nil, fmt.Errorf("%w: %s is unexported", ErrInvalidOperation, d)
		}
		recv, err := d.receiver(instance, false)
		if err != nil {
			return nil, err
		}
		return recv.Elem().FieldByIndex(d.index).Interface(), nil

	case KindProperty:
		if !d.hasGetter {
			return nil, fmt.Errorf("%w: %s is write-only", ErrInvalidOperation, d)
		}
		recv, err := d.receiver(instance, false)
		if err != nil {
			return nil, err
		}
		out := d.getter.Func.Call([]reflect.Value{recv})
		return out[0].Interface(), nil

	default:
		return nil, fmt.Errorf("%w: %s has no value to read", ErrInvalidOperation, d)
	}
}

// SetValue writes the element's value through the universal boxed path.
// Writing a read-only element (a field without an exported setter path, a
// property without a setter, an unexported field) fails with
// ErrInvalidOperation; a type mismatch fails with ErrArgument.
func (d *Descriptor) SetValue(instance any, value any) error {
	switch d.kind {
	case KindField:
		if !d.exported {
			return fmt.Errorf("%w: %s is unexported", ErrInvalidOperation, d)
		}
		recv, err := d.receiver(instance, true)
		if err != nil {
			return err
		}
		fld := recv.Elem().FieldByIndex(d.index)
		if !fld.CanSet() {
			return fmt.Errorf("%w: %s is read-only", ErrInvalidOperation, d)
		}
		vv, err := coerce(value, d.valueType, d)
		if err != nil {
			return err
		}
		fld.Set(vv)
		return nil

	case KindProperty:
		if !d.hasSetter {
			return fmt.Errorf("%w: %s is read-only", ErrInvalidOperation, d)
		}
		recv, err := d.receiver(instance, true)
		if err != nil {
			return err
		}
		vv, err := coerce(value, d.valueType, d)
		if err != nil {
			return err
		}
		out := d.setter.Func.Call([]reflect.Value{recv, vv})
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s has no value to write", ErrInvalidOperation, d)
	}
}

// GetValueIndexed reads a parameterized member. Only valid on indexer
// descriptors obtained via GetIndexer.
func (d *Descriptor) GetValueIndexed(instance any, index ...any) (any, error) {
	if d.kind != KindIndexer {
		return nil, fmt.Errorf("%w: %s is not an indexer", ErrInvalidOperation, d)
	}
	recv, err := d.receiver(instance, false)
	if err != nil {
		return nil, err
	}
	in, err := d.indexArgs(recv, index, reflect.Value{})
	if err != nil {
		return nil, err
	}
	out := d.getter.Func.Call(in)
	return out[0].Interface(), nil
}

// SetValueIndexed writes a parameterized member. Fails with
// ErrInvalidOperation when no setter exists.
func (d *Descriptor) SetValueIndexed(instance any, value any, index ...any) error {
	if d.kind != KindIndexer {
		return fmt.Errorf("%w: %s is not an indexer", ErrInvalidOperation, d)
	}
	if !d.hasSetter {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidOperation, d)
	}
	recv, err := d.receiver(instance, true)
	if err != nil {
		return err
	}
	vv, err := coerce(value, d.valueType, d)
	if err != nil {
		return err
	}
	in, err := d.indexArgs(recv, index, vv)
	if err != nil {
		return err
	}
	d.setter.Func.Call(in)
	return nil
}

// indexArgs assembles [receiver, index..., value?] for an indexer call.
func (d *Descriptor) indexArgs(recv reflect.Value, index []any, value reflect.Value) ([]reflect.Value, error) {
	if len(index) != len(d.params) {
		return nil, fmt.Errorf("%w: %s expects %d index arguments, got %d",
			ErrParameterCount, d, len(d.params), len(index))
	}
	in := make([]reflect.Value, 0, len(index)+2)
	in = append(in, recv)
	for i, arg := range index {
		av, err := coerce(arg, d.params[i], d)
		if err != nil {
			return nil, err
		}
		in = append(in, av)
	}
	if value.IsValid() {
		in = append(in, value)
	}
	return in, nil
}

// coerce converts a boxed value to the wanted reflect type. nil maps to
// the type's zero value; anything not assignable fails with ErrArgument.
func coerce(value any, want reflect.Type, d *Descriptor) (reflect.Value, error) {
	if value == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice,
			reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		default:
			return reflect.Value{}, fmt.Errorf("%w: nil is not a valid %s for %s",
				ErrArgument, want, d)
		}
	}
	rv := reflect.ValueOf(value)
	if rv.Type() == want {
		return rv, nil
	}
	if rv.Type().AssignableTo(want) {
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s expects %s, got %T",
		ErrArgument, d, want, value)
}
