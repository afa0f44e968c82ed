package accessor

import (
	"fmt"
	"reflect"
)

// typeOf returns the reflect.Type for a type parameter.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// GetterOf builds a strongly-typed getter for a field or property
// descriptor. The returned func reads through a cached address when the
// element is a static field, which avoids both boxing and repeated lookup;
// callers on hot paths should prefer it over GetValue. Indexers have no
// typed path.
func GetterOf[T any](d *Descriptor) (func(instance any) (T, error), error) {
	want := typeOf[T]()
	if d.valueType != want {
		return nil, fmt.Errorf("%w: %s holds %s, not %s", ErrArgument, d, d.valueType, want)
	}

	switch d.kind {
	case KindField:
		if !d.exported {
			return nil, fmt.Errorf("%w: %s is unexported", ErrInvalidOperation, d)
		}
		// Static fields resolve to a stable *T once.
		if h, ok := d.cache.holderFor(d.owner); ok {
			ptr := h.Elem().FieldByIndex(d.index).Addr().Interface().(*T)
			return func(any) (T, error) { return *ptr, nil }, nil
		}
		return func(instance any) (T, error) {
			var zero T
			recv, err := d.receiver(instance, false)
			if err != nil {
				return zero, err
			}
			return recv.Elem().FieldByIndex(d.index).Interface().(T), nil
		}, nil

	case KindProperty:
		if !d.hasGetter {
			return nil, fmt.Errorf("%w: %s is write-only", ErrInvalidOperation, d)
		}
		if h, ok := d.cache.holderFor(d.owner); ok {
			if fn, ok := h.Method(d.getter.Index).Interface().(func() T); ok {
				return func(any) (T, error) { return fn(), nil }, nil
			}
		}
		return func(instance any) (T, error) {
			var zero T
			recv, err := d.receiver(instance, false)
			if err != nil {
				return zero, err
			}
			return d.getter.Func.Call([]reflect.Value{recv})[0].Interface().(T), nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s has no typed getter", ErrInvalidOperation, d)
	}
}

// SetterOf builds a strongly-typed setter for a field or property
// descriptor. Same shape and constraints as GetterOf.
func SetterOf[T any](d *Descriptor) (func(instance any, v T) error, error) {
	want := typeOf[T]()
	if d.valueType != want {
		return nil, fmt.Errorf("%w: %s holds %s, not %s", ErrArgument, d, d.valueType, want)
	}

	switch d.kind {
	case KindField:
		if !d.exported {
			return nil, fmt.Errorf("%w: %s is unexported", ErrInvalidOperation, d)
		}
		if h, ok := d.cache.holderFor(d.owner); ok {
			fld := h.Elem().FieldByIndex(d.index)
			if !fld.CanSet() {
				return nil, fmt.Errorf("%w: %s is read-only", ErrInvalidOperation, d)
			}
			ptr := fld.Addr().Interface().(*T)
			return func(_ any, v T) error { *ptr = v; return nil }, nil
		}
		return func(instance any, v T) error {
			recv, err := d.receiver(instance, true)
			if err != nil {
				return err
			}
			fld := recv.Elem().FieldByIndex(d.index)
			if !fld.CanSet() {
				return fmt.Errorf("%w: %s is read-only", ErrInvalidOperation, d)
			}
			fld.Set(reflect.ValueOf(v))
			return nil
		}, nil

	case KindProperty:
		if !d.hasSetter {
			return nil, fmt.Errorf("%w: %s is read-only", ErrInvalidOperation, d)
		}
		if h, ok := d.cache.holderFor(d.owner); ok {
			switch fn := h.Method(d.setter.Index).Interface().(type) {
			case func(T):
				return func(_ any, v T) error { fn(v); return nil }, nil
			case func(T) error:
				return func(_ any, v T) error { return fn(v) }, nil
			}
		}
		return func(instance any, v T) error {
			recv, err := d.receiver(instance, true)
			if err != nil {
				return err
			}
			out := d.setter.Func.Call([]reflect.Value{recv, reflect.ValueOf(v)})
			if len(out) == 1 && !out[0].IsNil() {
				return out[0].Interface().(error)
			}
			return nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s has no typed setter", ErrInvalidOperation, d)
	}
}

// FuncOf returns the method bound to instance as a concrete func type F,
// asserted once. After synthesis calls go through the func value directly
// with no reflection. Methods with pointer (out) parameters or variadic
// signatures can still be bound as long as F spells the signature exactly.
func FuncOf[F any](d *Descriptor, instance any) (F, error) {
	var zero F
	fn, withRecv, err := d.callTarget()
	if err != nil {
		return zero, err
	}

	var bound reflect.Value
	if withRecv {
		recv, err := d.receiver(instance, false)
		if err != nil {
			return zero, err
		}
		bound = recv.Method(d.method.Index)
	} else {
		bound = fn
	}

	f, ok := bound.Interface().(F)
	if !ok {
		return zero, fmt.Errorf("%w: %s has signature %s, not %s",
			ErrArgument, d, bound.Type(), typeOf[F]())
	}
	return f, nil
}

// UnaryOf binds a method whose signature is exactly func(param) and returns
// a boxed invoker for it. It is the counterpart of FuncOf[func(T)] for
// callers that only learn the parameter type at runtime and therefore
// cannot spell the type argument. Shape and binding are checked here, once;
// the returned func only validates the argument.
func UnaryOf(d *Descriptor, instance any, param reflect.Type) (func(arg any) error, error) {
	fn, withRecv, err := d.callTarget()
	if err != nil {
		return nil, err
	}

	var bound reflect.Value
	if withRecv {
		recv, err := d.receiver(instance, false)
		if err != nil {
			return nil, err
		}
		bound = recv.Method(d.method.Index)
	} else {
		bound = fn
	}

	ft := bound.Type()
	if ft.IsVariadic() || ft.NumIn() != 1 || ft.In(0) != param || ft.NumOut() != 0 {
		return nil, fmt.Errorf("%w: %s has signature %s, not func(%s)",
			ErrArgument, d, ft, param)
	}

	return func(arg any) error {
		av := reflect.ValueOf(arg)
		if !av.IsValid() || av.Type() != param {
			return fmt.Errorf("%w: %s expects %s, got %T", ErrArgument, d, param, arg)
		}
		bound.Call([]reflect.Value{av})
		return nil
	}, nil
}

// Invoke calls a method through the boxed path and asserts the single
// non-error result to R.
func Invoke[R any](d *Descriptor, instance any, args ...any) (R, error) {
	var zero R
	out, err := d.InvokeArgs(instance, args)
	if err != nil {
		return zero, err
	}
	if len(out) != 1 {
		return zero, fmt.Errorf("%w: %s returned %d values, expected 1",
			ErrInvalidOperation, d, len(out))
	}
	r, ok := out[0].(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, expected %s",
			ErrArgument, d, out[0], typeOf[R]())
	}
	return r, nil
}

// InvokeVoid calls a method that returns nothing (or only an error).
// Void methods get a dedicated entry point because an absent result cannot
// be a type argument.
func InvokeVoid(d *Descriptor, instance any, args ...any) error {
	out, err := d.InvokeArgs(instance, args)
	if err != nil {
		return err
	}
	if len(out) != 0 {
		return fmt.Errorf("%w: %s returns values; use Invoke", ErrInvalidOperation, d)
	}
	return nil
}
