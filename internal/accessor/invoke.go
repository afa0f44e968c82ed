package accessor

import (
	"fmt"
	"reflect"
)

// callTarget resolves the func value to invoke and whether it takes a
// receiver as its first input. Templates must be closed first.
func (d *Descriptor) callTarget() (reflect.Value, bool, error) {
	switch d.kind {
	case KindTemplate:
		return reflect.Value{}, false, fmt.Errorf(
			"%w: %s is an unclosed template; close it over a type argument before invoking",
			ErrInvalidOperation, d)
	case KindMethod:
		if d.closed {
			return d.fn, false, nil
		}
		return d.method.Func, true, nil
	default:
		return reflect.Value{}, false, fmt.Errorf("%w: %s is not invocable", ErrInvalidOperation, d)
	}
}

// Invoke0 through Invoke3 are the boxed fast paths for 0-3 arguments.
// They assemble the call frame in a stack buffer instead of allocating an
// argument slice. Invocations with more arguments, or with pointer (out)
// parameters that need write-back, must use InvokeArgs.

// Invoke0 invokes a no-argument method.
func (d *Descriptor) Invoke0(instance any) (any, error) {
	var buf [1]reflect.Value
	return d.invokeFast(instance, buf[:0])
}

// Invoke1 invokes a one-argument method.
func (d *Descriptor) Invoke1(instance any, a1 any) (any, error) {
	var buf [2]reflect.Value
	return d.invokeFast(instance, buf[:0], a1)
}

// Invoke2 invokes a two-argument method.
func (d *Descriptor) Invoke2(instance any, a1, a2 any) (any, error) {
	var buf [3]reflect.Value
	return d.invokeFast(instance, buf[:0], a1, a2)
}

// Invoke3 invokes a three-argument method.
func (d *Descriptor) Invoke3(instance any, a1, a2, a3 any) (any, error) {
	var buf [4]reflect.Value
	return d.invokeFast(instance, buf[:0], a1, a2, a3)
}

func (d *Descriptor) invokeFast(instance any, frame []reflect.Value, args ...any) (any, error) {
	fn, withRecv, err := d.callTarget()
	if err != nil {
		return nil, err
	}
	if withRecv {
		recv, err := d.receiver(instance, false)
		if err != nil {
			return nil, err
		}
		frame = append(frame, recv)
	}

	filled, err := d.fillArgs(fn.Type(), len(frame), args, nil)
	if err != nil {
		return nil, err
	}
	frame = append(frame, filled...)

	return firstResult(fn.Call(frame))
}

// InvokeArgs is the general boxed invocation path. It handles any argument
// count, backfills omitted trailing arguments from declared defaults, and
// supports out parameters: when a parameter is a pointer type and the
// supplied argument is the pointee type (or nil), a fresh pointer is
// allocated for the call and the updated value is written back into args
// after it returns. All non-error results are returned boxed; a trailing
// error result is split off and returned as err.
func (d *Descriptor) InvokeArgs(instance any, args []any) ([]any, error) {
	fn, withRecv, err := d.callTarget()
	if err != nil {
		return nil, err
	}

	frame := make([]reflect.Value, 0, len(args)+1)
	if withRecv {
		recv, rerr := d.receiver(instance, false)
		if rerr != nil {
			return nil, rerr
		}
		frame = append(frame, recv)
	}

	writeBacks := make(map[int]reflect.Value)
	filled, err := d.fillArgs(fn.Type(), len(frame), args, writeBacks)
	if err != nil {
		return nil, err
	}
	frame = append(frame, filled...)

	out := fn.Call(frame)

	for i, ptr := range writeBacks {
		args[i] = ptr.Elem().Interface()
	}

	return allResults(out)
}

// fillArgs converts boxed args to the call frame values for fn, starting at
// parameter offset (the receiver, when present). Omitted trailing arguments
// are backfilled from defaults declared on the cache. When writeBacks is
// non-nil, pointer parameters given as pointee values (or nil) are adapted
// for out-parameter write-back.
func (d *Descriptor) fillArgs(ft reflect.Type, offset int, args []any, writeBacks map[int]reflect.Value) ([]reflect.Value, error) {
	declared := ft.NumIn() - offset

	if d.variadic {
		// Variadic methods take the general path with explicit arguments;
		// defaults do not apply.
		if len(args) < declared-1 {
			return nil, fmt.Errorf("%w: %s expects at least %d arguments, got %d",
				ErrParameterCount, d, declared-1, len(args))
		}
	} else {
		if len(args) > declared {
			return nil, fmt.Errorf("%w: %s expects %d arguments, got %d",
				ErrParameterCount, d, declared, len(args))
		}
		if len(args) < declared {
			defaults := d.cacheDefaults()
			missing := declared - len(args)
			if missing > len(defaults) {
				return nil, fmt.Errorf("%w: %s expects %d arguments, got %d (%d defaults declared)",
					ErrParameterCount, d, declared, len(args), len(defaults))
			}
			// Defaults align to the rightmost parameters; take the tail
			// that covers the omitted ones.
			args = append(append([]any(nil), args...), defaults[len(defaults)-missing:]...)
		}
	}

	filled := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		pt := paramType(ft, offset+i, d.variadic)

		if writeBacks != nil && pt.Kind() == reflect.Pointer {
			av := reflect.ValueOf(arg)
			if arg == nil || (av.IsValid() && av.Type() == pt.Elem()) {
				ptr := reflect.New(pt.Elem())
				if arg != nil {
					ptr.Elem().Set(av)
				}
				writeBacks[i] = ptr
				filled = append(filled, ptr)
				continue
			}
		}

		av, err := coerce(arg, pt, d)
		if err != nil {
			return nil, err
		}
		filled = append(filled, av)
	}
	return filled, nil
}

func (d *Descriptor) cacheDefaults() []any {
	if d.cache == nil || d.closed {
		return nil
	}
	return d.cache.declaredDefaults(memberKey{owner: d.owner, name: d.name})
}

// paramType returns the declared type of parameter i, unwrapping the
// variadic slice for trailing positions.
func paramType(ft reflect.Type, i int, variadic bool) reflect.Type {
	if variadic && i >= ft.NumIn()-1 {
		return ft.In(ft.NumIn() - 1).Elem()
	}
	return ft.In(i)
}

// firstResult boxes the first non-error result and splits a trailing error.
func firstResult(out []reflect.Value) (any, error) {
	boxed, err := allResults(out)
	if len(boxed) == 0 {
		return nil, err
	}
	return boxed[0], err
}

// allResults boxes all results, splitting a trailing error value off.
func allResults(out []reflect.Value) ([]any, error) {
	var err error
	if n := len(out); n > 0 && isErrorType(out[n-1].Type()) {
		if !out[n-1].IsNil() {
			err = out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, err
	}
	boxed := make([]any, len(out))
	for i, v := range out {
		boxed[i] = v.Interface()
	}
	return boxed, err
}
