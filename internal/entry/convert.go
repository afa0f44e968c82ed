package entry

import (
	"reflect"
	"time"

	"github.com/samber/oops"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
)

// conversion adapts values between an entry's UI-facing type and the
// declared logical type of its backing element, in both directions.
type conversion struct {
	toUI   func(v any) (any, error)
	fromUI func(v any) (any, error)
}

type convKey struct {
	ui      reflect.Type
	logical reflect.Type
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// RegisterConversion teaches the factory how to adapt between a UI-facing
// type U and a logical type L. Both directions are required; a conversion
// failure at runtime surfaces as an Argument error naming the entry and
// the phase it failed in.
func RegisterConversion[U, L any](f *Factory, toUI func(L) (U, error), fromUI func(U) (L, error)) {
	key := convKey{ui: typeOf[U](), logical: typeOf[L]()}
	c := conversion{
		toUI: func(v any) (any, error) {
			lv, ok := v.(L)
			if !ok {
				return nil, oops.Wrapf(accessor.ErrArgument, "expected %s, got %T", typeOf[L](), v)
			}
			return toUI(lv)
		},
		fromUI: func(v any) (any, error) {
			uv, ok := v.(U)
			if !ok {
				return nil, oops.Wrapf(accessor.ErrArgument, "expected %s, got %T", typeOf[U](), v)
			}
			return fromUI(uv)
		},
	}

	f.mu.Lock()
	f.convs[key] = c
	f.mu.Unlock()
}

// registerBuiltinConversions seeds the conversions common UI markers rely
// on: numeric widening for sliders and duration strings for text inputs.
func registerBuiltinConversions(f *Factory) {
	RegisterConversion(f,
		func(v int) (float64, error) { return float64(v), nil },
		func(v float64) (int, error) { return int(v), nil },
	)
	RegisterConversion(f,
		func(v int64) (float64, error) { return float64(v), nil },
		func(v float64) (int64, error) { return int64(v), nil },
	)
	RegisterConversion(f,
		func(v time.Duration) (string, error) { return v.String(), nil },
		func(v string) (time.Duration, error) { return time.ParseDuration(v) },
	)
}
