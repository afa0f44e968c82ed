package entry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/store"
)

// cellEntry builds a closure-triple entry backed by a plain variable.
func cellEntry(t *testing.T, def int, opts ...Option[int]) (*Typed[int], *int) {
	t.Helper()
	cell := def
	e, err := FromClosures("General", "Count", def,
		func() (int, error) { return cell, nil },
		func(v int) error { cell = v; return nil },
		opts...,
	)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}
	return e, &cell
}

func TestFromClosures_Validation(t *testing.T) {
	get := func() (int, error) { return 0, nil }
	set := func(int) error { return nil }

	if _, err := FromClosures("", "Count", 0, get, set); !errors.Is(err, accessor.ErrArgument) {
		t.Errorf("expected ErrArgument for missing group, got %v", err)
	}
	if _, err := FromClosures("General", "", 0, get, set); !errors.Is(err, accessor.ErrArgument) {
		t.Errorf("expected ErrArgument for missing name, got %v", err)
	}
	if _, err := FromClosures("General", "Count", 0, nil, set); !errors.Is(err, accessor.ErrArgument) {
		t.Errorf("expected ErrArgument for nil getter, got %v", err)
	}
	if _, err := FromClosures("General", "Count", 0, get, nil); !errors.Is(err, accessor.ErrArgument) {
		t.Errorf("expected ErrArgument for nil setter, got %v", err)
	}

	e, err := FromClosures("General", "Count", 0, get, set)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}
	if e.Key() != "General.Count" {
		t.Errorf("Key = %q, want General.Count", e.Key())
	}
}

func TestTyped_DefaultNotRederived(t *testing.T) {
	// The backing state reads 7, but the declared default is 5: the default
	// is taken as given, never re-derived from the getter.
	cell := 7
	e, err := FromClosures("General", "Count", 5,
		func() (int, error) { return cell, nil },
		func(v int) error { cell = v; return nil },
	)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}
	if e.Default() != 5 {
		t.Errorf("Default = %d, want 5", e.Default())
	}
	if v, _ := e.Get(); v != 7 {
		t.Errorf("Get = %d, want live 7", v)
	}
}

func TestTyped_SetAndDebounce(t *testing.T) {
	e, cell := cellEntry(t, 0)

	fired := 0
	e.Subscribe(func(old, new int) { fired++ })

	if err := e.Set(3); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if *cell != 3 || e.Current() != 3 {
		t.Errorf("cell = %d, current = %d; want 3, 3", *cell, e.Current())
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}

	// Equal value: setter and notifications are skipped.
	if err := e.Set(3); err != nil {
		t.Fatalf("debounced Set failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("debounced set fired observers: %d", fired)
	}
}

func TestTyped_ResetTwice(t *testing.T) {
	e, _ := cellEntry(t, 5)

	sets := 0
	e.Subscribe(func(old, new int) { sets++ })

	if err := e.Set(9); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := e.Reset(); err != nil {
		t.Fatalf("second Reset failed: %v", err)
	}

	// 9 then back to 5: two observable sets, the second Reset debounces.
	if sets != 2 {
		t.Errorf("observable sets = %d, want 2", sets)
	}
	if e.Current() != 5 {
		t.Errorf("Current = %d, want default 5", e.Current())
	}
}

func TestTyped_SetterFailureRollsBack(t *testing.T) {
	boom := errors.New("backing state rejected value")
	cell := 0
	e, err := FromClosures("General", "Count", 0,
		func() (int, error) { return cell, nil },
		func(v int) error {
			if v < 0 {
				return boom
			}
			cell = v
			return nil
		},
	)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}

	fired := 0
	e.Subscribe(func(old, new int) { fired++ })

	err = e.Set(-1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected setter error, got %v", err)
	}
	if e.Current() != 0 {
		t.Errorf("Current = %d, want rollback to 0", e.Current())
	}
	if fired != 0 {
		t.Errorf("failed set fired %d observers, want 0", fired)
	}
}

func TestTyped_NotificationOrder(t *testing.T) {
	e, _ := cellEntry(t, 0)

	var order []string
	e.Subscribe(func(old, new int) {
		order = append(order, "typed")
		if old != 0 || new != 4 {
			t.Errorf("typed observer got (%d, %d), want (0, 4)", old, new)
		}
	})
	e.SubscribeAny(func(old, new any) { order = append(order, "erased") })
	e.SubscribeIdentity(func(ent Entry, old, new any) {
		order = append(order, "identity")
		if ent.Key() != "General.Count" {
			t.Errorf("identity observer got entry %q", ent.Key())
		}
	})

	if err := e.Set(4); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	want := []string{"typed", "erased", "identity"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTyped_CallbackFiresLast(t *testing.T) {
	var order []string
	cell := 0
	e, err := FromClosures("General", "Count", 0,
		func() (int, error) { return cell, nil },
		func(v int) error { cell = v; return nil },
		WithCallback[int](func(v int) { order = append(order, "callback") }),
	)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}
	e.Subscribe(func(old, new int) { order = append(order, "typed") })

	if err := e.Set(1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	want := []string{"typed", "callback"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTyped_ReentrantSetIgnored(t *testing.T) {
	var e *Typed[int]
	cell := 0
	var nested bool
	var err error
	e, err = FromClosures("General", "Count", 0,
		func() (int, error) { return cell, nil },
		func(v int) error { cell = v; return nil },
		WithCallback[int](func(v int) {
			if !nested {
				nested = true
				// A callback writing back into its own entry must not recurse.
				_ = e.Set(v + 1)
			}
		}),
	)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}

	if err := e.Set(1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if e.Current() != 1 {
		t.Errorf("Current = %d, want 1 (nested set ignored)", e.Current())
	}
}

func TestTyped_SetAny(t *testing.T) {
	e, _ := cellEntry(t, 0)

	if err := e.SetAny(8); err != nil {
		t.Fatalf("SetAny failed: %v", err)
	}
	if e.Current() != 8 {
		t.Errorf("Current = %d, want 8", e.Current())
	}
	if err := e.SetAny("eight"); !errors.Is(err, accessor.ErrArgument) {
		t.Errorf("expected ErrArgument for wrong type, got %v", err)
	}
}

func TestTyped_Unsubscribe(t *testing.T) {
	e, _ := cellEntry(t, 0)

	fired := 0
	sub := e.Subscribe(func(old, new int) { fired++ })
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	if err := e.Set(1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("unsubscribed observer fired %d times", fired)
	}
}

func TestTyped_SyncFromFile(t *testing.T) {
	t.Run("absent persists baseline", func(t *testing.T) {
		st := store.NewMemStore()
		e, _ := cellEntry(t, 5, WithStore[int](st))

		e.SyncFromFile()
		v, found := st.TryLoad("Count", "General", e.ValueType())
		if !found || v != 5 {
			t.Errorf("baseline = %v, %v; want 5, true", v, found)
		}
	})

	t.Run("present different value applies", func(t *testing.T) {
		st := store.NewMemStore()
		st.Save("Count", "General", 9)
		e, cell := cellEntry(t, 5, WithStore[int](st))

		e.SyncFromFile()
		if *cell != 9 || e.Current() != 9 {
			t.Errorf("cell = %d, current = %d; want 9, 9", *cell, e.Current())
		}
	})

	t.Run("equal value is a no-op", func(t *testing.T) {
		st := store.NewMemStore()
		st.Save("Count", "General", 5)
		e, _ := cellEntry(t, 5, WithStore[int](st))

		fired := 0
		e.Subscribe(func(old, new int) { fired++ })
		e.SyncFromFile()
		if fired != 0 {
			t.Errorf("no-op sync fired %d observers", fired)
		}
	})

	t.Run("rejected value reverts", func(t *testing.T) {
		st := store.NewMemStore()
		st.Save("Count", "General", 99)
		e, _ := cellEntry(t, 5,
			WithStore[int](st),
			WithValidator[int](func(e Entry) bool {
				return e.ValueAny().(int) < 50
			}),
		)

		e.SyncFromFile()
		if e.Current() != 5 {
			t.Errorf("Current = %d, want revert to 5", e.Current())
		}
	})

	t.Run("failing apply re-persists pre-load value", func(t *testing.T) {
		st := store.NewMemStore()
		st.Save("Count", "General", 9)
		cell := 5
		e, err := FromClosures("General", "Count", 5,
			func() (int, error) { return cell, nil },
			func(v int) error {
				if v == 9 {
					return errors.New("cannot apply")
				}
				cell = v
				return nil
			},
			WithStore[int](st),
		)
		if err != nil {
			t.Fatalf("FromClosures failed: %v", err)
		}

		e.SyncFromFile()
		if e.Current() != 5 {
			t.Errorf("Current = %d, want 5", e.Current())
		}
		// The corrupt stored value is healed back to the pre-load value.
		v, found := st.TryLoad("Count", "General", e.ValueType())
		if !found || v != 5 {
			t.Errorf("store = %v, %v; want healed 5, true", v, found)
		}
	})
}

func TestTyped_SyncFromData(t *testing.T) {
	st := store.NewMemStore()
	e, cell := cellEntry(t, 5, WithStore[int](st))

	fired := 0
	e.Subscribe(func(old, new int) { fired++ })

	// Out-of-band mutation bypassing Set.
	*cell = 12
	e.SyncFromData()

	if e.Current() != 12 {
		t.Errorf("Current = %d, want 12", e.Current())
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	v, found := st.TryLoad("Count", "General", e.ValueType())
	if !found || v != 12 {
		t.Errorf("store = %v, %v; want 12, true", v, found)
	}

	// No change: nothing fires.
	e.SyncFromData()
	if fired != 1 {
		t.Errorf("idle data sync fired observers")
	}
}

func TestTyped_Persist(t *testing.T) {
	st := store.NewMemStore()
	e, _ := cellEntry(t, 5, WithStore[int](st))

	fired := 0
	e.Subscribe(func(old, new int) { fired++ })
	e.Persist()

	v, found := st.TryLoad("Count", "General", e.ValueType())
	if !found || v != 5 {
		t.Errorf("store = %v, %v; want 5, true", v, found)
	}
	if fired != 0 {
		t.Error("Persist must not notify")
	}
}

func TestTyped_CustomEquality(t *testing.T) {
	cell := 1.0
	e, err := FromClosures("General", "Scale", 1.0,
		func() (float64, error) { return cell, nil },
		func(v float64) error { cell = v; return nil },
		WithEquality[float64](func(a, b float64) bool {
			diff := a - b
			return diff < 0.01 && diff > -0.01
		}),
	)
	if err != nil {
		t.Fatalf("FromClosures failed: %v", err)
	}

	fired := 0
	e.Subscribe(func(old, new float64) { fired++ })

	if err := e.Set(1.005); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 0 {
		t.Error("near-equal value should debounce under custom equality")
	}
	if err := e.Set(1.5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}
