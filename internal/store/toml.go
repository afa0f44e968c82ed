package store

import (
	"os"
	"reflect"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/samber/oops"

	"github.com/JMC2002/JmcModLib-sub001/internal/log"
)

// TOMLStore persists values into a TOML document with one table per group.
// It offers the same contract as JSONStore for hosts that prefer
// hand-editable config files.
type TOMLStore struct {
	path string
	log  *log.Logger

	mu    sync.Mutex
	doc   map[string]map[string]any
	dirty bool
}

// NewTOMLStore opens (or initializes) the TOML document at path.
func NewTOMLStore(path string) *TOMLStore {
	s := &TOMLStore{
		path: path,
		log:  log.New("store.toml").WithField("path", path),
		doc:  make(map[string]map[string]any),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := toml.Unmarshal(data, &s.doc); uerr != nil {
			s.log.WithError(uerr).Warn("stored document is not valid TOML, starting fresh")
			s.doc = make(map[string]map[string]any)
		}
	case os.IsNotExist(err):
		// First run.
	default:
		s.log.WithError(err).Error("failed to read store, starting fresh")
	}
	return s
}

// Path returns the backing file path.
func (s *TOMLStore) Path() string { return s.path }

// Reload re-reads the backing file and swaps the in-memory document,
// discarding unflushed staged values. A missing file resets to an empty
// document; unreadable or invalid content is logged and the current
// document kept.
func (s *TOMLStore) Reload() error {
	doc := make(map[string]map[string]any)

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if uerr := toml.Unmarshal(data, &doc); uerr != nil {
			s.log.WithError(uerr).Warn("reloaded document is not valid TOML, keeping current state")
			return oops.With("path", s.path).Wrapf(uerr, "reloading toml store")
		}
	case os.IsNotExist(err):
		// Reset to empty below.
	default:
		s.log.WithError(err).Warn("failed to re-read store, keeping current state")
		return oops.With("path", s.path).Wrapf(err, "reloading toml store")
	}

	s.mu.Lock()
	s.doc = doc
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// TryLoad implements Store.
func (s *TOMLStore) TryLoad(key, group string, want reflect.Type) (any, bool) {
	s.mu.Lock()
	var raw any
	var ok bool
	if tbl, has := s.doc[group]; has {
		raw, ok = tbl[key]
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	if want == nil {
		return raw, true
	}

	v, err := coerceDecoded(raw, want)
	if err != nil {
		s.log.WithError(err).WithFields(log.Fields{"group": group, "key": key}).
			Warn("persisted value does not decode to expected type")
		return nil, false
	}
	return v, true
}

// Save implements Store.
func (s *TOMLStore) Save(key, group string, value any) {
	s.mu.Lock()
	tbl, ok := s.doc[group]
	if !ok {
		tbl = make(map[string]any)
		s.doc[group] = tbl
	}
	tbl[key] = value
	s.dirty = true
	s.mu.Unlock()
}

// Flush implements Store, writing the document atomically.
func (s *TOMLStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := toml.Marshal(s.doc)
	if err != nil {
		return oops.With("path", s.path).Wrapf(err, "encoding toml store")
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return oops.With("path", s.path).Wrapf(err, "flushing toml store")
	}
	s.dirty = false
	return nil
}

// coerceDecoded adapts a decoded TOML value (int64, float64, string, bool,
// []any, map[string]any) to the wanted type, converting between numeric
// widths where lossless assignment applies.
func coerceDecoded(raw any, want reflect.Type) (any, error) {
	rv := reflect.ValueOf(raw)
	if !rv.IsValid() {
		return nil, oops.Errorf("nil persisted value")
	}
	if rv.Type() == want || rv.Type().AssignableTo(want) {
		return raw, nil
	}
	if rv.Type().ConvertibleTo(want) {
		switch want.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return rv.Convert(want).Interface(), nil
		}
	}
	return nil, oops.Errorf("cannot adapt %T to %s", raw, want)
}
