package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/JMC2002/JmcModLib-sub001/internal/log"
)

// JSONStore persists values into a single JSON document, one object per
// group. The document is held in memory and manipulated path-wise; Flush
// writes it atomically (temp file + rename).
type JSONStore struct {
	path string
	log  *log.Logger

	mu    sync.Mutex
	doc   []byte
	dirty bool
}

// NewJSONStore opens (or initializes) the JSON document at path. A missing
// file is not an error; it materializes on the first Flush. A corrupt file
// is logged and replaced by an empty document, per the persistence
// error-handling contract.
func NewJSONStore(path string) *JSONStore {
	s := &JSONStore{
		path: path,
		log:  log.New("store.json").WithField("path", path),
		doc:  []byte("{}"),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if gjson.ValidBytes(data) {
			s.doc = data
		} else {
			s.log.Warn("stored document is not valid JSON, starting fresh")
		}
	case os.IsNotExist(err):
		// First run.
	default:
		s.log.WithError(err).Error("failed to read store, starting fresh")
	}
	return s
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Reload re-reads the backing file and swaps the in-memory document,
// discarding unflushed staged values. A missing file resets to an empty
// document; unreadable or invalid content is logged and the current
// document kept.
func (s *JSONStore) Reload() error {
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if !gjson.ValidBytes(data) {
			s.log.Warn("reloaded document is not valid JSON, keeping current state")
			return oops.With("path", s.path).Errorf("reloading json store: invalid document")
		}
	case os.IsNotExist(err):
		data = []byte("{}")
	default:
		s.log.WithError(err).Warn("failed to re-read store, keeping current state")
		return oops.With("path", s.path).Wrapf(err, "reloading json store")
	}

	s.mu.Lock()
	s.doc = data
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// TryLoad implements Store. Values decode via encoding/json into the
// wanted type; a value that does not decode is treated as absent.
func (s *JSONStore) TryLoad(key, group string, want reflect.Type) (any, bool) {
	s.mu.Lock()
	res := gjson.GetBytes(s.doc, docPath(group, key))
	s.mu.Unlock()
	if !res.Exists() {
		return nil, false
	}
	if want == nil {
		return res.Value(), true
	}

	ptr := reflect.New(want)
	if err := json.Unmarshal([]byte(res.Raw), ptr.Interface()); err != nil {
		s.log.WithError(err).WithFields(log.Fields{"group": group, "key": key}).
			Warn("persisted value does not decode to expected type")
		return nil, false
	}
	return ptr.Elem().Interface(), true
}

// Save implements Store.
func (s *JSONStore) Save(key, group string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.SetBytes(s.doc, docPath(group, key), value)
	if err != nil {
		s.log.WithError(err).WithFields(log.Fields{"group": group, "key": key}).
			Error("failed to stage value")
		return
	}
	s.doc = doc
	s.dirty = true
}

// Flush implements Store, writing the document atomically.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	if err := writeFileAtomic(s.path, s.doc); err != nil {
		return oops.With("path", s.path).Wrapf(err, "flushing json store")
	}
	s.dirty = false
	return nil
}

// docPath escapes the group and key for gjson/sjson path syntax, where
// dots are separators. Display names routinely contain dots and spaces.
func docPath(group, key string) string {
	return escapeSegment(group) + "." + escapeSegment(key)
}

func escapeSegment(seg string) string {
	out := make([]byte, 0, len(seg))
	for i := 0; i < len(seg); i++ {
		switch seg[i] {
		case '.', '*', '?', '\\', '|', '#', '@':
			out = append(out, '\\')
		}
		out = append(out, seg[i])
	}
	return string(out)
}

// writeFileAtomic writes data via a temp file and rename so a crash never
// leaves a half-written store.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
