// Package marker provides declarative metadata attached to program elements.
//
// A marker is a (kind, parameters) pair. Field-level markers are written as
// struct tags under the "mod" key; type- and method-level markers are attached
// through an explicit Table, since Go struct tags only exist on fields.
//
// Tag syntax:
//
//	Volume float64 `mod:"config,group=Audio,name=Volume,desc=Master volume"`
//
// Multiple markers on one element are separated by semicolons:
//
//	Volume float64 `mod:"config,group=Audio,name=Volume;ui.slider,min=0,max=1"`
package marker

import (
	"fmt"
	"strings"
)

// TagKey is the struct tag key scanned for markers.
const TagKey = "mod"

// Well-known marker kinds.
const (
	// KindConfig marks an element as a configurable value.
	KindConfig = "config"
)

// Marker is one piece of declarative metadata on a program element.
type Marker struct {
	// Kind identifies which handlers the marker routes to.
	Kind string

	// Params holds the marker's key=value options. May be nil.
	Params map[string]string
}

// New creates a marker of the given kind with optional key=value params.
// Params are supplied as alternating key, value strings; an odd trailing
// key is ignored.
func New(kind string, kv ...string) Marker {
	m := Marker{Kind: kind}
	if len(kv) >= 2 {
		m.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			m.Params[kv[i]] = kv[i+1]
		}
	}
	return m
}

// Param returns the named parameter and whether it was present.
func (m Marker) Param(key string) (string, bool) {
	v, ok := m.Params[key]
	return v, ok
}

// ParamOr returns the named parameter or a fallback.
func (m Marker) ParamOr(key, fallback string) string {
	if v, ok := m.Params[key]; ok {
		return v
	}
	return fallback
}

// String returns a compact textual form, mainly for logs.
func (m Marker) String() string {
	if len(m.Params) == 0 {
		return m.Kind
	}
	parts := make([]string, 0, len(m.Params))
	for k, v := range m.Params {
		parts = append(parts, k+"="+v)
	}
	return fmt.Sprintf("%s(%s)", m.Kind, strings.Join(parts, ","))
}

// ParseTag parses the value of a "mod" struct tag into markers.
// An empty tag yields nil. A malformed segment (empty kind) is an error;
// parameters without '=' are treated as boolean flags with value "true".
func ParseTag(tag string) ([]Marker, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil
	}

	var markers []Marker
	for _, seg := range strings.Split(tag, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		fields := strings.Split(seg, ",")
		kind := strings.TrimSpace(fields[0])
		if kind == "" || strings.Contains(kind, "=") {
			return nil, fmt.Errorf("marker tag %q: missing kind", seg)
		}

		m := Marker{Kind: kind}
		if len(fields) > 1 {
			m.Params = make(map[string]string, len(fields)-1)
			for _, f := range fields[1:] {
				f = strings.TrimSpace(f)
				if f == "" {
					continue
				}
				if k, v, ok := strings.Cut(f, "="); ok {
					m.Params[strings.TrimSpace(k)] = strings.TrimSpace(v)
				} else {
					m.Params[f] = "true"
				}
			}
		}
		markers = append(markers, m)
	}
	return markers, nil
}
