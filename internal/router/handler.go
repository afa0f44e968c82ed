package router

import (
	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
	"github.com/JMC2002/JmcModLib-sub001/internal/module"
)

// Handler processes one marker occurrence during a module scan.
//
// Handlers are registered per marker kind and invoked in registration
// order. A handler error aborts neither the scan nor the other handlers;
// the router logs it and moves on.
type Handler interface {
	// HandleMarker is called once per (element, marker) occurrence.
	HandleMarker(mod *module.Module, target *accessor.Descriptor, mk marker.Marker) error
}

// Reverter is an optional interface a Handler can implement to undo its
// effects when a module is unscanned. It receives exactly the accessors
// the handler processed during the scan, in unspecified order.
type Reverter interface {
	Revert(mod *module.Module, touched []*accessor.Descriptor) error
}

// HandlerFunc adapts a plain function to Handler. The adapter is a pointer
// type so two adapters are distinct, comparable handler identities.
type HandlerFunc struct {
	fn func(mod *module.Module, target *accessor.Descriptor, mk marker.Marker) error
}

// NewHandlerFunc wraps fn as a Handler.
func NewHandlerFunc(fn func(mod *module.Module, target *accessor.Descriptor, mk marker.Marker) error) *HandlerFunc {
	return &HandlerFunc{fn: fn}
}

// HandleMarker implements Handler.
func (h *HandlerFunc) HandleMarker(mod *module.Module, target *accessor.Descriptor, mk marker.Marker) error {
	return h.fn(mod, target, mk)
}
