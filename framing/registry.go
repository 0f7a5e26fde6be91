package framing

import (
	"sync/atomic"

	"github.com/opd-ai/midisock/packet"
)

// MessageHandler consumes one reassembled message. The message is owned by
// the handler once called.
type MessageHandler func(msg packet.Message)

// Registry holds at most one MessageHandler. Attach and Deliver may run
// concurrently; a delivery observes either the previous or the new handler.
type Registry struct {
	handler atomic.Pointer[MessageHandler]
}

// Attach replaces the current handler. Attaching nil leaves no handler, so
// subsequent messages are dropped.
func (r *Registry) Attach(h MessageHandler) {
	if h == nil {
		r.handler.Store(nil)
		return
	}
	r.handler.Store(&h)
}

// Load returns the current handler, or nil.
func (r *Registry) Load() MessageHandler {
	if h := r.handler.Load(); h != nil {
		return *h
	}
	return nil
}

// Deliver invokes the current handler with msg and reports whether one ran.
func (r *Registry) Deliver(msg packet.Message) bool {
	h := r.Load()
	if h == nil {
		return false
	}
	h(msg)
	return true
}
