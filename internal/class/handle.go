package class

import (
	"sync"
	"sync/atomic"
)

// Destroyable is implemented by payloads that need teardown when the last
// reference drops. Destroy must be idempotent with respect to already
// released children.
type Destroyable interface {
	Destroy()
}

// Handle is a reference-counted, named, typed wrapper around an opaque
// payload. The refcount defines ownership: the handle is shared by every
// holder, and the payload destructor runs exactly once when the last
// reference drops. A single concrete type (rather than a generic per-T
// handle) keeps ctx/dep_ctx identity comparisons and heterogeneous
// registries simple.
type Handle struct {
	payload any
	kind    Kind
	parent  *Handle

	refcount atomic.Int32
	name     atomic.Pointer[string]
	once     sync.Once
}

// New allocates a handle with an initial refcount of 1.
func New(payload any, name string, kind Kind, parent *Handle) *Handle {
	h := &Handle{payload: payload, kind: kind, parent: parent}
	h.refcount.Store(1)
	h.name.Store(&name)
	return h
}

// Payload returns the wrapped value.
func (h *Handle) Payload() any { return h.payload }

// Kind returns the handle's kind tag.
func (h *Handle) Kind() Kind { return h.kind }

// TypeOf is an alias of Kind, kept for call sites that read better with
// the question form.
func (h *Handle) TypeOf() Kind { return h.kind }

// Parent returns the log-context parent, used only for name/log
// inheritance, never for lifecycle.
func (h *Handle) Parent() *Handle { return h.parent }

// Name returns the current mutable name.
func (h *Handle) Name() string {
	if p := h.name.Load(); p != nil {
		return *p
	}
	return ""
}

// SetName mutates the handle's name. Safe for concurrent use; synchronized
// via an atomic pointer swap rather than a spinlock.
func (h *Handle) SetName(s string) { h.name.Store(&s) }

// Ref increments the refcount and returns the same handle for chaining.
func (h *Handle) Ref() *Handle {
	h.refcount.Add(1)
	return h
}

// Unref decrements the refcount. When it transitions from 1 to 0 the
// payload's Destroy (if implemented) runs exactly once.
func (h *Handle) Unref() {
	if h.refcount.Add(-1) == 0 {
		h.once.Do(func() {
			if d, ok := h.payload.(Destroyable); ok {
				d.Destroy()
			}
		})
	}
}

// RefCount returns a snapshot of the current refcount, for diagnostics and
// tests only.
func (h *Handle) RefCount() int32 { return h.refcount.Load() }

// As type-asserts a handle's payload, for callers that know the concrete
// type they expect (component Ops implementations).
func As[T any](h *Handle) (T, bool) {
	var zero T
	if h == nil {
		return zero, false
	}
	v, ok := h.payload.(T)
	return v, ok
}
