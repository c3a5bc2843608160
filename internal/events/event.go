package events

import "github.com/alxayo/txproto-go/internal/class"

// Callback is the signature every registered event handler implements.
// state is the handler's private payload, registered alongside the
// callback so it can be reused across dispatches without a closure alloc
// per call. ctx is the handle the event was dispatched against; depCtx
// is set only for FlagDependency events, once their source phase fires.
type Callback func(ev *Event, state any, ctx, depCtx *class.Handle, data any) error

// Destructor releases a handler's state when the Event is removed from its
// List, e.g. because it was a one-shot and already fired.
type Destructor func(state any)

// Event is one registered (type, callback) pair inside a List; Type
// carries its phase/category/flag bit-set.
type Event struct {
	Type     TypeMask
	Callback Callback
	Destroy  Destructor
	State    any

	// DepCtx is the weak (non-owning) handle a FlagDependency event is
	// parked against until its source phase is signaled. It is never
	// Ref'd/Unref'd by the list itself.
	DepCtx *class.Handle

	dispatched bool
}

// New constructs an Event ready to be added to a List.
func New(t TypeMask, cb Callback, state any, destroy Destructor) *Event {
	return &Event{Type: t, Callback: cb, State: state, Destroy: destroy}
}
