package component

import (
	"sync"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/optval"
)

// OptsApplier is implemented optionally by an external collaborator
// (DemuxSource, FrameDecoder, FrameEncoder, MuxSink, FrameFilter) that
// understands named options. A collaborator that doesn't implement it
// simply has OPTS/COMMAND calls forwarded as a no-op: unknown keys are
// the underlying media library's business, not the runtime's.
type OptsApplier interface {
	ApplyOpts(optval.Dict) error
}

// CommandHandler is implemented optionally by an external collaborator
// that accepts runtime commands (set_bitrate, a filter command, …).
type CommandHandler interface {
	Command(optval.Dict) error
}

// applyOpts type-asserts arg to optval.Dict and forwards it to collab if
// it implements OptsApplier; a collaborator that doesn't implement it
// silently accepts the call.
func applyOpts(collab any, arg any) error {
	dict, ok := arg.(optval.Dict)
	if !ok {
		return errors.NewInvalidArgError("component.ctrl.opts", nil)
	}
	if applier, ok := collab.(OptsApplier); ok {
		return applier.ApplyOpts(dict)
	}
	return nil
}

// applyCommand type-asserts arg to optval.Dict and forwards it to collab
// if it implements CommandHandler.
func applyCommand(collab any, arg any) error {
	dict, ok := arg.(optval.Dict)
	if !ok {
		return errors.NewInvalidArgError("component.ctrl.command", nil)
	}
	if handler, ok := collab.(CommandHandler); ok {
		return handler.Command(dict)
	}
	return nil
}

// Ops is the per-Kind operations table: the "kind → operations" lookup
// that replaces virtual dispatch.
// Create allocates a new instance's handle; Ctrl is its CtrlFunc; FIFOsIn/
// FIFOsOut enumerate the component's queues so generic code (commit
// staging, flush-on-discard, stats collection) can operate without knowing
// the concrete payload type.
type Ops struct {
	Create   func(name string, parent *class.Handle, cfg any) (*class.Handle, error)
	Ctrl     CtrlFunc
	FIFOsIn  func(h *class.Handle) []fifo.Generic
	FIFOsOut func(h *class.Handle) []fifo.Generic
	// Events returns the component's own event list, used by the link
	// negotiator to check HasDispatched(ON_INIT) when choosing whether a
	// link runs immediately at commit time or waits on the source's init.
	Events func(h *class.Handle) *events.List
}

var (
	registryMu sync.RWMutex
	registry   = map[class.Kind]*Ops{}
)

// Register installs the Ops table for kind. Called once per kind from
// each concrete Ops implementation's package init.
func Register(kind class.Kind, ops *Ops) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = ops
}

// Lookup returns the Ops table registered for kind.
func Lookup(kind class.Kind) (*Ops, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ops, ok := registry[kind]
	return ops, ok
}

// Ctrl resolves h's kind to its Ops table and calls Ctrl on it, the
// single routing point every link/commit/pipeline call goes through.
func Ctrl(h *class.Handle, flags Flag, arg any) error {
	if h == nil {
		return errors.NewInvalidArgError("component.ctrl", nil)
	}
	ops, ok := Lookup(h.Kind())
	if !ok || ops.Ctrl == nil {
		return errors.NewUnsupportedError("component.ctrl."+h.Kind().String(), nil)
	}
	return ops.Ctrl(h, flags, arg)
}

// outputQueueDepth bounds a component's primary output queue. The queue
// is a fan-out hub: linked consumers read refcount-bumped clones through
// mirrors, so the primary storage only serves direct taps (tests,
// diagnostics) and drops its oldest backlog's successors rather than
// stalling or growing without bound once nothing pops it.
const outputQueueDepth = 16

// newOutputQueue builds a component output queue: bounded, non-blocking
// push (a full queue drops instead of stalling the worker), blocking pop
// for direct consumers.
func newOutputQueue[T fifo.Releasable[T]]() *fifo.FIFO[T] {
	q := fifo.New[T](outputQueueDepth)
	q.SetFlags(fifo.BlockMaxOutput)
	return q
}

// HasDispatched reports whether h's own event list has ever dispatched
// phase, used by the link negotiator to decide whether a link runs at the
// next commit or waits on the source component's own initialization.
func HasDispatched(h *class.Handle, phase events.Phase) bool {
	ops, ok := Lookup(h.Kind())
	if !ok || ops.Events == nil {
		return false
	}
	list := ops.Events(h)
	if list == nil {
		return false
	}
	return list.HasDispatched(phase)
}
