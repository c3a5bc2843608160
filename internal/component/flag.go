// Package component implements the uniform controller entry point every
// pipeline component (demuxer, decoder, encoder, muxer, filtergraph)
// exposes: a single Ctrl(handle, flags, arg) function plus a per-kind
// Ops table replacing virtual dispatch.
package component

import "github.com/alxayo/txproto-go/internal/class"

// Flag is the bitset passed to a CtrlFunc, combining a command with
// optional modifiers (oneshot scheduling is handled by the events package,
// not here; component.Flag only carries what the control call itself
// means).
type Flag uint32

const (
	// NewEvent registers arg.(*events.Event) on the component's own list
	// instead of performing an action.
	NewEvent Flag = 1 << iota
	// Start spins up the component's worker goroutine(s).
	Start
	// Stop tears down the worker goroutine(s) and joins them.
	Stop
	// Opts applies arg.(*optval.Dict) as a configuration update.
	Opts
	// Command sends an implementation-defined control message in arg.
	Command
	// Flush drops all queued, not-yet-processed data without closing the
	// component's FIFOs.
	Flush
	// Signal releases every parked dependency event on this component's
	// own list whose registered phase is arg.(events.Phase), so the next
	// matching Dispatch call runs it as an ordinary event.
	Signal
	// Discard runs this component's staged discard actions.
	Discard
	// Commit runs this component's staged commit actions.
	Commit
	// Immediate marks the call as synchronous/non-staged (bypasses the
	// commit/discard staging a plain Start/Stop would otherwise get via
	// internal/commit).
	Immediate
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// CtrlFunc is the uniform entry point every component kind implements.
type CtrlFunc func(h *class.Handle, flags Flag, arg any) error
