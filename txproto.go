// Package txproto is the public API of the programmable media pipeline
// runtime: the component-graph commit/discard protocol, the bounded FIFO
// transport, and the event bus, surfaced as a flat function-on-a-context
// set (new/init/free, demuxer/decoder/encoder/muxer/filtergraph
// constructors, link, ctrl, commit, destroy, event registration, I/O
// source management). It is a thin wrapper over
// internal/pipeline.MainContext; the runtime is a library entry point
// rather than a single listening process, so the delegation surface
// lives at the module root instead of a cmd package.
package txproto

import (
	"context"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/config"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/iosys"
	"github.com/alxayo/txproto-go/internal/linking"
	"github.com/alxayo/txproto-go/internal/optval"
	"github.com/alxayo/txproto-go/internal/pipeline"
)

// Re-export the handful of types callers need without reaching into
// internal/.
type (
	// Context is the root runtime handle returned by New.
	Context = pipeline.MainContext
	// Handle is the classed-object handle every component, event list
	// owner, and I/O entry shares.
	Handle = class.Handle
	// Kind is the closed component-kind enumeration.
	Kind = class.Kind
	// Flag is the component.Ctrl bit-set.
	Flag = component.Flag
	// Event is one registered event-bus callback.
	Event = events.Event
	// LinkOptions carries link()'s optional parameters.
	LinkOptions = linking.Options
	// EncoderParams carries encoder_create()'s options object.
	EncoderParams = pipeline.EncoderParams
	// Dict is the option-dictionary value type used by init_opts/OPTS/
	// mux_opts/codec_opts.
	Dict = optval.Dict
	// DemuxSource, FrameDecoder, FrameEncoder, MuxSink, FrameFilter are
	// the opaque external collaborators components wrap in place of a
	// real codec/demux/mux/filter library.
	DemuxSource  = component.DemuxSource
	FrameDecoder = component.FrameDecoder
	FrameEncoder = component.FrameEncoder
	MuxSink      = component.MuxSink
	FrameFilter  = component.FrameFilter
	// IOAPI is an I/O source back-end registered with IORegisterCB.
	IOAPI = iosys.API
)

// Kind constants, re-exported for callers building components.
const (
	KindDemuxer    = class.Demuxer
	KindDecoder    = class.Decoder
	KindFilter     = class.Filter
	KindEncoder    = class.Encoder
	KindMuxer      = class.Muxer
	KindInterface  = class.Interface
	KindPacketSink = class.PacketSink
)

// Ctrl flag constants, re-exported for ctrl() callers.
const (
	NewEvent  = component.NewEvent
	Start     = component.Start
	Stop      = component.Stop
	Opts      = component.Opts
	Command   = component.Command
	Flush     = component.Flush
	Signal    = component.Signal
	Discard   = component.Discard
	Commit    = component.Commit
	Immediate = component.Immediate
)

// New allocates a MainContext with cfg's defaults filled in. Pass
// config.Default() for an all-defaults context.
func New(cfg config.Config) *Context { return pipeline.New(cfg) }

// Init starts every registered I/O back-end's discovery/connection
// loop.
func Init(ctx context.Context, mc *Context) error { return mc.Init(ctx) }

// Free unrefs every externally held component/entry handle.
func Free(mc *Context) { mc.Free() }

// EpochSetOffset moves the epoch clock into Offset mode.
func EpochSetOffset(mc *Context, offsetNanos int64) { mc.EpochSetOffset(offsetNanos) }

// EpochSetSystem moves the epoch clock into System (wall-clock) mode.
func EpochSetSystem(mc *Context) { mc.EpochSetSystem() }

// DemuxerCreate builds a demuxer component reading from src.
func DemuxerCreate(mc *Context, name, url string, src DemuxSource, initOpts Dict) (*Handle, error) {
	return mc.DemuxerCreate(name, url, src, initOpts)
}

// DecoderCreate builds a decoder component wrapping dec.
func DecoderCreate(mc *Context, codecName string, dec FrameDecoder, initOpts Dict) (*Handle, error) {
	return mc.DecoderCreate(codecName, dec, initOpts)
}

// EncoderCreate builds an encoder component wrapping enc.
func EncoderCreate(mc *Context, p EncoderParams, enc FrameEncoder) (*Handle, error) {
	return mc.EncoderCreate(p, enc)
}

// MuxerCreate builds a muxer component wrapping sink.
func MuxerCreate(mc *Context, url string, sink MuxSink, muxOpts, initOpts Dict) (*Handle, error) {
	return mc.MuxerCreate(url, sink, muxOpts, initOpts)
}

// FiltergraphCreate builds a filter-graph component wrapping graph.
func FiltergraphCreate(mc *Context, graphString, hwdevKind string, graph FrameFilter, initOpts Dict) (*Handle, error) {
	return mc.FiltergraphCreate(graphString, hwdevKind, graph, initOpts)
}

// Link wires src to dst per the negotiator's kind-pair wiring table.
func Link(mc *Context, src, dst *Handle, opts LinkOptions) error {
	return mc.Link(src, dst, opts)
}

// Ctrl is the uniform per-component control entry point.
func Ctrl(mc *Context, h *Handle, flags Flag, arg any) error {
	return mc.Ctrl(h, flags, arg)
}

// CommitAll dispatches every staged ON_COMMIT event. Named CommitAll,
// not Commit, so it doesn't collide with the re-exported
// component.Commit flag constant above.
func CommitAll(mc *Context) error { return mc.Commit() }

// DiscardAll rolls back every staged ON_DISCARD event.
func DiscardAll(mc *Context) error { return mc.Discard() }

// Destroy pops h from the external-reference list and unrefs it.
func Destroy(mc *Context, h *Handle) { mc.Destroy(h) }

// EventRegister registers ev on target's own event list.
func EventRegister(mc *Context, target *Handle, ev *Event) error {
	return mc.EventRegister(target, ev)
}

// EventDestroy retires ev before it fires.
func EventDestroy(mc *Context, target *Handle, ev *Event) error {
	return mc.EventDestroy(target, ev)
}

// IORegisterCB registers an I/O source API back-end with the main
// context's registry.
func IORegisterCB(mc *Context, api IOAPI) { mc.IORegisterCB(api) }

// IOCreate looks up a discovered I/O entry by API name and identifier
// and applies opts to it.
func IOCreate(mc *Context, apiName string, identifier uint32, opts Dict) (*Handle, error) {
	return mc.IOCreate(apiName, identifier, opts)
}
