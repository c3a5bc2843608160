// Package linking implements link negotiation: wiring two component
// handles together according to their kind pair, with the wiring applied
// at commit time once both endpoints are configured.
package linking

import (
	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/commit"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/iosys"
)

// Options carries the optional link parameters used by the filter-pad and
// demuxer-stream link shapes.
type Options struct {
	Autostart     bool
	SrcPad        *string
	DstPad        *string
	SrcStreamID   *int
	SrcStreamDesc *string
}

// Context is what Link needs from the owning main context: the commit
// staging surface plus the ctrl dispatch that injects the current epoch
// value into CTRL_START. *pipeline.MainContext satisfies it.
type Context interface {
	commit.Context
	Ctrl(h *class.Handle, flags component.Flag, arg any) error
}

// ctrlFor routes a control call to an I/O entry's own ctrl when the
// handle wraps one, and to the per-kind Ops table otherwise, so link
// endpoints can be components or capture entries interchangeably.
func ctrlFor(h *class.Handle, flags component.Flag, arg any) error {
	if entry, ok := class.As[*iosys.Entry](h); ok && entry.Ctrl != nil {
		return entry.Ctrl(h, flags, arg)
	}
	return component.Ctrl(h, flags, arg)
}

// eventsOf resolves a link endpoint's own event list: an I/O entry
// carries it directly, a component exposes it through its Ops table.
func eventsOf(h *class.Handle) *events.List {
	if entry, ok := class.As[*iosys.Entry](h); ok {
		return entry.Events
	}
	if ops, ok := component.Lookup(h.Kind()); ok && ops.Events != nil {
		return ops.Events(h)
	}
	return nil
}

func hasDispatchedInit(h *class.Handle) bool {
	list := eventsOf(h)
	return list != nil && list.HasDispatched(events.OnInit)
}

// Link wires src to dst according to their kind pair. mc is the owning
// main context, used to stage the matching discard action and (in the
// autostart path) start both endpoints.
func Link(mc Context, src, dst *class.Handle, opts Options) error {
	wire, err := route(src, dst, opts)
	if err != nil {
		return err
	}

	if hasDispatchedInit(src) {
		// Source already initialized: schedule the link to run at the
		// next main-context commit.
		if err := commit.StageCommit(mc, wrapLinkFn(wire), dst); err != nil {
			return err
		}
	} else {
		// Source not yet initialized: park the wiring as an ON_CONFIG
		// event on the destination's own list, marked DEPENDENCY so
		// List.Dispatch skips it until released. The source is
		// separately asked to SIGNAL dst once its own ON_INIT fires,
		// which clears the DEPENDENCY flag so the next ON_CONFIG
		// dispatch on dst (part of its own Commit, see e.g. encoder.go's
		// Commit case dispatching OnCommit|OnConfig together) runs the
		// wiring closure.
		dstList := eventsOf(dst)
		if dstList == nil {
			return errors.NewUnsupportedError("linking.dst_events."+dst.Kind().String(), nil)
		}
		depEv := events.New(
			events.TypeMask{Phase: events.OnConfig, Flags: events.FlagDependency | events.FlagOneshot},
			func(ev *events.Event, state any, ctx, dep *class.Handle, data any) error {
				return wire()
			},
			nil, nil,
		)
		depEv.DepCtx = src
		if err := dstList.Add(depEv); err != nil {
			return err
		}

		signalEv := events.New(
			events.TypeMask{Phase: events.OnInit, Flags: events.FlagOneshot},
			func(ev *events.Event, state any, ctx, dep *class.Handle, data any) error {
				return ctrlFor(dst, component.Signal, events.OnConfig)
			},
			nil, nil,
		)
		if err := ctrlFor(src, component.NewEvent, signalEv); err != nil {
			return err
		}
	}

	if opts.Autostart {
		// Start both endpoints through the main context's Ctrl so they
		// receive the current epoch value and get their commit (plus
		// the matching discard) staged: the destination's staged
		// ctrl(COMMIT) is what dispatches its ON_CONFIG at the next
		// main-context commit, running any link event the source's
		// ON_INIT just unparked.
		if err := mc.Ctrl(src, component.Start, nil); err != nil {
			return err
		}
		return mc.Ctrl(dst, component.Start, nil)
	}

	if err := commit.StageDiscard(mc, ctrlFor, src); err != nil {
		return err
	}
	return commit.StageDiscard(mc, ctrlFor, dst)
}

func wrapLinkFn(fn func() error) component.CtrlFunc {
	return func(h *class.Handle, flags component.Flag, arg any) error {
		return fn()
	}
}

// route resolves (src, dst)'s kind pair to the wiring closure that
// performs it: rows are the source kind, columns the destination kind.
func route(src, dst *class.Handle, opts Options) (func() error, error) {
	srcKind, dstKind := src.Kind(), dst.Kind()

	switch {
	case srcKind == class.Encoder && dstKind == class.Muxer:
		// Global-header negotiation happens at link time, not when the
		// deferred wiring settles: by commit the encoder's ON_CONFIG may
		// already have dispatched and the flag would be too late to
		// set.
		if component.NeedsGlobalHeader(dst) {
			if err := component.NegotiateGlobalHeader(src, true); err != nil {
				return nil, err
			}
		}
		return func() error { return linkEncoderMuxer(src, dst) }, nil

	case srcKind == class.Demuxer && dstKind == class.Decoder:
		return func() error { return linkDemuxerDecoder(src, dst, opts) }, nil

	case srcKind == class.Decoder && dstKind == class.Filter:
		return func() error { return linkUpstreamToFilterPad(decoderOutput, src, dst, opts.DstPad) }, nil

	case srcKind == class.Decoder && (dstKind == class.Encoder || dstKind == class.Interface):
		return func() error { return linkDecoderToEncoderOrInterface(src, dst) }, nil

	case srcKind.IsSource() && srcKind != class.Demuxer && dstKind == class.Filter:
		return func() error { return linkUpstreamToFilterPad(sourceOutput, src, dst, opts.DstPad) }, nil

	case srcKind.IsSource() && srcKind != class.Demuxer && (dstKind == class.Encoder || dstKind == class.Interface):
		return func() error { return linkSourceToEncoderOrInterface(src, dst) }, nil

	case srcKind == class.Filter && dstKind == class.Filter:
		return func() error { return component.MapPadToPad(dst, opts.DstPad, src, opts.SrcPad) }, nil

	case srcKind == class.Filter && (dstKind == class.Encoder || dstKind == class.Interface):
		return func() error { return linkFilterToEncoderOrInterface(src, dst, opts.SrcPad) }, nil
	}

	return nil, errors.NewUnsupportedError("linking.route."+srcKind.String()+"_"+dstKind.String(), nil)
}

// linkEncoderMuxer registers the encoder's stream with the muxer's sink
// and mirrors the encoder's output packet FIFO into the muxer's shared
// input FIFO.
func linkEncoderMuxer(enc, mux *class.Handle) error {
	stream, err := component.EncoderStream(enc)
	if err != nil {
		return err
	}
	if err := component.AddStream(mux, stream); err != nil {
		return err
	}
	muxIn, err := component.InputFIFO(mux)
	if err != nil {
		return err
	}
	out, err := encoderOutput(enc)
	if err != nil {
		return err
	}
	out.Mirror(muxIn)
	return nil
}

// linkDemuxerDecoder mirrors the demuxer's packet output into the
// decoder's own input FIFO. opts.SrcStreamID/SrcStreamDesc are not
// consulted: every packet the demuxer produces is delivered on its single
// shared output FIFO, so the decoder receives all of the demuxer's streams.
func linkDemuxerDecoder(dmx, dec *class.Handle, opts Options) error {
	dmxOps, ok := component.Lookup(class.Demuxer)
	if !ok {
		return errors.NewUnsupportedError("linking.demuxer_decoder", nil)
	}
	outs := dmxOps.FIFOsOut(dmx)
	if len(outs) == 0 {
		return errors.NewInvalidArgError("linking.demuxer_decoder.no_output", nil)
	}
	out, ok := outs[0].(*fifo.Packet)
	if !ok {
		return errors.NewInvalidArgError("linking.demuxer_decoder.bad_fifo", nil)
	}
	in, err := component.DecoderInput(dec)
	if err != nil {
		return err
	}
	out.Mirror(in)
	return nil
}

// linkDecoderToEncoderOrInterface mirrors the decoder's output frame
// FIFO into the destination's input frame FIFO.
func linkDecoderToEncoderOrInterface(dec, dst *class.Handle) error {
	out, err := decoderOutput(dec)
	if err != nil {
		return err
	}
	return mirrorIntoFrameDestination(dst, out)
}

// linkSourceToEncoderOrInterface mirrors a capture source's output frame
// FIFO into the destination.
func linkSourceToEncoderOrInterface(src, dst *class.Handle) error {
	out, err := sourceOutput(src)
	if err != nil {
		return err
	}
	return mirrorIntoFrameDestination(dst, out)
}

// linkFilterToEncoderOrInterface maps a filter graph's output pad into
// the destination's input frame FIFO.
func linkFilterToEncoderOrInterface(filt, dst *class.Handle, srcPad *string) error {
	in, err := frameDestinationInput(dst)
	if err != nil {
		return err
	}
	return component.MapFIFOToPad(filt, srcPad, in, true)
}

// linkUpstreamToFilterPad maps an upstream frame producer's output FIFO
// into a filter graph's input pad.
func linkUpstreamToFilterPad(output func(*class.Handle) (*fifo.Frame, error), src, filt *class.Handle, dstPad *string) error {
	out, err := output(src)
	if err != nil {
		return err
	}
	return component.MapFIFOToPad(filt, dstPad, out, false)
}

// decoderOutput/sourceOutput/encoderOutput type-assert a component's
// generic FIFOsOut entry down to its concrete payload type. Every
// registered Ops implementation exposes exactly this shape; an
// unregistered kind (e.g. a capture source not yet wired through
// internal/iosys) surfaces as an UnsupportedError here rather than a
// panic.
func decoderOutput(h *class.Handle) (*fifo.Frame, error) {
	ops, ok := component.Lookup(class.Decoder)
	if !ok {
		return nil, errors.NewUnsupportedError("linking.decoder_output", nil)
	}
	return firstFrameFIFO(ops.FIFOsOut(h), "linking.decoder_output")
}

func sourceOutput(h *class.Handle) (*fifo.Frame, error) {
	if entry, ok := class.As[*iosys.Entry](h); ok {
		if entry.Output == nil {
			return nil, errors.NewInvalidArgError("linking.source_output.entry", nil)
		}
		return entry.Output, nil
	}
	ops, ok := component.Lookup(h.Kind())
	if !ok {
		return nil, errors.NewUnsupportedError("linking.source_output."+h.Kind().String(), nil)
	}
	return firstFrameFIFO(ops.FIFOsOut(h), "linking.source_output")
}

func encoderOutput(h *class.Handle) (*fifo.Packet, error) {
	ops, ok := component.Lookup(class.Encoder)
	if !ok {
		return nil, errors.NewUnsupportedError("linking.encoder_output", nil)
	}
	outs := ops.FIFOsOut(h)
	if len(outs) == 0 {
		return nil, errors.NewInvalidArgError("linking.encoder_output.no_output", nil)
	}
	out, ok := outs[0].(*fifo.Packet)
	if !ok {
		return nil, errors.NewInvalidArgError("linking.encoder_output.bad_fifo", nil)
	}
	return out, nil
}

func firstFrameFIFO(outs []fifo.Generic, op string) (*fifo.Frame, error) {
	if len(outs) == 0 {
		return nil, errors.NewInvalidArgError(op+".no_output", nil)
	}
	out, ok := outs[0].(*fifo.Frame)
	if !ok {
		return nil, errors.NewInvalidArgError(op+".bad_fifo", nil)
	}
	return out, nil
}

// frameDestinationInput resolves dst's own input frame FIFO, dispatching
// on dst's kind. An encoder exposes it through EncoderInput; an
// interface is backed by an I/O entry whose Output queue is the frame
// queue its front-end consumes, so links mirror into that.
func frameDestinationInput(dst *class.Handle) (*fifo.Frame, error) {
	switch dst.Kind() {
	case class.Encoder:
		return component.EncoderInput(dst)
	case class.Interface:
		entry, ok := class.As[*iosys.Entry](dst)
		if !ok || entry.Output == nil {
			return nil, errors.NewInvalidArgError("linking.frame_destination.interface", nil)
		}
		return entry.Output, nil
	}
	return nil, errors.NewUnsupportedError("linking.frame_destination."+dst.Kind().String(), nil)
}

func mirrorIntoFrameDestination(dst *class.Handle, out *fifo.Frame) error {
	in, err := frameDestinationInput(dst)
	if err != nil {
		return err
	}
	out.Mirror(in)
	return nil
}
