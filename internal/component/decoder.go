package component

import (
	"context"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/media"
)

// FrameDecoder is the opaque external collaborator turning compressed
// packets into raw frames, a stand-in for the excluded codec library.
type FrameDecoder interface {
	Decode(pkt *media.Packet) (*media.Frame, error)
	Close() error
}

type decoderState struct {
	name    string
	decoder FrameDecoder
	in      *fifo.Packet // mirror target the demuxer link feeds
	out     *fifo.Frame
	events  *events.List
	worker  Worker
}

func (s *decoderState) stop() {
	// Wake a worker parked in a blocking Pop so cancellation is
	// observed.
	if s.in != nil {
		s.in.SetPullNoBlock(true)
	}
	s.worker.Stop()
	if s.in != nil {
		s.in.SetPullNoBlock(false)
	}
}

func (s *decoderState) Destroy() {
	s.stop()
	if s.decoder != nil {
		_ = s.decoder.Close()
	}
	if s.out != nil {
		s.out.CloseEOS()
		s.out.Drain()
	}
}

func init() {
	Register(class.Decoder, &Ops{
		Create: createDecoder,
		Ctrl:   ctrlDecoder,
		FIFOsIn: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*decoderState](h)
			if !ok {
				return nil
			}
			return []fifo.Generic{s.in}
		},
		FIFOsOut: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*decoderState](h)
			if !ok {
				return nil
			}
			return []fifo.Generic{s.out}
		},
		Events: func(h *class.Handle) *events.List {
			s, ok := class.As[*decoderState](h)
			if !ok {
				return nil
			}
			return s.events
		},
	})
}

func createDecoder(name string, parent *class.Handle, cfg any) (*class.Handle, error) {
	dec, ok := cfg.(FrameDecoder)
	if !ok || dec == nil {
		return nil, errors.NewInvalidArgError("decoder.create", nil)
	}
	state := &decoderState{
		name:    name,
		decoder: dec,
		in:      fifo.New[*media.Packet](fifo.Unbounded),
		out:     newOutputQueue[*media.Frame](),
	}
	h := class.New(state, name, class.Decoder, parent)
	state.events = events.NewList(h)
	return h, nil
}

// DecoderInput returns the decoder's own source FIFO, the mirror target a
// demuxer→decoder link feeds.
func DecoderInput(h *class.Handle) (*fifo.Packet, error) {
	s, ok := class.As[*decoderState](h)
	if !ok {
		return nil, errors.NewInvalidArgError("decoder.input", nil)
	}
	return s.in, nil
}

func ctrlDecoder(h *class.Handle, flags Flag, arg any) error {
	s, ok := class.As[*decoderState](h)
	if !ok {
		return errors.NewInvalidArgError("decoder.ctrl", nil)
	}
	switch {
	case flags.Has(NewEvent):
		ev, ok := arg.(*events.Event)
		if !ok {
			return errors.NewInvalidArgError("decoder.ctrl.new_event", nil)
		}
		return s.events.Add(ev)
	case flags.Has(Start):
		s.worker.Start(func(ctx context.Context) { runDecoder(ctx, s) })
		return s.events.Dispatch(events.TypeMask{Phase: events.OnInit}, nil)
	case flags.Has(Stop):
		s.stop()
		return nil
	case flags.Has(Flush):
		s.out.Drain()
		return nil
	case flags.Has(Opts):
		return applyOpts(s.decoder, arg)
	case flags.Has(Command):
		return applyCommand(s.decoder, arg)
	case flags.Has(Commit):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnCommit | events.OnConfig}, nil)
	case flags.Has(Discard):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnDiscard}, nil)
	case flags.Has(Signal):
		phase, _ := arg.(events.Phase)
		s.events.Signal(phase)
		return nil
	}
	return errors.NewUnsupportedError("decoder.ctrl", nil)
}

func runDecoder(ctx context.Context, s *decoderState) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, ok, err := s.in.Pop()
		if err != nil {
			if errors.IsAgain(err) {
				if !pollWait(ctx) {
					return
				}
				continue
			}
			s.events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			return
		}
		if !ok {
			s.out.CloseEOS()
			s.events.Dispatch(events.TypeMask{Phase: events.OnEOS}, nil)
			return
		}
		frame, err := s.decoder.Decode(pkt)
		pkt.Release()
		if err != nil {
			s.events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			continue
		}
		if frame == nil {
			continue
		}
		if err := s.out.Push(frame); err != nil {
			frame.Release()
		}
	}
}
