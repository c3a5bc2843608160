package component

import (
	"context"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/media"
)

// MuxSink is the opaque external collaborator writing interleaved packets
// to a container/output, a stand-in for the excluded muxing library.
type MuxSink interface {
	AddStream(s *media.Stream) error
	WritePacket(p *media.Packet) error
	NeedsGlobalHeader() bool
	Close() error
}

type muxerState struct {
	name   string
	sink   MuxSink
	in     *fifo.Packet // shared across every linked encoder via Mirror
	events *events.List
	worker Worker
}

func (s *muxerState) stop() {
	if s.in != nil {
		s.in.SetPullNoBlock(true)
	}
	s.worker.Stop()
	if s.in != nil {
		s.in.SetPullNoBlock(false)
	}
}

func (s *muxerState) Destroy() {
	s.stop()
	if s.sink != nil {
		_ = s.sink.Close()
	}
	if s.in != nil {
		s.in.CloseEOS()
		s.in.Drain()
	}
}

func init() {
	Register(class.Muxer, &Ops{
		Create: createMuxer,
		FIFOsIn: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*muxerState](h)
			if !ok {
				return nil
			}
			return []fifo.Generic{s.in}
		},
		FIFOsOut: func(h *class.Handle) []fifo.Generic { return nil },
		Ctrl:     ctrlMuxer,
		Events: func(h *class.Handle) *events.List {
			s, ok := class.As[*muxerState](h)
			if !ok {
				return nil
			}
			return s.events
		},
	})
}

func createMuxer(name string, parent *class.Handle, cfg any) (*class.Handle, error) {
	sink, ok := cfg.(MuxSink)
	if !ok || sink == nil {
		return nil, errors.NewInvalidArgError("muxer.create", nil)
	}
	state := &muxerState{
		name: name,
		sink: sink,
		in:   fifo.New[*media.Packet](fifo.Unbounded),
	}
	h := class.New(state, name, class.Muxer, parent)
	state.events = events.NewList(h)
	return h, nil
}

// AddStream registers an encoder's stream descriptor with the muxer's
// sink, called by the link negotiator on an encoder→muxer link.
func AddStream(h *class.Handle, s *media.Stream) error {
	st, ok := class.As[*muxerState](h)
	if !ok {
		return errors.NewInvalidArgError("muxer.add_stream", nil)
	}
	return st.sink.AddStream(s)
}

// InputFIFO returns the muxer's shared source packet FIFO, the mirror
// target every linked encoder's output FIFO feeds.
func InputFIFO(h *class.Handle) (*fifo.Packet, error) {
	st, ok := class.As[*muxerState](h)
	if !ok {
		return nil, errors.NewInvalidArgError("muxer.input_fifo", nil)
	}
	return st.in, nil
}

// NeedsGlobalHeader reports whether the muxer's container format requires
// a global extradata header, the value an encoder→muxer link negotiates
// against.
func NeedsGlobalHeader(h *class.Handle) bool {
	st, ok := class.As[*muxerState](h)
	if !ok {
		return false
	}
	return st.sink.NeedsGlobalHeader()
}

func ctrlMuxer(h *class.Handle, flags Flag, arg any) error {
	s, ok := class.As[*muxerState](h)
	if !ok {
		return errors.NewInvalidArgError("muxer.ctrl", nil)
	}
	switch {
	case flags.Has(NewEvent):
		ev, ok := arg.(*events.Event)
		if !ok {
			return errors.NewInvalidArgError("muxer.ctrl.new_event", nil)
		}
		return s.events.Add(ev)
	case flags.Has(Start):
		s.worker.Start(func(ctx context.Context) { runMuxer(ctx, s) })
		return s.events.Dispatch(events.TypeMask{Phase: events.OnInit}, nil)
	case flags.Has(Stop):
		s.stop()
		return nil
	case flags.Has(Flush):
		s.in.Drain()
		return nil
	case flags.Has(Opts):
		return applyOpts(s.sink, arg)
	case flags.Has(Command):
		return applyCommand(s.sink, arg)
	case flags.Has(Commit):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnCommit | events.OnConfig}, nil)
	case flags.Has(Discard):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnDiscard}, nil)
	case flags.Has(Signal):
		phase, _ := arg.(events.Phase)
		s.events.Signal(phase)
		return nil
	}
	return errors.NewUnsupportedError("muxer.ctrl", nil)
}

func runMuxer(ctx context.Context, s *muxerState) {
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
			s.events.Dispatch(events.TypeMask{Phase: events.OnEOS}, nil)
			return
		}
		err = s.sink.WritePacket(pkt)
		pkt.Release()
		if err != nil {
			s.events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
		}
	}
}
