package component

import (
	"context"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/media"
)

// FrameEncoder is the opaque external collaborator compressing raw frames
// into packets, a stand-in for the excluded codec library.
type FrameEncoder interface {
	Encode(f *media.Frame) (*media.Packet, error)
	SetGlobalHeader(bool)
	Close() error
}

type encoderState struct {
	name        string
	encoder     FrameEncoder
	stream      *media.Stream
	in          *fifo.Frame // mirror target upstream links feed
	out         *fifo.Packet
	events      *events.List
	worker      Worker
	modeNegotEv *events.Event
	needGlobal  bool
}

func (s *encoderState) stop() {
	// The worker may be parked in a blocking Pop on the input queue;
	// force it to return so cancellation is observed.
	if s.in != nil {
		s.in.SetPullNoBlock(true)
	}
	s.worker.Stop()
	if s.in != nil {
		s.in.SetPullNoBlock(false)
	}
}

func (s *encoderState) Destroy() {
	s.stop()
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	if s.out != nil {
		s.out.CloseEOS()
		s.out.Drain()
	}
}

func init() {
	Register(class.Encoder, &Ops{
		Create: createEncoder,
		Ctrl:   ctrlEncoder,
		FIFOsIn: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*encoderState](h)
			if !ok {
				return nil
			}
			return []fifo.Generic{s.in}
		},
		FIFOsOut: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*encoderState](h)
			if !ok {
				return nil
			}
			return []fifo.Generic{s.out}
		},
		Events: func(h *class.Handle) *events.List {
			s, ok := class.As[*encoderState](h)
			if !ok {
				return nil
			}
			return s.events
		},
	})
}

func createEncoder(name string, parent *class.Handle, cfg any) (*class.Handle, error) {
	enc, ok := cfg.(FrameEncoder)
	if !ok || enc == nil {
		return nil, errors.NewInvalidArgError("encoder.create", nil)
	}
	state := &encoderState{
		name:    name,
		encoder: enc,
		in:      fifo.New[*media.Frame](fifo.Unbounded),
		out:     newOutputQueue[*media.Packet](),
	}
	// The collaborator may expose its own stream descriptor (codec,
	// timebase, extradata); otherwise synthesize a minimal one so muxer
	// links still have something to register.
	if sp, ok := enc.(interface{ Stream() *media.Stream }); ok {
		state.stream = sp.Stream()
	}
	if state.stream == nil {
		state.stream = &media.Stream{Codec: name}
	}
	h := class.New(state, name, class.Encoder, parent)
	state.events = events.NewList(h)
	return h, nil
}

// EncoderStream returns the stream descriptor an encoder→muxer link
// registers with the muxer's sink.
func EncoderStream(h *class.Handle) (*media.Stream, error) {
	s, ok := class.As[*encoderState](h)
	if !ok {
		return nil, errors.NewInvalidArgError("encoder.stream", nil)
	}
	return s.stream, nil
}

// EncoderInput returns the encoder's own source frame FIFO, the mirror
// target a decoder/filter/source→encoder link feeds.
func EncoderInput(h *class.Handle) (*fifo.Frame, error) {
	s, ok := class.As[*encoderState](h)
	if !ok {
		return nil, errors.NewInvalidArgError("encoder.input", nil)
	}
	return s.in, nil
}

// NegotiateGlobalHeader ORs wantGlobal into the encoder's pending
// global-header requirement, creating the encoder's one-shot ON_CONFIG
// negotiation event on first call. Returns an InvalidArgError once
// ON_CONFIG has already been dispatched: once config has run it is too
// late to change whether the encoder emits a global header.
func NegotiateGlobalHeader(h *class.Handle, wantGlobal bool) error {
	s, ok := class.As[*encoderState](h)
	if !ok {
		return errors.NewInvalidArgError("encoder.negotiate", nil)
	}
	if s.events.HasDispatched(events.OnConfig) {
		return errors.NewInvalidArgError("encoder.negotiate.too_late", nil)
	}
	if s.modeNegotEv == nil {
		ev := events.New(
			events.TypeMask{Phase: events.OnConfig, Flags: events.FlagOneshot},
			func(ev *events.Event, state any, ctx, dep *class.Handle, data any) error {
				st := state.(*encoderState)
				if st.needGlobal {
					st.encoder.SetGlobalHeader(true)
				}
				return nil
			},
			s,
			nil,
		)
		if err := s.events.Add(ev); err != nil {
			return err
		}
		s.modeNegotEv = ev
	}
	if wantGlobal {
		s.needGlobal = true
	}
	return nil
}

func ctrlEncoder(h *class.Handle, flags Flag, arg any) error {
	s, ok := class.As[*encoderState](h)
	if !ok {
		return errors.NewInvalidArgError("encoder.ctrl", nil)
	}
	switch {
	case flags.Has(NewEvent):
		ev, ok := arg.(*events.Event)
		if !ok {
			return errors.NewInvalidArgError("encoder.ctrl.new_event", nil)
		}
		return s.events.Add(ev)
	case flags.Has(Start):
		s.worker.Start(func(ctx context.Context) { runEncoder(ctx, s) })
		return s.events.Dispatch(events.TypeMask{Phase: events.OnInit}, nil)
	case flags.Has(Stop):
		s.stop()
		return nil
	case flags.Has(Flush):
		s.out.Drain()
		return nil
	case flags.Has(Opts):
		return applyOpts(s.encoder, arg)
	case flags.Has(Command):
		return applyCommand(s.encoder, arg)
	case flags.Has(Commit):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnCommit | events.OnConfig}, nil)
	case flags.Has(Discard):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnDiscard}, nil)
	case flags.Has(Signal):
		phase, _ := arg.(events.Phase)
		s.events.Signal(phase)
		return nil
	}
	return errors.NewUnsupportedError("encoder.ctrl", nil)
}

func runEncoder(ctx context.Context, s *encoderState) {
	// Frames lost to a full non-blocking input queue are not errors;
	// surface the running total via ON_STATS instead.
	var reportedDrops uint64
	reportDrops := func() {
		if d := s.in.Dropped(); d != reportedDrops {
			reportedDrops = d
			s.events.Dispatch(events.TypeMask{Phase: events.OnStats}, d)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, ok, err := s.in.Pop()
		reportDrops()
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
		pkt, err := s.encoder.Encode(frame)
		frame.Release()
		if err != nil {
			s.events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			continue
		}
		if pkt == nil {
			continue
		}
		if err := s.out.Push(pkt); err != nil {
			pkt.Release()
		}
	}
}
