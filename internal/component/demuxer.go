package component

import (
	"context"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/logger"
	"github.com/alxayo/txproto-go/internal/media"
)

// DemuxSource is the opaque external collaborator a demuxer instance
// reads compressed packets from, a stand-in for a real
// container-parsing library.
type DemuxSource interface {
	// ReadPacket blocks until the next packet is available, returns
	// (nil, false, nil) on clean end-of-stream.
	ReadPacket(ctx context.Context) (*media.Packet, bool, error)
	Streams() []*media.Stream
	Close() error
}

type demuxerState struct {
	name    string
	source  DemuxSource
	streams []*media.Stream
	out     *fifo.Packet
	events  *events.List
	detect  media.CodecDetector
	worker  Worker
}

func (s *demuxerState) Destroy() {
	s.worker.Stop()
	if s.source != nil {
		_ = s.source.Close()
	}
	if s.out != nil {
		s.out.CloseEOS()
		s.out.Drain()
	}
}

func (s *demuxerState) SetCodec(streamID int, codec string) {
	for _, st := range s.streams {
		if st.ID == streamID {
			st.Codec = codec
			return
		}
	}
}

func (s *demuxerState) GetCodec(streamID int) string {
	for _, st := range s.streams {
		if st.ID == streamID {
			return st.Codec
		}
	}
	return ""
}

func (s *demuxerState) Name() string { return s.name }

func init() {
	Register(class.Demuxer, &Ops{
		Create:   createDemuxer,
		Ctrl:     ctrlDemuxer,
		FIFOsIn:  func(h *class.Handle) []fifo.Generic { return nil },
		FIFOsOut: demuxerFIFOsOut,
		Events: func(h *class.Handle) *events.List {
			s, ok := class.As[*demuxerState](h)
			if !ok {
				return nil
			}
			return s.events
		},
	})
}

func createDemuxer(name string, parent *class.Handle, cfg any) (*class.Handle, error) {
	src, ok := cfg.(DemuxSource)
	if !ok || src == nil {
		return nil, errors.NewInvalidArgError("demuxer.create", nil)
	}
	state := &demuxerState{
		name:    name,
		source:  src,
		streams: src.Streams(),
		out:     newOutputQueue[*media.Packet](),
	}
	h := class.New(state, name, class.Demuxer, parent)
	state.events = events.NewList(h)
	return h, nil
}

func demuxerFIFOsOut(h *class.Handle) []fifo.Generic {
	s, ok := class.As[*demuxerState](h)
	if !ok {
		return nil
	}
	return []fifo.Generic{s.out}
}

func ctrlDemuxer(h *class.Handle, flags Flag, arg any) error {
	s, ok := class.As[*demuxerState](h)
	if !ok {
		return errors.NewInvalidArgError("demuxer.ctrl", nil)
	}
	switch {
	case flags.Has(NewEvent):
		ev, ok := arg.(*events.Event)
		if !ok {
			return errors.NewInvalidArgError("demuxer.ctrl.new_event", nil)
		}
		return s.events.Add(ev)
	case flags.Has(Start):
		s.worker.Start(func(ctx context.Context) { runDemuxer(ctx, h, s) })
		return s.events.Dispatch(events.TypeMask{Phase: events.OnInit, Category: events.TypeSource}, nil)
	case flags.Has(Stop):
		s.worker.Stop()
		return nil
	case flags.Has(Flush):
		s.out.Drain()
		return nil
	case flags.Has(Opts):
		return applyOpts(s.source, arg)
	case flags.Has(Command):
		return applyCommand(s.source, arg)
	case flags.Has(Commit):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnCommit | events.OnConfig}, nil)
	case flags.Has(Discard):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnDiscard}, nil)
	case flags.Has(Signal):
		phase, _ := arg.(events.Phase)
		s.events.Signal(phase)
		return nil
	}
	return errors.NewUnsupportedError("demuxer.ctrl", nil)
}

func runDemuxer(ctx context.Context, h *class.Handle, s *demuxerState) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, ok, err := s.source.ReadPacket(ctx)
		if err != nil {
			s.events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			return
		}
		if !ok {
			s.out.CloseEOS()
			s.events.Dispatch(events.TypeMask{Phase: events.OnEOS}, nil)
			return
		}
		if pkt.Stream != nil {
			s.detect.Process(pkt.Stream.ID, pkt.Stream.Codec, s, logger.Logger())
		}
		if err := s.out.Push(pkt); err != nil {
			pkt.Release()
		}
	}
}
