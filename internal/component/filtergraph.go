package component

import (
	"context"
	"sync"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/media"
)

const defaultFilterPad = "default"

// FrameFilter is the opaque external collaborator running the actual
// filter chain (scale/overlay/mix/etc), a stand-in for the excluded
// filtering library. Process is called once per input pad with whatever
// frame arrived and returns zero or more output frames keyed by output
// pad name.
type FrameFilter interface {
	Process(pad string, f *media.Frame) (map[string]*media.Frame, error)
	Close() error
}

type filtergraphState struct {
	name    string
	graph   FrameFilter
	padsMu  sync.Mutex
	inputs  map[string]*fifo.Frame
	outputs map[string]*fifo.Frame
	events  *events.List
	workers map[string]*Worker
	running bool
}

// ensureWorkerLocked spawns the processing goroutine for pad if the graph
// is running and none exists yet, so pads created by a link that
// settles after CTRL_START still get their worker. Caller must hold
// padsMu.
func (s *filtergraphState) ensureWorkerLocked(pad string) {
	if !s.running {
		return
	}
	if _, ok := s.workers[pad]; ok {
		return
	}
	w := &Worker{}
	s.workers[pad] = w
	w.Start(func(ctx context.Context) { runFiltergraphPad(ctx, s, pad) })
}

func (s *filtergraphState) stopWorkers() {
	s.padsMu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	ins := make([]*fifo.Frame, 0, len(s.inputs))
	for _, in := range s.inputs {
		ins = append(ins, in)
	}
	s.running = false
	s.padsMu.Unlock()

	// Wake any pad worker parked in a blocking Pop so cancellation is
	// observed.
	for _, in := range ins {
		in.SetPullNoBlock(true)
	}
	for _, w := range workers {
		w.Stop()
	}
	for _, in := range ins {
		in.SetPullNoBlock(false)
	}

	s.padsMu.Lock()
	s.workers = map[string]*Worker{}
	s.padsMu.Unlock()
}

func (s *filtergraphState) Destroy() {
	s.stopWorkers()
	if s.graph != nil {
		_ = s.graph.Close()
	}
	for _, out := range s.outputs {
		out.CloseEOS()
		out.Drain()
	}
}

func init() {
	Register(class.Filter, &Ops{
		Create: createFiltergraph,
		FIFOsIn: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*filtergraphState](h)
			if !ok {
				return nil
			}
			s.padsMu.Lock()
			defer s.padsMu.Unlock()
			out := make([]fifo.Generic, 0, len(s.inputs))
			for _, in := range s.inputs {
				out = append(out, in)
			}
			return out
		},
		FIFOsOut: func(h *class.Handle) []fifo.Generic {
			s, ok := class.As[*filtergraphState](h)
			if !ok {
				return nil
			}
			s.padsMu.Lock()
			defer s.padsMu.Unlock()
			out := make([]fifo.Generic, 0, len(s.outputs))
			for _, o := range s.outputs {
				out = append(out, o)
			}
			return out
		},
		Ctrl: ctrlFiltergraph,
		Events: func(h *class.Handle) *events.List {
			s, ok := class.As[*filtergraphState](h)
			if !ok {
				return nil
			}
			return s.events
		},
	})
}

func createFiltergraph(name string, parent *class.Handle, cfg any) (*class.Handle, error) {
	graph, ok := cfg.(FrameFilter)
	if !ok || graph == nil {
		return nil, errors.NewInvalidArgError("filtergraph.create", nil)
	}
	state := &filtergraphState{
		name:    name,
		graph:   graph,
		inputs:  map[string]*fifo.Frame{},
		outputs: map[string]*fifo.Frame{},
		workers: map[string]*Worker{},
	}
	h := class.New(state, name, class.Filter, parent)
	state.events = events.NewList(h)
	return h, nil
}

func padName(pad *string) string {
	if pad == nil || *pad == "" {
		return defaultFilterPad
	}
	return *pad
}

// inputPad returns (creating if needed) the filtergraph's input FIFO for
// pad.
func inputPad(s *filtergraphState, pad string) *fifo.Frame {
	s.padsMu.Lock()
	defer s.padsMu.Unlock()
	f, ok := s.inputs[pad]
	if !ok {
		f = fifo.New[*media.Frame](fifo.Unbounded)
		s.inputs[pad] = f
		s.ensureWorkerLocked(pad)
	}
	return f
}

// outputPad returns (creating if needed) the filtergraph's output FIFO for
// pad.
func outputPad(s *filtergraphState, pad string) *fifo.Frame {
	s.padsMu.Lock()
	defer s.padsMu.Unlock()
	f, ok := s.outputs[pad]
	if !ok {
		f = newOutputQueue[*media.Frame]()
		s.outputs[pad] = f
	}
	return f
}

// MapFIFOToPad wires external either as the source feeding h's input pad
// (out=false: upstream → filter) or as a mirror destination of h's
// output pad (out=true: filter → downstream).
func MapFIFOToPad(h *class.Handle, pad *string, external *fifo.Frame, out bool) error {
	s, ok := class.As[*filtergraphState](h)
	if !ok {
		return errors.NewInvalidArgError("filtergraph.map_fifo_to_pad", nil)
	}
	name := padName(pad)
	if out {
		outputPad(s, name).Mirror(external)
		return nil
	}
	external.Mirror(inputPad(s, name))
	return nil
}

// MapPadToPad wires src's output pad to dst's input pad.
func MapPadToPad(dst *class.Handle, dstPad *string, src *class.Handle, srcPad *string) error {
	dstState, ok := class.As[*filtergraphState](dst)
	if !ok {
		return errors.NewInvalidArgError("filtergraph.map_pad_to_pad", nil)
	}
	srcState, ok := class.As[*filtergraphState](src)
	if !ok {
		return errors.NewInvalidArgError("filtergraph.map_pad_to_pad", nil)
	}
	srcOut := outputPad(srcState, padName(srcPad))
	dstIn := inputPad(dstState, padName(dstPad))
	srcOut.Mirror(dstIn)
	return nil
}

func ctrlFiltergraph(h *class.Handle, flags Flag, arg any) error {
	s, ok := class.As[*filtergraphState](h)
	if !ok {
		return errors.NewInvalidArgError("filtergraph.ctrl", nil)
	}
	switch {
	case flags.Has(NewEvent):
		ev, ok := arg.(*events.Event)
		if !ok {
			return errors.NewInvalidArgError("filtergraph.ctrl.new_event", nil)
		}
		return s.events.Add(ev)
	case flags.Has(Start):
		s.padsMu.Lock()
		s.running = true
		for p := range s.inputs {
			s.ensureWorkerLocked(p)
		}
		s.padsMu.Unlock()
		return s.events.Dispatch(events.TypeMask{Phase: events.OnInit}, nil)
	case flags.Has(Stop):
		s.stopWorkers()
		return nil
	case flags.Has(Flush):
		s.padsMu.Lock()
		outs := make([]*fifo.Frame, 0, len(s.outputs))
		for _, o := range s.outputs {
			outs = append(outs, o)
		}
		s.padsMu.Unlock()
		for _, o := range outs {
			o.Drain()
		}
		return nil
	case flags.Has(Opts):
		return applyOpts(s.graph, arg)
	case flags.Has(Command):
		return applyCommand(s.graph, arg)
	case flags.Has(Commit):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnCommit | events.OnConfig}, nil)
	case flags.Has(Discard):
		return s.events.Dispatch(events.TypeMask{Phase: events.OnDiscard}, nil)
	case flags.Has(Signal):
		phase, _ := arg.(events.Phase)
		s.events.Signal(phase)
		return nil
	}
	return errors.NewUnsupportedError("filtergraph.ctrl", nil)
}

func runFiltergraphPad(ctx context.Context, s *filtergraphState, pad string) {
	in := inputPad(s, pad)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		f, ok, err := in.Pop()
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
			// Input ended: propagate end-of-stream through every output
			// pad so downstream consumers unblock.
			s.padsMu.Lock()
			outs := make([]*fifo.Frame, 0, len(s.outputs))
			for _, o := range s.outputs {
				outs = append(outs, o)
			}
			s.padsMu.Unlock()
			for _, o := range outs {
				o.CloseEOS()
			}
			s.events.Dispatch(events.TypeMask{Phase: events.OnEOS}, nil)
			return
		}
		outputs, err := s.graph.Process(pad, f)
		f.Release()
		if err != nil {
			s.events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			continue
		}
		for outPad, outFrame := range outputs {
			dst := outputPad(s, outPad)
			if err := dst.Push(outFrame); err != nil {
				outFrame.Release()
			}
		}
	}
}
