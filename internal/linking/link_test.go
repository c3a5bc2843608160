package linking

import (
	"testing"

	"time"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/iosys"
	"github.com/alxayo/txproto-go/internal/media"
)

// fakeCommitContext is the minimal linking.Context a test needs: a single
// root event list plus a ctrl dispatch, the same shape internal/pipeline's
// main context exposes.
type fakeCommitContext struct {
	root *events.List
}

func newFakeCommitContext() *fakeCommitContext {
	h := class.New(nil, "root", class.Context, nil)
	return &fakeCommitContext{root: events.NewList(h)}
}

func (c *fakeCommitContext) RootEvents() *events.List { return c.root }

func (c *fakeCommitContext) Ctrl(h *class.Handle, flags component.Flag, arg any) error {
	return ctrlFor(h, flags, arg)
}

type fakeEncoder struct {
	global bool
}

func (f *fakeEncoder) Encode(fr *media.Frame) (*media.Packet, error) { return nil, nil }
func (f *fakeEncoder) SetGlobalHeader(v bool)                        { f.global = v }
func (f *fakeEncoder) Close() error                                  { return nil }

type fakeMuxSink struct {
	needsGlobal bool
	streams     []*media.Stream
}

func (f *fakeMuxSink) AddStream(s *media.Stream) error { f.streams = append(f.streams, s); return nil }
func (f *fakeMuxSink) WritePacket(p *media.Packet) error { return nil }
func (f *fakeMuxSink) NeedsGlobalHeader() bool           { return f.needsGlobal }
func (f *fakeMuxSink) Close() error                      { return nil }

func newEncoderHandle(t *testing.T, name string) (*class.Handle, *fakeEncoder) {
	t.Helper()
	ops, ok := component.Lookup(class.Encoder)
	if !ok {
		t.Fatalf("expected encoder ops registered")
	}
	enc := &fakeEncoder{}
	h, err := ops.Create(name, nil, enc)
	if err != nil {
		t.Fatalf("create encoder: %v", err)
	}
	return h, enc
}

func newMuxerHandle(t *testing.T, name string, needsGlobal bool) *class.Handle {
	t.Helper()
	ops, ok := component.Lookup(class.Muxer)
	if !ok {
		t.Fatalf("expected muxer ops registered")
	}
	h, err := ops.Create(name, nil, &fakeMuxSink{needsGlobal: needsGlobal})
	if err != nil {
		t.Fatalf("create muxer: %v", err)
	}
	return h
}

// TestRouteKindPairs exercises route's kind-pair table, including the
// UNSUPPORTED_LINK fallback for a pair no row covers.
func TestRouteKindPairs(t *testing.T) {
	enc, _ := newEncoderHandle(t, "enc0")
	mux := newMuxerHandle(t, "mux0", false)

	if _, err := route(enc, mux, Options{}); err != nil {
		t.Fatalf("encoder->muxer: expected a route, got %v", err)
	}

	_, err := route(mux, enc, Options{})
	if err == nil {
		t.Fatalf("muxer->encoder: expected UnsupportedError, got nil")
	}
	if !errors.IsUnsupported(err) {
		t.Fatalf("muxer->encoder: expected UnsupportedError, got %v", err)
	}
}

// TestLinkPostInitStagesAtCommit covers the post-init branch: once src has
// already dispatched ON_INIT, Link must not wire immediately but stage the
// wiring closure as an ON_COMMIT action on the main context's root list.
func TestLinkPostInitStagesAtCommit(t *testing.T) {
	enc, _ := newEncoderHandle(t, "enc0")
	mux := newMuxerHandle(t, "mux0", false)

	if err := component.Ctrl(enc, component.Start, nil); err != nil {
		t.Fatalf("start encoder: %v", err)
	}
	if !component.HasDispatched(enc, events.OnInit) {
		t.Fatalf("expected encoder to have dispatched ON_INIT after Start")
	}

	mc := newFakeCommitContext()
	if err := Link(mc, enc, mux, Options{}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	muxIn, err := component.InputFIFO(mux)
	if err != nil {
		t.Fatalf("InputFIFO: %v", err)
	}
	out, err := encoderOutput(enc)
	if err != nil {
		t.Fatalf("encoderOutput: %v", err)
	}

	// Not wired yet: pushing onto the encoder's own output must not reach
	// the muxer's input until commit runs.
	pkt := media.NewPacket(nil, 0, 0, []byte{1}, true)
	if err := out.Push(pkt); err != nil {
		t.Fatalf("push before commit: %v", err)
	}
	assertNotPopped(t, muxIn, "before Commit")

	if err := mc.root.DispatchAll(events.TypeMask{Phase: events.OnCommit}, nil, false); err != nil {
		t.Fatalf("commit dispatch: %v", err)
	}

	pkt2 := media.NewPacket(nil, 1, 1, []byte{2}, true)
	if err := out.Push(pkt2); err != nil {
		t.Fatalf("push after commit: %v", err)
	}
	assertPopped(t, muxIn, pkt2, "after Commit")
}

func assertPopped(t *testing.T, f *fifo.Packet, want *media.Packet, when string) {
	t.Helper()
	select {
	case <-popped(f):
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected packet to arrive at muxer input %s, got nothing", when)
	}
}

func popped(f *fifo.Packet) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		if p, ok, err := f.Pop(); err == nil && ok && p != nil {
			close(done)
		}
	}()
	return done
}

func assertNotPopped(t *testing.T, f *fifo.Packet, when string) {
	t.Helper()
	f.SetPullNoBlock(true)
	defer f.SetPullNoBlock(false)
	if p, ok, err := f.Pop(); err == nil && ok && p != nil {
		t.Fatalf("expected no packet at muxer input %s, but got one", when)
	}
}

// TestLinkPreInitParksUntilSourceSignalsInit covers the pre-init branch:
// when src has not yet dispatched ON_INIT, the wiring is parked as a
// FlagDependency ON_CONFIG event on dst and must not run until src reaches
// ON_INIT (which signals dst) and dst's own Commit dispatches ON_CONFIG.
func TestLinkPreInitParksUntilSourceSignalsInit(t *testing.T) {
	enc, _ := newEncoderHandle(t, "enc0")
	mux := newMuxerHandle(t, "mux0", false)

	mc := newFakeCommitContext()
	if err := Link(mc, enc, mux, Options{}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	muxIn, err := component.InputFIFO(mux)
	if err != nil {
		t.Fatalf("InputFIFO: %v", err)
	}
	out, err := encoderOutput(enc)
	if err != nil {
		t.Fatalf("encoderOutput: %v", err)
	}

	// dst's Commit alone must not run the dependency event yet: src never
	// reached ON_INIT, so the event is still parked.
	if err := component.Ctrl(mux, component.Commit, nil); err != nil {
		t.Fatalf("muxer commit (pre-signal): %v", err)
	}
	pkt := media.NewPacket(nil, 0, 0, []byte{1}, true)
	if err := out.Push(pkt); err != nil {
		t.Fatalf("push before any commit: %v", err)
	}
	assertNotPopped(t, muxIn, "before source ON_INIT")

	// src reaching ON_INIT signals dst, clearing the dependency flag, but
	// dst hasn't re-dispatched ON_CONFIG yet so the wiring still hasn't run.
	if err := component.Ctrl(enc, component.Start, nil); err != nil {
		t.Fatalf("start encoder: %v", err)
	}
	pkt2 := media.NewPacket(nil, 1, 1, []byte{2}, true)
	if err := out.Push(pkt2); err != nil {
		t.Fatalf("push after signal, before commit: %v", err)
	}
	assertNotPopped(t, muxIn, "after source ON_INIT but before dst's next Commit")

	if err := component.Ctrl(mux, component.Commit, nil); err != nil {
		t.Fatalf("muxer commit (post-signal): %v", err)
	}
	pkt3 := media.NewPacket(nil, 2, 2, []byte{3}, true)
	if err := out.Push(pkt3); err != nil {
		t.Fatalf("push after commit: %v", err)
	}
	assertPopped(t, muxIn, pkt3, "after dst's post-signal Commit")
}

// TestLinkRegistersEncoderStreamWithMuxer covers the add-stream half of
// the encoder→muxer wiring: once the link closure runs, the muxer's sink
// must know the encoder's stream descriptor.
func TestLinkRegistersEncoderStreamWithMuxer(t *testing.T) {
	enc, _ := newEncoderHandle(t, "enc0")

	ops, ok := component.Lookup(class.Muxer)
	if !ok {
		t.Fatalf("expected muxer ops registered")
	}
	sink := &fakeMuxSink{}
	mux, err := ops.Create("mux0", nil, sink)
	if err != nil {
		t.Fatalf("create muxer: %v", err)
	}

	if err := component.Ctrl(enc, component.Start, nil); err != nil {
		t.Fatalf("start encoder: %v", err)
	}
	mc := newFakeCommitContext()
	if err := Link(mc, enc, mux, Options{}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(sink.streams) != 0 {
		t.Fatalf("expected no stream registered before commit")
	}

	if err := mc.root.DispatchAll(events.TypeMask{Phase: events.OnCommit}, nil, false); err != nil {
		t.Fatalf("commit dispatch: %v", err)
	}
	if len(sink.streams) != 1 {
		t.Fatalf("expected one registered stream after commit, got %d", len(sink.streams))
	}
	if sink.streams[0].Codec != "enc0" {
		t.Fatalf("expected the encoder's synthesized stream descriptor, got %q", sink.streams[0].Codec)
	}
}


// TestLinkDecoderToInterfaceEntry covers the decoder→interface column:
// the destination is an I/O entry whose Output queue receives a clone of
// every frame the decoder produces.
func TestLinkDecoderToInterfaceEntry(t *testing.T) {
	decOps, ok := component.Lookup(class.Decoder)
	if !ok {
		t.Fatalf("expected decoder ops registered")
	}
	decH, err := decOps.Create("vp9", nil, passthroughDecoder{})
	if err != nil {
		t.Fatalf("create decoder: %v", err)
	}

	ifaceH, entry := iosys.NewEntry("ui", "preview0", class.Interface, nil)
	entry.Output = fifo.New[*media.Frame](4)

	if err := component.Ctrl(decH, component.Start, nil); err != nil {
		t.Fatalf("start decoder: %v", err)
	}
	mc := newFakeCommitContext()
	if err := Link(mc, decH, ifaceH, Options{}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := mc.root.DispatchAll(events.TypeMask{Phase: events.OnCommit}, nil, false); err != nil {
		t.Fatalf("commit dispatch: %v", err)
	}

	out, err := decoderOutput(decH)
	if err != nil {
		t.Fatalf("decoderOutput: %v", err)
	}
	if err := out.Push(media.NewFrame(&media.Stream{ID: 0}, 7, []byte{1})); err != nil {
		t.Fatalf("push: %v", err)
	}

	f, ok, err := entry.Output.Pop()
	if err != nil || !ok || f.PTS != 7 {
		t.Fatalf("expected the interface entry to receive the frame, f=%v ok=%v err=%v", f, ok, err)
	}
}

type passthroughDecoder struct{}

func (passthroughDecoder) Decode(pkt *media.Packet) (*media.Frame, error) { return nil, nil }
func (passthroughDecoder) Close() error                                   { return nil }
