package txproto_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	txproto "github.com/alxayo/txproto-go"
	"github.com/alxayo/txproto-go/internal/config"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/media"
	"github.com/alxayo/txproto-go/internal/optval"
	"github.com/alxayo/txproto-go/internal/packetsink"
)

// gatedSource is a DemuxSource whose ReadPacket blocks until the test
// opens the gate, so a pipeline can be fully linked and committed before
// the first packet moves.
type gatedSource struct {
	gate    chan struct{}
	streams []*media.Stream
	pkts    []*media.Packet
	idx     int
}

func (g *gatedSource) ReadPacket(ctx context.Context) (*media.Packet, bool, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if g.idx >= len(g.pkts) {
		return nil, false, nil
	}
	p := g.pkts[g.idx]
	g.idx++
	return p, true, nil
}
func (g *gatedSource) Streams() []*media.Stream { return g.streams }
func (g *gatedSource) Close() error             { return nil }

type countingDecoder struct {
	mu      sync.Mutex
	decoded int
}

func (d *countingDecoder) Decode(pkt *media.Packet) (*media.Frame, error) {
	d.mu.Lock()
	d.decoded++
	d.mu.Unlock()
	buf := make([]byte, len(pkt.Data))
	copy(buf, pkt.Data)
	return &media.Frame{Stream: pkt.Stream, PTS: pkt.PTS, Data: buf}, nil
}
func (d *countingDecoder) Close() error { return nil }

type countingEncoder struct {
	mu      sync.Mutex
	encoded int
	global  bool
	opts    []optval.Dict
}

func (e *countingEncoder) ApplyOpts(d optval.Dict) error {
	e.mu.Lock()
	e.opts = append(e.opts, d)
	e.mu.Unlock()
	return nil
}

func (e *countingEncoder) Encode(f *media.Frame) (*media.Packet, error) {
	e.mu.Lock()
	e.encoded++
	e.mu.Unlock()
	buf := make([]byte, len(f.Data))
	copy(buf, f.Data)
	return &media.Packet{Stream: f.Stream, PTS: f.PTS, DTS: f.PTS, Data: buf, KeyFrame: true}, nil
}
func (e *countingEncoder) SetGlobalHeader(v bool) { e.global = v }
func (e *countingEncoder) Close() error           { return nil }

type recordingSink struct {
	mu           sync.Mutex
	streams      []*media.Stream
	bytesWritten int
	packets      int
	needsGlobal  bool
}

func (s *recordingSink) AddStream(st *media.Stream) error {
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()
	return nil
}
func (s *recordingSink) WritePacket(p *media.Packet) error {
	s.mu.Lock()
	s.bytesWritten += len(p.Data)
	s.packets++
	s.mu.Unlock()
	return nil
}
func (s *recordingSink) NeedsGlobalHeader() bool { return s.needsGlobal }
func (s *recordingSink) Close() error            { return nil }

// TestDemuxDecodeEncodeMuxEndToEnd drives the whole public surface the
// way a client session would: build four components, link them in
// pipeline order with autostart, commit, then open the source gate and
// wait for end-of-stream to reach the muxer.
func TestDemuxDecodeEncodeMuxEndToEnd(t *testing.T) {
	stream := &media.Stream{ID: 0, Codec: "vp9"}
	src := &gatedSource{
		gate:    make(chan struct{}),
		streams: []*media.Stream{stream},
		pkts: []*media.Packet{
			{Stream: stream, PTS: 0, Data: []byte{1, 2}, KeyFrame: true},
			{Stream: stream, PTS: 1, Data: []byte{3, 4}},
			{Stream: stream, PTS: 2, Data: []byte{5, 6}},
			{Stream: stream, PTS: 3, Data: []byte{7, 8}},
		},
	}
	dec := &countingDecoder{}
	enc := &countingEncoder{}
	sink := &recordingSink{needsGlobal: true}

	mc := txproto.New(config.Config{})
	defer txproto.Free(mc)

	dmxH, err := txproto.DemuxerCreate(mc, "", "test.webm", src, nil)
	if err != nil {
		t.Fatalf("DemuxerCreate: %v", err)
	}
	if dmxH.Name() != "test.webm" {
		t.Fatalf("expected unnamed demuxer to take its url as name, got %q", dmxH.Name())
	}
	decH, err := txproto.DecoderCreate(mc, "vp9", dec, nil)
	if err != nil {
		t.Fatalf("DecoderCreate: %v", err)
	}
	encH, err := txproto.EncoderCreate(mc, txproto.EncoderParams{
		CodecName: "libx264",
		CodecOpts: optval.Dict{"b": optval.String("10M")},
	}, enc)
	if err != nil {
		t.Fatalf("EncoderCreate: %v", err)
	}
	muxH, err := txproto.MuxerCreate(mc, "out.mkv", sink, nil, nil)
	if err != nil {
		t.Fatalf("MuxerCreate: %v", err)
	}

	for _, pair := range [][2]*txproto.Handle{{dmxH, decH}, {decH, encH}, {encH, muxH}} {
		if err := txproto.Link(mc, pair[0], pair[1], txproto.LinkOptions{Autostart: true}); err != nil {
			t.Fatalf("Link %s -> %s: %v", pair[0].Name(), pair[1].Name(), err)
		}
	}

	eosCount := 0
	eos := make(chan struct{})
	ev := events.New(
		events.TypeMask{Phase: events.OnEOS, Flags: events.FlagOneshot},
		func(ev *events.Event, state any, ctx, dep *txproto.Handle, data any) error {
			eosCount++
			close(eos)
			return nil
		},
		nil, nil,
	)
	if err := txproto.EventRegister(mc, muxH, ev); err != nil {
		t.Fatalf("EventRegister: %v", err)
	}

	if err := txproto.CommitAll(mc); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if !enc.global {
		t.Fatalf("expected the muxer's global-header demand to reach the encoder at commit")
	}
	if len(sink.streams) != 1 {
		t.Fatalf("expected one stream registered with the sink, got %d", len(sink.streams))
	}

	close(src.gate)

	select {
	case <-eos:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected ON_EOS on the muxer after the source drained")
	}

	if eosCount != 1 {
		t.Fatalf("expected exactly one ON_EOS dispatch, got %d", eosCount)
	}
	dec.mu.Lock()
	decoded := dec.decoded
	dec.mu.Unlock()
	enc.mu.Lock()
	encoded := enc.encoded
	enc.mu.Unlock()
	sink.mu.Lock()
	written, packets := sink.bytesWritten, sink.packets
	sink.mu.Unlock()

	if decoded != 4 || encoded != 4 || packets != 4 {
		t.Fatalf("expected all 4 packets through the pipeline, got decode=%d encode=%d mux=%d",
			decoded, encoded, packets)
	}
	if written < 1 {
		t.Fatalf("expected the muxer sink to write at least one byte, wrote %d", written)
	}
}

// TestStagedOptsVanishOnDiscard covers the rollback half of the staging
// protocol: a staged-but-never-committed OPTS change must vanish on
// Discard and stay gone through a later Commit.
func TestStagedOptsVanishOnDiscard(t *testing.T) {
	enc := &countingEncoder{}
	mc := txproto.New(config.Config{})
	defer txproto.Free(mc)

	encH, err := txproto.EncoderCreate(mc, txproto.EncoderParams{CodecName: "libx264"}, enc)
	if err != nil {
		t.Fatalf("EncoderCreate: %v", err)
	}

	applied := optval.Dict{"b": optval.String("20M")}
	if err := txproto.Ctrl(mc, encH, txproto.Opts, applied); err != nil {
		t.Fatalf("Ctrl opts: %v", err)
	}
	if err := txproto.DiscardAll(mc); err != nil {
		t.Fatalf("DiscardAll: %v", err)
	}
	// The encoder collaborator never saw the staged dictionary, and a
	// later commit pass must not apply it either.
	if err := txproto.CommitAll(mc); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if len(enc.opts) != 0 {
		t.Fatalf("expected the discarded opts never to reach the collaborator, got %d applications", len(enc.opts))
	}
}

func TestEpochModesThroughPublicAPI(t *testing.T) {
	mc := txproto.New(config.Config{})
	defer txproto.Free(mc)

	txproto.EpochSetOffset(mc, 0)
	a := mc.Epoch.Now()
	b := mc.Epoch.Now()
	if b < a {
		t.Fatalf("epoch reads went backwards: %d then %d", a, b)
	}

	txproto.EpochSetSystem(mc)
	sys := mc.Epoch.Now()
	if sys < time.Now().Add(-time.Hour).UnixNano() {
		t.Fatalf("system epoch implausibly old: %d", sys)
	}
}

// h264Encoder is a countingEncoder that also exposes its own stream
// descriptor, the way a real codec wrapper would surface SPS/PPS
// extradata.
type h264Encoder struct {
	countingEncoder
	stream *media.Stream
}

func (e *h264Encoder) Stream() *media.Stream { return e.stream }

// Encode marks only the frame with PTS 0 as a keyframe, matching the one
// key packet the gated source feeds in.
func (e *h264Encoder) Encode(f *media.Frame) (*media.Packet, error) {
	p, err := e.countingEncoder.Encode(f)
	if p != nil {
		p.KeyFrame = f.PTS == 0
	}
	return p, err
}

// TestPacketSinkWireRoundTrip feeds an encoder into a packet-sink-backed
// muxer over an in-process loopback and checks the wire stream: codec
// header, one config packet carrying the encoder's extradata, then media
// packets whose PTS and KEY bit follow the encoder's output.
func TestPacketSinkWireRoundTrip(t *testing.T) {
	extradata := []byte{0x67, 0x42, 0x00, 0x1f}
	stream := &media.Stream{ID: 0, Codec: "h264", Extradata: extradata}
	src := &gatedSource{
		gate:    make(chan struct{}),
		streams: []*media.Stream{stream},
		pkts: []*media.Packet{
			{Stream: stream, PTS: 0, Data: []byte{0xaa}, KeyFrame: true},
			{Stream: stream, PTS: 33, Data: []byte{0xbb}},
			{Stream: stream, PTS: 66, Data: []byte{0xcc}},
		},
	}
	dec := &countingDecoder{}
	enc := &h264Encoder{stream: stream}

	client, server := net.Pipe()
	sink := packetsink.NewSink(client, 1)

	type wireRecord struct {
		isConfig bool
		config   []byte
		pts      int64
		key      bool
	}
	var (
		recMu   sync.Mutex
		header  packetsink.Header
		records []wireRecord
	)
	readerDone := make(chan error, 1)
	go func() {
		r := packetsink.NewReader(server)
		h, err := r.ReadHeader()
		if err != nil {
			readerDone <- err
			return
		}
		recMu.Lock()
		header = h
		recMu.Unlock()
		for {
			pkt, err := r.Next()
			if err == io.EOF {
				readerDone <- nil
				return
			}
			if err != nil {
				readerDone <- err
				return
			}
			recMu.Lock()
			if pkt.IsConfig {
				records = append(records, wireRecord{isConfig: true, config: pkt.Config.Extradata})
			} else {
				records = append(records, wireRecord{pts: pkt.Media.PTS, key: pkt.Media.Key})
			}
			recMu.Unlock()
		}
	}()

	mc := txproto.New(config.Config{})
	defer txproto.Free(mc)

	dmxH, err := txproto.DemuxerCreate(mc, "demux0", "test.webm", src, nil)
	if err != nil {
		t.Fatalf("DemuxerCreate: %v", err)
	}
	decH, err := txproto.DecoderCreate(mc, "h264", dec, nil)
	if err != nil {
		t.Fatalf("DecoderCreate: %v", err)
	}
	encH, err := txproto.EncoderCreate(mc, txproto.EncoderParams{CodecName: "h264"}, enc)
	if err != nil {
		t.Fatalf("EncoderCreate: %v", err)
	}
	muxH, err := txproto.MuxerCreate(mc, "kymux://localhost:0/0001", sink, nil, nil)
	if err != nil {
		t.Fatalf("MuxerCreate: %v", err)
	}

	for _, pair := range [][2]*txproto.Handle{{dmxH, decH}, {decH, encH}, {encH, muxH}} {
		if err := txproto.Link(mc, pair[0], pair[1], txproto.LinkOptions{Autostart: true}); err != nil {
			t.Fatalf("Link: %v", err)
		}
	}

	eos := make(chan struct{})
	ev := events.New(
		events.TypeMask{Phase: events.OnEOS, Flags: events.FlagOneshot},
		func(ev *events.Event, state any, ctx, dep *txproto.Handle, data any) error {
			close(eos)
			return nil
		},
		nil, nil,
	)
	if err := txproto.EventRegister(mc, muxH, ev); err != nil {
		t.Fatalf("EventRegister: %v", err)
	}
	if err := txproto.CommitAll(mc); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}

	close(src.gate)
	select {
	case <-eos:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected ON_EOS on the packet-sink muxer")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("sink close: %v", err)
	}
	select {
	case err := <-readerDone:
		if err != nil {
			t.Fatalf("wire reader: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the wire reader to finish after sink close")
	}

	recMu.Lock()
	defer recMu.Unlock()
	if header.FourCC != packetsink.FourCCH264 {
		t.Fatalf("expected h264 codec header, got %#x", header.FourCC)
	}
	if header.Rotation != 1 {
		t.Fatalf("expected rotation 1, got %d", header.Rotation)
	}
	if len(records) != 4 {
		t.Fatalf("expected 1 config + 3 media records, got %d", len(records))
	}
	if !records[0].isConfig || !bytes.Equal(records[0].config, extradata) {
		t.Fatalf("expected first record to be a config packet carrying the encoder extradata")
	}
	wantPTS := []int64{0, 33, 66}
	wantKey := []bool{true, false, false}
	for i, rec := range records[1:] {
		if rec.isConfig {
			t.Fatalf("unexpected extra config record at %d", i+1)
		}
		if rec.pts != wantPTS[i] || rec.key != wantKey[i] {
			t.Fatalf("media record %d: pts=%d key=%v, want pts=%d key=%v",
				i+1, rec.pts, rec.key, wantPTS[i], wantKey[i])
		}
	}
}

// passthroughFilter forwards every frame on its default pad, copying the
// payload the way a real filter would produce a fresh output frame.
type passthroughFilter struct {
	mu        sync.Mutex
	processed int
}

func (p *passthroughFilter) Process(pad string, f *media.Frame) (map[string]*media.Frame, error) {
	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	buf := make([]byte, len(f.Data))
	copy(buf, f.Data)
	return map[string]*media.Frame{"default": {Stream: f.Stream, PTS: f.PTS, Data: buf}}, nil
}
func (p *passthroughFilter) Close() error { return nil }

// TestFilterChainEndToEnd routes decoder output through two sequential
// filter graphs before the encoder, covering the pad-mapping link shapes
// (upstream→pad, pad→pad, pad→encoder).
func TestFilterChainEndToEnd(t *testing.T) {
	stream := &media.Stream{ID: 0, Codec: "vp9"}
	src := &gatedSource{
		gate:    make(chan struct{}),
		streams: []*media.Stream{stream},
		pkts: []*media.Packet{
			{Stream: stream, PTS: 0, Data: []byte{1}, KeyFrame: true},
			{Stream: stream, PTS: 1, Data: []byte{2}},
			{Stream: stream, PTS: 2, Data: []byte{3}},
		},
	}
	dec := &countingDecoder{}
	f1 := &passthroughFilter{}
	f2 := &passthroughFilter{}
	enc := &countingEncoder{}
	sink := &recordingSink{}

	mc := txproto.New(config.Config{})
	defer txproto.Free(mc)

	dmxH, err := txproto.DemuxerCreate(mc, "demux0", "test.webm", src, nil)
	if err != nil {
		t.Fatalf("DemuxerCreate: %v", err)
	}
	decH, err := txproto.DecoderCreate(mc, "vp9", dec, nil)
	if err != nil {
		t.Fatalf("DecoderCreate: %v", err)
	}
	f1H, err := txproto.FiltergraphCreate(mc, "transpose=0", "", f1, nil)
	if err != nil {
		t.Fatalf("FiltergraphCreate 1: %v", err)
	}
	f2H, err := txproto.FiltergraphCreate(mc, "negate", "", f2, nil)
	if err != nil {
		t.Fatalf("FiltergraphCreate 2: %v", err)
	}
	encH, err := txproto.EncoderCreate(mc, txproto.EncoderParams{CodecName: "libx264"}, enc)
	if err != nil {
		t.Fatalf("EncoderCreate: %v", err)
	}
	muxH, err := txproto.MuxerCreate(mc, "out.mkv", sink, nil, nil)
	if err != nil {
		t.Fatalf("MuxerCreate: %v", err)
	}

	pairs := [][2]*txproto.Handle{{dmxH, decH}, {decH, f1H}, {f1H, f2H}, {f2H, encH}, {encH, muxH}}
	for _, pair := range pairs {
		if err := txproto.Link(mc, pair[0], pair[1], txproto.LinkOptions{Autostart: true}); err != nil {
			t.Fatalf("Link %s -> %s: %v", pair[0].Name(), pair[1].Name(), err)
		}
	}

	eos := make(chan struct{})
	ev := events.New(
		events.TypeMask{Phase: events.OnEOS, Flags: events.FlagOneshot},
		func(ev *events.Event, state any, ctx, dep *txproto.Handle, data any) error {
			close(eos)
			return nil
		},
		nil, nil,
	)
	if err := txproto.EventRegister(mc, muxH, ev); err != nil {
		t.Fatalf("EventRegister: %v", err)
	}
	if err := txproto.CommitAll(mc); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}

	close(src.gate)
	select {
	case <-eos:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected ON_EOS through the two-filter chain")
	}

	f1.mu.Lock()
	p1 := f1.processed
	f1.mu.Unlock()
	f2.mu.Lock()
	p2 := f2.processed
	f2.mu.Unlock()
	sink.mu.Lock()
	packets := sink.packets
	sink.mu.Unlock()
	if p1 != 3 || p2 != 3 || packets != 3 {
		t.Fatalf("expected all 3 frames through both filters to the sink, got f1=%d f2=%d mux=%d", p1, p2, packets)
	}
}
