package media

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestPacketCloneIsIndependentBuffer(t *testing.T) {
	s := &Stream{ID: 1, Codec: "h264"}
	p := NewPacket(s, 1, 1, []byte{1, 2, 3}, true)
	clone := p.Clone()

	if !bytes.Equal(clone.Data, p.Data) {
		t.Fatalf("expected clone data to match: %v vs %v", clone.Data, p.Data)
	}
	clone.Data[0] = 9
	if p.Data[0] == 9 {
		t.Fatalf("expected clone to own an independent buffer")
	}
	p.Release()
	if p.Data != nil {
		t.Fatalf("expected Release to clear Data")
	}
}

func TestFrameCloneIsIndependentBuffer(t *testing.T) {
	s := &Stream{ID: 2, Codec: "aac"}
	f := NewFrame(s, 5, []byte{4, 5, 6})
	clone := f.Clone()
	clone.Data[0] = 0
	if f.Data[0] == 0 {
		t.Fatalf("expected frame clone to own independent buffer")
	}
}

type fakeStore struct {
	codecs map[int]string
}

func (s *fakeStore) SetCodec(id int, codec string) { s.codecs[id] = codec }
func (s *fakeStore) GetCodec(id int) string        { return s.codecs[id] }
func (s *fakeStore) Name() string                  { return "demux0" }

func TestCodecDetectorFiresOnlyOnce(t *testing.T) {
	store := &fakeStore{codecs: map[int]string{}}
	d := &CodecDetector{}
	logger := slog.Default()

	d.Process(0, "h264", store, logger)
	if store.GetCodec(0) != "h264" {
		t.Fatalf("expected codec recorded")
	}

	d.Process(0, "hevc", store, logger)
	if store.GetCodec(0) != "h264" {
		t.Fatalf("expected codec detection to be one-shot, got %s", store.GetCodec(0))
	}
}

func TestCodecDetectorIgnoresNilInputs(t *testing.T) {
	d := &CodecDetector{}
	d.Process(0, "h264", nil, slog.Default())
	d.Process(0, "h264", &fakeStore{codecs: map[int]string{}}, nil)
}
