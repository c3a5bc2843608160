package optval

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Nil(),
		Bool(true),
		Bool(false),
		Number(3.5),
		String("libx264"),
		FromList(List{Number(1), String("a"), Bool(true)}),
		FromDict(Dict{"b": String("10M"), "a": Number(1)}),
	}
	for _, v := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, v); err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Kind() != v.Kind() {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind(), v.Kind())
		}
	}
}

func TestDictRoundTripValues(t *testing.T) {
	d := Dict{"sdp_file": String("/tmp/x.sdp"), "low_latency": Bool(true)}
	var buf bytes.Buffer
	if err := Encode(&buf, FromDict(d)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gd, ok := got.AsDict()
	if !ok {
		t.Fatalf("expected dict")
	}
	if s, _ := gd["sdp_file"].AsString(); s != "/tmp/x.sdp" {
		t.Fatalf("sdp_file = %q", s)
	}
	if b, _ := gd["low_latency"].AsBool(); !b {
		t.Fatalf("low_latency = false, want true")
	}
}

func TestMergeOverlayWins(t *testing.T) {
	base := Dict{"a": Number(1), "b": Number(2)}
	overlay := Dict{"b": Number(99), "c": Number(3)}
	merged := Merge(base, overlay)
	if n, _ := merged["a"].AsNumber(); n != 1 {
		t.Fatalf("a = %v", n)
	}
	if n, _ := merged["b"].AsNumber(); n != 99 {
		t.Fatalf("b = %v, want overlay to win", n)
	}
	if n, _ := merged["c"].AsNumber(); n != 3 {
		t.Fatalf("c = %v", n)
	}
	if _, ok := base["c"]; ok {
		t.Fatalf("Merge must not mutate base")
	}
}

func TestParseFIFOFlags(t *testing.T) {
	flags, pullNoBlock, err := ParseFIFOFlags("block_no_input,block_max_output")
	if err != nil {
		t.Fatalf("ParseFIFOFlags: %v", err)
	}
	if pullNoBlock {
		t.Fatalf("pullNoBlock should be false")
	}
	if flags == 0 {
		t.Fatalf("expected non-zero flags")
	}

	_, _, err = ParseFIFOFlags("pull_no_block")
	if err != nil {
		t.Fatalf("ParseFIFOFlags(pull_no_block): %v", err)
	}

	if _, _, err := ParseFIFOFlags("bogus_flag"); err == nil {
		t.Fatalf("expected error for unknown flag token")
	}
}
