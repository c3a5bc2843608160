// Package optval implements the option-dictionary value type used by
// init_opts/OPTS/mux_opts/codec_opts throughout the runtime: a tagged
// value (Dict/List/Number/String/Bool/Nil) with an AMF0-style wire form
// so option blobs can still be serialized across a process boundary
// (e.g. staged into a commit event's opaque data) when a caller needs
// that.
package optval

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/alxayo/txproto-go/internal/errors"
)

// Kind is the closed tag for a Value, mirroring the AMF0 marker set this
// package's wire encoding reuses.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindDict
	KindList
)

// Value is the option-dictionary value type: one of Nil, Bool, Number,
// String, Dict (nested map[string]Value), or List ([]Value).
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	dict Dict
	list List
}

// Dict is a named option bag (init_opts, mux_opts, codec_opts, …). Keys
// not recognized by a given component are forwarded unchanged to the
// opaque external collaborator.
type Dict map[string]Value

// List is an ordered sequence of values, the Value-level equivalent of
// amf.EncodeStrictArray/DecodeStrictArray.
type List []Value

func Nil() Value                { return Value{kind: KindNil} }
func Bool(v bool) Value         { return Value{kind: KindBool, b: v} }
func Number(v float64) Value    { return Value{kind: KindNumber, n: v} }
func String(v string) Value     { return Value{kind: KindString, s: v} }
func FromDict(d Dict) Value     { return Value{kind: KindDict, dict: d} }
func FromList(l List) Value     { return Value{kind: KindList, list: l} }

func (v Value) Kind() Kind { return v.kind }

// AsBool, AsNumber, AsString, AsDict, AsList each return the stored value
// and whether the tag matched; callers that know the expected shape use
// the two-value form the way class.As does for Handle payloads.
func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)  { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsDict() (Dict, bool)       { return v.dict, v.kind == KindDict }
func (v Value) AsList() (List, bool)       { return v.list, v.kind == KindList }

// StringOr returns the string value or def if v is not a String.
func (v Value) StringOr(def string) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return def
}

// BoolOr returns the bool value or def if v is not a Bool.
func (v Value) BoolOr(def bool) bool {
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

// Lookup fetches d[key], reporting whether key was present at all
// (distinct from the zero Value, which is KindNil).
func (d Dict) Lookup(key string) (Value, bool) {
	v, ok := d[key]
	return v, ok
}

// Merge returns a new Dict holding every entry of base, overwritten by
// every entry of overlay, the shape OPTS|IMMEDIATE application uses to
// layer a runtime command's dictionary on top of a component's staged
// options without mutating either input.
func Merge(base, overlay Dict) Dict {
	out := make(Dict, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// AMF0-compatible wire markers, so a Dict round-trips through the same
// byte shapes an AMF0 debug dump would produce.
const (
	markerNumber     = 0x00
	markerBoolean    = 0x01
	markerString     = 0x02
	markerObject     = 0x03
	markerNull       = 0x05
	markerStrictArray = 0x0A
	markerObjectEnd  = 0x09
)

// Encode writes v to w using the AMF0-shaped marker/value encoding.
func Encode(w io.Writer, v Value) error {
	switch v.kind {
	case KindNil:
		_, err := w.Write([]byte{markerNull})
		return wrapErr("optval.encode.nil", err)
	case KindBool:
		b := byte(0)
		if v.b {
			b = 1
		}
		_, err := w.Write([]byte{markerBoolean, b})
		return wrapErr("optval.encode.bool", err)
	case KindNumber:
		var buf [9]byte
		buf[0] = markerNumber
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.n))
		_, err := w.Write(buf[:])
		return wrapErr("optval.encode.number", err)
	case KindString:
		return encodeString(w, v.s)
	case KindDict:
		return encodeDict(w, v.dict)
	case KindList:
		return encodeList(w, v.list)
	}
	return errors.NewInvalidArgError("optval.encode.kind", nil)
}

func encodeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return errors.NewInvalidArgError("optval.encode.string.too_long", nil)
	}
	var hdr [3]byte
	hdr[0] = markerString
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(s)))
	if _, err := w.Write(hdr[:]); err != nil {
		return wrapErr("optval.encode.string.header", err)
	}
	_, err := io.WriteString(w, s)
	return wrapErr("optval.encode.string.body", err)
}

func encodeDict(w io.Writer, d Dict) error {
	if _, err := w.Write([]byte{markerObject}); err != nil {
		return wrapErr("optval.encode.dict.marker", err)
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var klen [2]byte
	for _, k := range keys {
		binary.BigEndian.PutUint16(klen[:], uint16(len(k)))
		if _, err := w.Write(klen[:]); err != nil {
			return wrapErr("optval.encode.dict.key_len", err)
		}
		if _, err := io.WriteString(w, k); err != nil {
			return wrapErr("optval.encode.dict.key", err)
		}
		if err := Encode(w, d[k]); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{0x00, 0x00, markerObjectEnd})
	return wrapErr("optval.encode.dict.end", err)
}

func encodeList(w io.Writer, l List) error {
	var hdr [5]byte
	hdr[0] = markerStrictArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(l)))
	if _, err := w.Write(hdr[:]); err != nil {
		return wrapErr("optval.encode.list.header", err)
	}
	for i, elem := range l {
		if err := Encode(w, elem); err != nil {
			return fmt.Errorf("optval.encode.list[%d]: %w", i, err)
		}
	}
	return nil
}

// Decode reads one Value from r.
func Decode(r io.Reader) (Value, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return Value{}, wrapErr("optval.decode.marker", err)
	}
	switch marker[0] {
	case markerNull:
		return Nil(), nil
	case markerBoolean:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Value{}, wrapErr("optval.decode.bool", err)
		}
		return Bool(b[0] != 0), nil
	case markerNumber:
		var n [8]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return Value{}, wrapErr("optval.decode.number", err)
		}
		return Number(math.Float64frombits(binary.BigEndian.Uint64(n[:]))), nil
	case markerString:
		s, err := decodeStringBody(r)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case markerObject:
		d, err := decodeDictBody(r)
		if err != nil {
			return Value{}, err
		}
		return FromDict(d), nil
	case markerStrictArray:
		l, err := decodeListBody(r)
		if err != nil {
			return Value{}, err
		}
		return FromList(l), nil
	}
	return Value{}, errors.NewInvalidArgError(fmt.Sprintf("optval.decode.marker.unknown(0x%02x)", marker[0]), nil)
}

func decodeStringBody(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", wrapErr("optval.decode.string.len", err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", wrapErr("optval.decode.string.body", err)
		}
	}
	return string(buf), nil
}

func decodeDictBody(r io.Reader) (Dict, error) {
	d := make(Dict)
	for {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, wrapErr("optval.decode.dict.key_len", err)
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		if n == 0 {
			var end [1]byte
			if _, err := io.ReadFull(r, end[:]); err != nil {
				return nil, wrapErr("optval.decode.dict.end", err)
			}
			if end[0] != markerObjectEnd {
				return nil, errors.NewInvalidArgError("optval.decode.dict.end.marker", nil)
			}
			return d, nil
		}
		key := make([]byte, n)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, wrapErr("optval.decode.dict.key", err)
		}
		val, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("optval.decode.dict[%s]: %w", key, err)
		}
		d[string(key)] = val
	}
}

func decodeListBody(r io.Reader) (List, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, wrapErr("optval.decode.list.count", err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])
	out := make(List, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("optval.decode.list[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.NewExternalError(op, 0, err)
}
