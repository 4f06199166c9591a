package engine

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func TestEncodeChannelMapHeader(t *testing.T) {
	buf := encodeChannelMapHeader([]int{2, -1, 0})
	if len(buf) != 3*feedHeaderEntrySize {
		t.Fatalf("unexpected header length %d", len(buf))
	}
	// entry 1 (signal index -1) must be marked unmapped.
	if buf[1*feedHeaderEntrySize+8] != 1 {
		t.Fatalf("expected entry 1 to be marked unmapped")
	}
	if buf[0*feedHeaderEntrySize+8] != 0 {
		t.Fatalf("expected entry 0 to be marked mapped")
	}
}

func TestEncodeFeedHeaderRoundTrip(t *testing.T) {
	entries := []feedHeaderEntry{
		{Ptr: 100, Length: 4},
		{IsConst: true, ConstVal: 0xAB},
	}
	buf := encodeFeedHeader(entries)
	if len(buf) != 2*feedHeaderEntrySize {
		t.Fatalf("unexpected length %d", len(buf))
	}
	// read each entry's fields back out of the encoded buffer.
	for i, want := range entries {
		off := i * feedHeaderEntrySize
		got := feedHeaderEntry{
			Ptr:      binary.LittleEndian.Uint32(buf[off:]),
			Length:   binary.LittleEndian.Uint32(buf[off+4:]),
			IsConst:  binary.LittleEndian.Uint32(buf[off+8:]) == 1,
			ConstVal: byte(binary.LittleEndian.Uint32(buf[off+12:])),
		}
		if got != want {
			t.Errorf("entry %d decoded as %+v, want %+v", i, got, want)
		}
	}
}

func TestSplitNulJoined(t *testing.T) {
	cases := []struct {
		in   []byte
		want []string
	}{
		{nil, nil},
		{[]byte("hello"), []string{"hello"}},
		{[]byte("a\x00b\x00c"), []string{"a", "b", "c"}},
		{[]byte("a\x00b\x00"), []string{"a", "b"}},
	}
	for _, c := range cases {
		got := splitNulJoined(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitNulJoined(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
