package engine

import "encoding/binary"

// This package talks to decoder guest modules through a small, fixed byte
// layout of our own rather than the WebAssembly Component Model's
// canonical ABI: the decoder contract spec.md describes (four lifecycle
// calls plus one annotation callback) is far narrower than what
// canonical-ABI tooling targets, so a hand-rolled layout - the same
// choice gherkin/cabi.go makes for its own export surface - keeps the
// guest side simple.
//
// Guest exports (all i32 return codes are 0 for success):
//
//	decoder_alloc(size u32) -> ptr u32
//	decoder_init() -> i32
//	decoder_set_option(key_ptr u32, key_len u32, kind u32, int_val u64, float_val f64, str_ptr u32, str_len u32) -> i32
//	decoder_channel_set_all(header_ptr u32, channel_count u32) -> i32
//	decoder_start() -> i32
//	decoder_decode(start u64, end u64, header_ptr u32, channel_count u32) -> i32
//	decoder_end() -> i32
//
// Guest import (the host callback a guest calls once per annotation it emits):
//
//	host_emit_annotation(start u64, end u64, ann_class u32, ann_type u32,
//	                      text_ptr u32, text_len u32, hex_ptr u32, hex_len u32)
//
// text_ptr/text_len names a UTF-8 buffer holding the annotation's text
// alternatives joined by NUL bytes (an empty buffer means no text lines).
// hex_ptr/hex_len names an ASCII hex string buffer, or a zero length for a
// non-numeric annotation.

// feedHeaderEntrySize is the byte size of one channel-map or feed-header
// entry: ptr u32, length u32, isConst u32, constVal u32.
const feedHeaderEntrySize = 16

// encodeChannelMapHeader renders sigIndices (one entry per declared
// channel, -1 for unmapped) into the channel_set_all header buffer: each
// entry's "ptr"/"length" fields are unused and zeroed, constVal carries
// the signal index reinterpreted as u32 (two's complement for -1).
func encodeChannelMapHeader(sigIndices []int) []byte {
	buf := make([]byte, len(sigIndices)*feedHeaderEntrySize)
	for i, sig := range sigIndices {
		off := i * feedHeaderEntrySize
		binary.LittleEndian.PutUint32(buf[off:], 0)
		binary.LittleEndian.PutUint32(buf[off+4:], 0)
		mapped := uint32(0)
		if sig < 0 {
			mapped = 1
		}
		binary.LittleEndian.PutUint32(buf[off+8:], mapped)
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(int32(sig)))
	}
	return buf
}

// feedHeaderEntry is one channel's decoded feed-header record, as the
// decode_data loop builds it before handing a chunk to the guest.
type feedHeaderEntry struct {
	Ptr      uint32
	Length   uint32
	IsConst  bool
	ConstVal byte
}

// encodeFeedHeader renders the per-chunk feed header: one entry per
// channel, each naming either a data pointer+length or a constant value.
func encodeFeedHeader(entries []feedHeaderEntry) []byte {
	buf := make([]byte, len(entries)*feedHeaderEntrySize)
	for i, e := range entries {
		off := i * feedHeaderEntrySize
		binary.LittleEndian.PutUint32(buf[off:], e.Ptr)
		binary.LittleEndian.PutUint32(buf[off+4:], e.Length)
		isConst := uint32(0)
		if e.IsConst {
			isConst = 1
		}
		binary.LittleEndian.PutUint32(buf[off+8:], isConst)
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(e.ConstVal))
	}
	return buf
}

// splitNulJoined splits a NUL-joined text buffer into its component
// lines, the inverse of how a guest packs multiple annotation text
// alternatives into one buffer for host_emit_annotation.
func splitNulJoined(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var lines []string
	start := 0
	for i, b := range raw {
		if b == 0 {
			lines = append(lines, string(raw[start:i]))
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, string(raw[start:]))
	}
	return lines
}
