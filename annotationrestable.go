package decodecore

import (
	"strconv"
	"strings"
)

// DisplayFormat selects how a numeric annotation payload is rendered.
// FormatHex is the zero value and the default; an item whose
// CurDisplayFormat is -1 has not been converted yet.
type DisplayFormat int

const (
	FormatHex DisplayFormat = iota
	FormatBin
	FormatOct
	FormatDec
	FormatAscii
)

// perRunMaxNibbles bounds a single maximal hex run accepted for conversion;
// a longer run falls back to the raw hex text for that run.
const perRunMaxNibbles = 256

// totalConvertedMax bounds the aggregate converted output across all runs
// of a payload that contains separators; exceeding it falls back to the
// raw input. A payload that is a single hex run is not held to it.
const totalConvertedMax = 150

// binGroup4 maps a hex nibble (0-15) to its 4-character binary string,
// the Go analogue of the fixed 64-character lookup table the source keeps
// as one flat string.
var binGroup4 = [16]string{
	"0000", "0001", "0010", "0011",
	"0100", "0101", "0110", "0111",
	"1000", "1001", "1010", "1011",
	"1100", "1101", "1110", "1111",
}

// AnnotationSourceItem is one deduplicated payload in an AnnotationResTable:
// the verbatim source text lines plus, if the payload is numeric, the hex
// string backing on-demand bin/oct/dec/ascii rendering.
type AnnotationSourceItem struct {
	IsNumeric       bool
	NumberHex       string
	SrcLines        []string
	CvtLines        []string
	CurDisplayFormat DisplayFormat
	hasCvt          bool
}

// AnnotationResTable deduplicates annotation payloads by their exact text
// so that repeated emissions of the same value (common in protocol
// decoders that re-emit identical bytes) share one backing item instead of
// allocating a fresh string set per annotation.
type AnnotationResTable struct {
	index map[string]int
	items []*AnnotationSourceItem
}

func NewAnnotationResTable() *AnnotationResTable {
	return &AnnotationResTable{index: make(map[string]int)}
}

// MakeIndex returns the index of the item for key, creating and returning
// a fresh item when key has not been seen before. newItem is nil when an
// existing entry was reused, matching AnnotationResTable::MakeIndex's
// out-parameter convention.
func (t *AnnotationResTable) MakeIndex(key string) (idx int, newItem *AnnotationSourceItem) {
	if i, ok := t.index[key]; ok {
		return i, nil
	}
	item := &AnnotationSourceItem{CurDisplayFormat: -1}
	idx = len(t.items)
	t.items = append(t.items, item)
	t.index[key] = idx
	return idx, item
}

// GetItem returns the item at index. The caller must hold whatever lock
// guards the table; this type has none of its own.
func (t *AnnotationResTable) GetItem(index int) *AnnotationSourceItem {
	if index < 0 || index >= len(t.items) {
		return nil
	}
	return t.items[index]
}

func (t *AnnotationResTable) Count() int { return len(t.items) }

// Reset clears the table, releasing every item. Called when a decode run
// starts over.
func (t *AnnotationResTable) Reset() {
	t.index = make(map[string]int)
	t.items = nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

// formatRun converts one maximal hex run (no separator characters) to the
// requested display format, falling back to the raw run when it is too
// long to convert or the format produces nothing better.
func formatRun(hex string, format DisplayFormat) string {
	if hex == "" || format == FormatHex {
		return hex
	}
	if len(hex) > perRunMaxNibbles {
		return hex
	}

	var bin strings.Builder
	bin.Grow(len(hex) * 4)
	for i := 0; i < len(hex); i++ {
		bin.WriteString(binGroup4[hexNibble(hex[i])])
	}
	binStr := bin.String()

	switch format {
	case FormatBin:
		return binStr
	case FormatOct:
		return binToOct(binStr)
	case FormatDec:
		if len(hex)*4 <= 64 {
			return binToDecString(binStr)
		}
		return hex
	case FormatAscii:
		if len(hex) < 27 {
			if len(hex) == 2 {
				v := binToUint64(binStr)
				if v >= 33 && v <= 126 {
					return string([]byte{byte(v)})
				}
			}
			return "[" + hex + "]"
		}
		return hex
	default:
		return hex
	}
}

// binToOct groups a binary string into 3-bit chunks from the
// least-significant end, zero-extending an incomplete leading chunk, and
// renders each chunk as one octal digit.
func binToOct(bin string) string {
	digits := make([]byte, 0, (len(bin)+2)/3)
	i := len(bin)
	for i > 0 {
		start := i - 3
		var chunk string
		if start < 0 {
			chunk = strings.Repeat("0", -start) + bin[0:i]
		} else {
			chunk = bin[start:i]
		}
		var v byte
		switch chunk {
		case "000":
			v = '0'
		case "001":
			v = '1'
		case "010":
			v = '2'
		case "011":
			v = '3'
		case "100":
			v = '4'
		case "101":
			v = '5'
		case "110":
			v = '6'
		case "111":
			v = '7'
		}
		digits = append(digits, v)
		if start < 0 {
			break
		}
		i = start
	}
	// digits were appended from least-significant chunk first; reverse.
	for l, r := 0, len(digits)-1; l < r; l, r = l+1, r-1 {
		digits[l], digits[r] = digits[r], digits[l]
	}
	return string(digits)
}

func binToUint64(bin string) uint64 {
	var v uint64
	for i := 0; i < len(bin); i++ {
		v <<= 1
		if bin[i] == '1' {
			v |= 1
		}
	}
	return v
}

// binToDecString renders a <=64 bit binary string as an unsigned 64-bit
// decimal number.
func binToDecString(bin string) string {
	v := binToUint64(bin)
	return strconv.FormatUint(v, 10)
}

// formatNumeric converts a hex payload that may contain non-hex separator
// characters (decoders sometimes emit "AB CD" or "AB:CD:EF") by splitting
// it into maximal hex runs, converting each independently, and
// reassembling with the separators preserved verbatim. For such a payload
// the aggregate output is bounded by totalConvertedMax; exceeding it falls
// back to returning hex unchanged. A payload with no separator is
// converted as one run by formatRun, without that bound.
func formatNumeric(hex string, format DisplayFormat) string {
	if hex == "" || format == FormatHex {
		return hex
	}

	hasSeparator := false
	for i := 0; i < len(hex); i++ {
		if !isHexDigit(hex[i]) {
			hasSeparator = true
			break
		}
	}
	if !hasSeparator {
		return formatRun(hex, format)
	}

	var out strings.Builder
	runStart := -1
	flushRun := func(end int) bool {
		if runStart < 0 {
			return true
		}
		converted := formatRun(hex[runStart:end], format)
		if out.Len()+len(converted) > totalConvertedMax {
			return false
		}
		out.WriteString(converted)
		runStart = -1
		return true
	}

	for i := 0; i < len(hex); i++ {
		if isHexDigit(hex[i]) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if !flushRun(i) {
			return hex
		}
		if out.Len()+1 > totalConvertedMax {
			return hex
		}
		out.WriteByte(hex[i])
	}
	if !flushRun(len(hex)) {
		return hex
	}

	return out.String()
}
