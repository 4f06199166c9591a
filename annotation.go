package decodecore

import "strings"

// Annotation is an immutable decode result: a sample range, a class and
// type tag from the decoder that emitted it, and a reference into the
// owning DecoderStatus's payload table. Two annotations with identical
// text content share the same table entry.
type Annotation struct {
	StartSample uint64
	EndSample   uint64
	Class       int
	Type        int
	resIndex    int
}

// annotationKey builds the payload-table dedup key from the same text
// AnnotationResTable would itself want to distinguish on: every source
// line concatenated, then the numeric hex string if present. A
// leading newline in a source line marks it as a continuation that does
// not contribute to the key, matching the source's '\n'-prefix check.
func annotationKey(srcLines []string, numberHex string) string {
	var b strings.Builder
	for _, line := range srcLines {
		if len(line) > 0 && line[0] == '\n' {
			continue
		}
		b.WriteString(line)
	}
	b.WriteString(numberHex)
	return b.String()
}

// NewAnnotation constructs an Annotation, interning its payload into
// status's table. srcLines are the decoder-supplied text alternatives
// (short/long/terse forms); numberHex, if non-empty, marks the payload as
// numeric and available for bin/oct/dec/ascii re-rendering.
func NewAnnotation(start, end uint64, class, typ int, srcLines []string, numberHex string, status *DecoderStatus) Annotation {
	status.Lock()
	defer status.Unlock()

	key := annotationKey(srcLines, numberHex)
	idx, item := status.resTable.MakeIndex(key)

	if item != nil {
		for _, line := range srcLines {
			if len(line) > 0 && line[0] == '\n' {
				continue
			}
			item.SrcLines = append(item.SrcLines, line)
		}
		if numberHex != "" && len(numberHex) <= perRunMaxNibbles {
			item.NumberHex = numberHex
			item.IsNumeric = true
		}
		status.hasNumeric = status.hasNumeric || item.IsNumeric
	}

	return Annotation{StartSample: start, EndSample: end, Class: class, Type: typ, resIndex: idx}
}

// IsNumeric reports whether this annotation's payload carries a numeric
// hex value re-renderable under a different display format.
func (a Annotation) IsNumeric(status *DecoderStatus) bool {
	status.Lock()
	defer status.Unlock()
	item := status.resTable.GetItem(a.resIndex)
	return item != nil && item.IsNumeric
}

// Texts returns the annotation's display text lines under status's
// currently selected display format, recomputing and caching the
// conversion the first time a given item is requested under a new format.
func (a Annotation) Texts(status *DecoderStatus) []string {
	status.Lock()
	defer status.Unlock()

	item := status.resTable.GetItem(a.resIndex)
	if item == nil {
		return nil
	}
	if !item.IsNumeric {
		return item.SrcLines
	}

	if item.CurDisplayFormat != status.format || !item.hasCvt {
		item.CurDisplayFormat = status.format
		item.hasCvt = true
		item.CvtLines = item.CvtLines[:0]

		numStr := formatNumeric(item.NumberHex, status.format)
		if len(item.SrcLines) > 0 {
			for _, src := range item.SrcLines {
				item.CvtLines = append(item.CvtLines, strings.ReplaceAll(src, "{$}", numStr))
			}
		} else {
			item.CvtLines = append(item.CvtLines, numStr)
		}
	}

	return item.CvtLines
}
