package decodecore

import (
	"fmt"
	"strings"
)

// DecoderID identifies a decoder definition (what the source tree calls
// srd_decoder*). It is an opaque stable handle, e.g. "uart" or "i2c", never
// a pointer, so it survives process restarts and can be used as a map key
// for persisted visibility state.
type DecoderID string

// AnnRowID identifies an annotation-row declared by a decoder definition,
// by its position in that decoder's declared row list. NoAnnRow marks a
// decoder's default, row-less fallback (what row.cpp calls Row(decc)).
type AnnRowID int

const NoAnnRow AnnRowID = -1

// Row is a map key identifying one visible output row: a particular
// decoder, optionally one of its declared annotation-rows, and the
// position that row occupies in display order.
type Row struct {
	Decoder   DecoderID
	DecName   string
	AnnRow    AnnRowID
	AnnDesc   string
	Order     int
}

// NewDefaultRow builds the default, row-less Row for a decoder: its annotations
// have no declared annotation-row to belong to.
func NewDefaultRow(decoder DecoderID, decName string) Row {
	return Row{Decoder: decoder, DecName: decName, AnnRow: NoAnnRow, Order: -1}
}

// NewAnnotationRow builds the Row for one of a decoder's declared
// annotation-rows.
func NewAnnotationRow(decoder DecoderID, decName string, annRow AnnRowID, annDesc string, order int) Row {
	return Row{Decoder: decoder, DecName: decName, AnnRow: annRow, AnnDesc: annDesc, Order: order}
}

// IsDefault reports whether this is a decoder's row-less fallback row.
func (r Row) IsDefault() bool {
	return r.AnnRow == NoAnnRow
}

// Title is the human-facing row label, combining decoder name and
// annotation-row description when both are present.
func (r Row) Title() string {
	switch {
	case r.DecName != "" && r.AnnDesc != "":
		return fmt.Sprintf("%s: %s", r.DecName, r.AnnDesc)
	case r.DecName != "":
		return r.DecName
	case r.AnnDesc != "":
		return r.AnnDesc
	default:
		return ""
	}
}

// TitleID is Title keyed on the decoder's stable id instead of its
// (renameable) display name, used to persist visibility choices across
// restarts without tying them to UI-facing text.
func (r Row) TitleID() string {
	switch {
	case r.Decoder != "" && r.AnnDesc != "":
		return fmt.Sprintf("%s: %s", r.Decoder, r.AnnDesc)
	case r.Decoder != "":
		return string(r.Decoder)
	case r.AnnDesc != "":
		return r.AnnDesc
	default:
		return ""
	}
}

// hidesByDefault reports whether a freshly-declared row should start
// hidden locally: rows whose title mentions bits or warnings are noisy by
// default, matching build_row's gshow/lshow seeding.
func (r Row) hidesByDefault() bool {
	title := strings.ToLower(r.Title())
	return strings.Contains(title, "bit") || strings.Contains(title, "warning")
}

// Less orders rows by decoder id then by declaration order, matching
// Row::operator< (decoder pointer, then _order) but using the stable
// DecoderID instead of pointer identity.
func (r Row) Less(o Row) bool {
	if r.Decoder != o.Decoder {
		return r.Decoder < o.Decoder
	}
	return r.Order < o.Order
}
