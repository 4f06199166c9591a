package decodecore

import (
	"encoding/base64"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OptionKind discriminates the closed set of decoder option value shapes.
// This is the Go realization of the source tree's GVariant-typed options
// map; decoders never see anything outside this set.
type OptionKind int

const (
	OptionInt64 OptionKind = iota
	OptionFloat64
	OptionString
	OptionBool
	OptionMatrix
)

func (k OptionKind) String() string {
	switch k {
	case OptionInt64:
		return "int64"
	case OptionFloat64:
		return "float64"
	case OptionString:
		return "string"
	case OptionBool:
		return "bool"
	case OptionMatrix:
		return "matrix"
	default:
		return "unknown"
	}
}

// OptionValue is a decoder option's value, carried across the RPC boundary
// the same way ConfigureProjectorsBasis carries a basis matrix: matrix
// values marshal through mat.Dense's binary form, base64-encoded, so a
// single JSON-RPC call can move them without a custom wire codec.
type OptionValue struct {
	Kind   OptionKind
	Int    int64
	Float  float64
	Str    string
	Bool   bool
	Matrix *mat.Dense
}

func IntOption(v int64) OptionValue      { return OptionValue{Kind: OptionInt64, Int: v} }
func FloatOption(v float64) OptionValue  { return OptionValue{Kind: OptionFloat64, Float: v} }
func StringOption(v string) OptionValue  { return OptionValue{Kind: OptionString, Str: v} }
func BoolOption(v bool) OptionValue      { return OptionValue{Kind: OptionBool, Bool: v} }
func MatrixOption(m *mat.Dense) OptionValue {
	return OptionValue{Kind: OptionMatrix, Matrix: m}
}

// Equal reports whether two option values are identical. Decoder.Commit
// does not use it: Commit reports whether anything was staged, not
// whether a staged value differs from the active one.
func (v OptionValue) Equal(o OptionValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case OptionInt64:
		return v.Int == o.Int
	case OptionFloat64:
		return v.Float == o.Float
	case OptionString:
		return v.Str == o.Str
	case OptionBool:
		return v.Bool == o.Bool
	case OptionMatrix:
		if v.Matrix == nil || o.Matrix == nil {
			return v.Matrix == o.Matrix
		}
		return mat.Equal(v.Matrix, o.Matrix)
	default:
		return false
	}
}

// WireOptionValue is the RPC wire form of an OptionValue, produced by
// ToWire and read back by FromWire, matching the teacher's
// base64(MarshalBinary) treatment of matrix-valued options.
type WireOptionValue struct {
	Kind       string
	Int        int64
	Float      float64
	Str        string
	Bool       bool
	MatrixB64  string
}

func (v OptionValue) ToWire() (WireOptionValue, error) {
	w := WireOptionValue{Kind: v.Kind.String(), Int: v.Int, Float: v.Float, Str: v.Str, Bool: v.Bool}
	if v.Kind == OptionMatrix && v.Matrix != nil {
		raw, err := v.Matrix.MarshalBinary()
		if err != nil {
			return WireOptionValue{}, fmt.Errorf("decodecore: marshal matrix option: %w", err)
		}
		w.MatrixB64 = base64.StdEncoding.EncodeToString(raw)
	}
	return w, nil
}

func (w WireOptionValue) FromWire() (OptionValue, error) {
	switch w.Kind {
	case "int64":
		return IntOption(w.Int), nil
	case "float64":
		return FloatOption(w.Float), nil
	case "string":
		return StringOption(w.Str), nil
	case "bool":
		return BoolOption(w.Bool), nil
	case "matrix":
		raw, err := base64.StdEncoding.DecodeString(w.MatrixB64)
		if err != nil {
			return OptionValue{}, fmt.Errorf("decodecore: decode matrix option: %w", err)
		}
		var m mat.Dense
		if err := m.UnmarshalBinary(raw); err != nil {
			return OptionValue{}, fmt.Errorf("decodecore: unmarshal matrix option: %w", err)
		}
		return MatrixOption(&m), nil
	default:
		return OptionValue{}, fmt.Errorf("decodecore: unknown option kind %q", w.Kind)
	}
}
