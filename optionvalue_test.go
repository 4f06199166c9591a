package decodecore

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestOptionValueEqual(t *testing.T) {
	if !IntOption(5).Equal(IntOption(5)) {
		t.Error("IntOption(5) != IntOption(5)")
	}
	if IntOption(5).Equal(IntOption(6)) {
		t.Error("IntOption(5) == IntOption(6)")
	}
	if IntOption(5).Equal(FloatOption(5)) {
		t.Error("values of different kinds compared equal")
	}

	m1 := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	m2 := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if !MatrixOption(m1).Equal(MatrixOption(m2)) {
		t.Error("equal matrices compared unequal")
	}
}

func TestOptionValueWireRoundTrip(t *testing.T) {
	cases := []OptionValue{
		IntOption(42),
		FloatOption(3.5),
		StringOption("hello"),
		BoolOption(true),
	}
	for _, want := range cases {
		wire, err := want.ToWire()
		if err != nil {
			t.Fatalf("ToWire(%v): %v", want, err)
		}
		got, err := wire.FromWire()
		if err != nil {
			t.Fatalf("FromWire(%v): %v", wire, err)
		}
		if !got.Equal(want) {
			t.Errorf("round trip of %v produced %v", want, got)
		}
	}
}

func TestOptionValueMatrixWireRoundTrip(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	want := MatrixOption(m)
	wire, err := want.ToWire()
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	if wire.MatrixB64 == "" {
		t.Fatal("ToWire() of a matrix option produced an empty payload")
	}
	got, err := wire.FromWire()
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if !got.Equal(want) {
		t.Error("matrix option did not round trip through the wire form")
	}
}
