package decodecore

import "testing"

func testDescriptor() DecoderDescriptor {
	return DecoderDescriptor{
		ID:   "uart",
		Name: "UART",
		RequiredChannels: []ChannelDesc{
			{ID: "rx", Name: "RX"},
			{ID: "tx", Name: "TX"},
		},
		AnnotationRows: []AnnotationRowDesc{
			{Desc: "RX/TX", Classes: []int{0, 1}},
		},
	}
}

func TestDecoderCommitPromotesPendingState(t *testing.T) {
	d := NewDecoder(testDescriptor())
	d.SetOption("baudrate", IntOption(9600))
	d.SetDecodeRegion(10, 200)

	if d.DecodeStart() != 0 || d.DecodeEnd() != 0 {
		t.Fatal("active decode region changed before Commit")
	}
	if !d.Commit() {
		t.Fatal("Commit() returned false after staging changes")
	}
	if d.DecodeStart() != 10 || d.DecodeEnd() != 200 {
		t.Errorf("DecodeStart/End after Commit = %d/%d, want 10/200", d.DecodeStart(), d.DecodeEnd())
	}
	opts := d.Options()
	if opts["baudrate"].Int != 9600 {
		t.Errorf("committed option baudrate=%v, want 9600", opts["baudrate"])
	}
}

func TestDecoderCommitIsIdempotentWithoutChanges(t *testing.T) {
	d := NewDecoder(testDescriptor())
	d.Commit()
	if d.Commit() {
		t.Error("second Commit() with nothing staged returned true, want false")
	}
}

func TestDecoderResetStartOnlyTouchesStart(t *testing.T) {
	d := NewDecoder(testDescriptor())
	d.SetDecodeRegion(5, 50)
	d.Commit()
	d.SetDecodeRegion(99, 999)
	d.ResetStart()
	if d.DecodeStart() != 99 {
		t.Errorf("DecodeStart() after ResetStart()=%d, want 99", d.DecodeStart())
	}
	if d.DecodeEnd() != 50 {
		t.Errorf("DecodeEnd() after ResetStart()=%d, want 50 (unchanged)", d.DecodeEnd())
	}
}

func TestDecoderHaveRequiredProbes(t *testing.T) {
	d := NewDecoder(testDescriptor())
	if d.HaveRequiredProbes() {
		t.Error("HaveRequiredProbes() true before any channel mapped")
	}
	d.SetChannelMap(map[ChannelDesc]int{
		{ID: "rx", Name: "RX"}: 0,
	})
	d.Commit()
	if d.HaveRequiredProbes() {
		t.Error("HaveRequiredProbes() true with only one of two required channels mapped")
	}
	d.SetChannelMap(map[ChannelDesc]int{
		{ID: "rx", Name: "RX"}: 0,
		{ID: "tx", Name: "TX"}: 1,
	})
	d.Commit()
	if !d.HaveRequiredProbes() {
		t.Error("HaveRequiredProbes() false with both required channels mapped")
	}
}

func TestDecoderChannelSignalIndices(t *testing.T) {
	d := NewDecoder(testDescriptor())
	d.SetChannelMap(map[ChannelDesc]int{
		{ID: "tx", Name: "TX"}: 3,
	})
	d.Commit()
	indices := d.ChannelSignalIndices()
	if len(indices) != 2 {
		t.Fatalf("ChannelSignalIndices() len=%d, want 2", len(indices))
	}
	if indices[0] != -1 {
		t.Errorf("unmapped rx channel index=%d, want -1", indices[0])
	}
	if indices[1] != 3 {
		t.Errorf("mapped tx channel index=%d, want 3", indices[1])
	}
}

func TestDecoderDeclaresChannels(t *testing.T) {
	d := NewDecoder(testDescriptor())
	if !d.DeclaresChannels() {
		t.Error("DeclaresChannels() false for a decoder with required channels, want true")
	}

	stacked := NewDecoder(DecoderDescriptor{ID: "stacked-only", Name: "Stacked"})
	if stacked.DeclaresChannels() {
		t.Error("DeclaresChannels() true for a decoder with no required channels, want false")
	}
}
