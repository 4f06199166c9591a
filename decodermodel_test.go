package decodecore

import "testing"

func TestDecoderModelVisibleRows(t *testing.T) {
	stack := NewDecoderStack(&fakeEngine{})
	dec := NewDecoder(uartDescriptor())
	stack.AddSubDecoder(dec)

	model := NewDecoderModel(stack)
	rows := model.VisibleRows()
	if len(rows) != 1 {
		t.Fatalf("VisibleRows()=%d rows, want 1", len(rows))
	}
	if model.RowCount() != len(rows) {
		t.Errorf("RowCount()=%d, want %d", model.RowCount(), len(rows))
	}

	stack.SetRowVisibility(rows[0], false)
	if got := model.RowCount(); got != 0 {
		t.Errorf("RowCount() after hiding the only row=%d, want 0", got)
	}
}

func TestDecoderModelAnnotationCountUnknownRow(t *testing.T) {
	stack := NewDecoderStack(&fakeEngine{})
	model := NewDecoderModel(stack)
	unknown := NewDefaultRow("nope", "Nope")
	if got := model.AnnotationCount(unknown); got != 0 {
		t.Errorf("AnnotationCount() for an unknown row=%d, want 0", got)
	}
	if _, ok := model.AnnotationText(unknown, 0); ok {
		t.Error("AnnotationText() for an unknown row reported ok==true")
	}
}
