package decodecore

import "testing"

func TestAnnotationDedupByText(t *testing.T) {
	status := NewDecoderStatus()
	a := NewAnnotation(0, 10, 1, 0, []string{"start"}, "", status)
	b := NewAnnotation(10, 20, 1, 0, []string{"start"}, "", status)
	if a.resIndex != b.resIndex {
		t.Errorf("identical payloads got distinct table entries: %d vs %d", a.resIndex, b.resIndex)
	}
	if status.resTable.Count() != 1 {
		t.Errorf("resTable.Count()=%d, want 1", status.resTable.Count())
	}
}

func TestAnnotationNumericTextsRerender(t *testing.T) {
	status := NewDecoderStatus()
	a := NewAnnotation(0, 1, 0, 0, []string{"byte: {$}"}, "FF", status)
	if !a.IsNumeric(status) {
		t.Fatal("annotation with a numeric hex payload reported IsNumeric()==false")
	}

	hexTexts := a.Texts(status)
	if len(hexTexts) != 1 || hexTexts[0] != "byte: FF" {
		t.Errorf("Texts() under FormatHex=%v, want [byte: FF]", hexTexts)
	}

	status.SetDisplayFormat(FormatDec)
	decTexts := a.Texts(status)
	if len(decTexts) != 1 || decTexts[0] != "byte: 255" {
		t.Errorf("Texts() under FormatDec=%v, want [byte: 255]", decTexts)
	}

	// switching back re-renders again rather than returning the stale cache.
	status.SetDisplayFormat(FormatHex)
	hexAgain := a.Texts(status)
	if len(hexAgain) != 1 || hexAgain[0] != "byte: FF" {
		t.Errorf("Texts() after switching back to FormatHex=%v, want [byte: FF]", hexAgain)
	}
}

func TestAnnotationNonNumericTextsAreSrcLines(t *testing.T) {
	status := NewDecoderStatus()
	a := NewAnnotation(0, 1, 0, 0, []string{"START"}, "", status)
	if a.IsNumeric(status) {
		t.Error("annotation with no numeric payload reported IsNumeric()==true")
	}
	texts := a.Texts(status)
	if len(texts) != 1 || texts[0] != "START" {
		t.Errorf("Texts()=%v, want [START]", texts)
	}
}

func TestAnnotationKeySkipsContinuationLines(t *testing.T) {
	key1 := annotationKey([]string{"A", "\ncontinuation"}, "")
	key2 := annotationKey([]string{"A"}, "")
	if key1 != key2 {
		t.Errorf("annotationKey ignored a leading-newline line incorrectly: %q vs %q", key1, key2)
	}
}
