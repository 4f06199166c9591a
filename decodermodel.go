package decodecore

// DecoderModel is a read-only tabular adapter over a DecoderStack's
// visible rows, the shape a renderer's table/tree view binds to: it never
// mutates the stack, only reflects its current row set and annotations.
type DecoderModel struct {
	stack *DecoderStack
}

func NewDecoderModel(stack *DecoderStack) *DecoderModel {
	return &DecoderModel{stack: stack}
}

// RowCount returns the number of visible rows.
func (m *DecoderModel) RowCount() int {
	count := 0
	for _, row := range m.stack.ListRows() {
		if m.stack.RowVisible(row) {
			count++
		}
	}
	return count
}

// VisibleRows returns the currently visible rows in declaration order.
func (m *DecoderModel) VisibleRows() []Row {
	var out []Row
	for _, row := range m.stack.ListRows() {
		if m.stack.RowVisible(row) {
			out = append(out, row)
		}
	}
	return out
}

// AnnotationCount returns how many annotations row currently holds.
func (m *DecoderModel) AnnotationCount(row Row) uint64 {
	ds := m.stack
	ds.mu.Lock()
	rd, ok := ds.rows[row]
	ds.mu.Unlock()
	if !ok {
		return 0
	}
	return rd.Size()
}

// AnnotationText returns the display text for the annotation at index on
// row, under the stack's current display format.
func (m *DecoderModel) AnnotationText(row Row, index uint64) ([]string, bool) {
	ds := m.stack
	ds.mu.Lock()
	rd, ok := ds.rows[row]
	ds.mu.Unlock()
	if !ok {
		return nil, false
	}
	ann, ok := rd.GetAnnotation(index)
	if !ok {
		return nil, false
	}
	return ann.Texts(ds.status), true
}
