package decodecore

import (
	"testing"
	"time"
)

// fakeInstance and fakeSession let decodeData tests drive the feed loop
// without a real WebAssembly engine: onSend fires whatever annotations the
// test wants, independent of the byte payload actually fed through.
type fakeInstance struct {
	decoderID  DecoderID
	sigIndices []int
}

func (i *fakeInstance) SetChannelMap(idx []int) error { i.sigIndices = idx; return nil }
func (i *fakeInstance) DeclaresChannels() bool        { return len(i.sigIndices) > 0 }

type fakeSession struct {
	eng       *fakeEngine
	cb        func(EngineEvent)
	instances []*fakeInstance
}

func (s *fakeSession) NewInstance(id DecoderID, opts map[string]OptionValue) (Instance, error) {
	inst := &fakeInstance{decoderID: id}
	s.instances = append(s.instances, inst)
	return inst, nil
}
func (s *fakeSession) Stack(prev, next Instance) error                    { return nil }
func (s *fakeSession) SetSampleRate(rate float64) error                  { return nil }
func (s *fakeSession) AddAnnotationCallback(cb func(EngineEvent)) error { s.cb = cb; return nil }
func (s *fakeSession) Start() error                                      { return nil }
func (s *fakeSession) Send(start, end uint64, feeds []ChannelFeed) error {
	if s.eng.sendDelay > 0 {
		time.Sleep(s.eng.sendDelay)
	}
	if s.eng.onSend != nil {
		s.eng.onSend(start, end, s.cb)
	}
	return nil
}
func (s *fakeSession) End() error   { return nil }
func (s *fakeSession) Close() error { return nil }

type fakeEngine struct {
	onSend    func(start, end uint64, emit func(EngineEvent))
	sendDelay time.Duration
}

func (e *fakeEngine) NewSession() (Session, error) { return &fakeSession{eng: e}, nil }

func uartDescriptor() DecoderDescriptor {
	return DecoderDescriptor{
		ID:   "uart",
		Name: "UART",
		RequiredChannels: []ChannelDesc{
			{ID: "rx", Name: "RX"},
		},
		AnnotationRows: []AnnotationRowDesc{
			{Desc: "RX/TX", Classes: []int{0}},
		},
	}
}

func newReadyStack(t *testing.T, eng Engine, bufLen int) (*DecoderStack, *Decoder) {
	t.Helper()
	stack := NewDecoderStack(eng)
	dec := NewDecoder(uartDescriptor())
	dec.SetChannelMap(map[ChannelDesc]int{{ID: "rx", Name: "RX"}: 0})
	dec.SetDecodeRegion(0, uint64(bufLen-1))
	dec.Commit()
	stack.AddSubDecoder(dec)

	snap := NewMemorySnapshot(1_000_000)
	snap.SetChannel(0, make([]byte, bufLen))
	stack.SetSnapshot(snap)
	return stack, dec
}

func TestDecoderStackRoutesDeclaredAndFallbackRows(t *testing.T) {
	eng := &fakeEngine{
		onSend: func(start, end uint64, emit func(EngineEvent)) {
			emit(EngineEvent{DecoderID: "uart", StartSample: start, EndSample: start + 1, AnnClass: 0, AnnText: []string{"declared"}})
			emit(EngineEvent{DecoderID: "uart", StartSample: start + 1, EndSample: start + 2, AnnClass: 9, AnnText: []string{"fallback"}})
		},
	}
	stack, _ := newReadyStack(t, eng, 64)

	if err := stack.BeginDecodeWork(); err != nil {
		t.Fatalf("BeginDecodeWork(): %v", err)
	}

	declared := NewAnnotationRow("uart", "UART", 0, "RX/TX", 0)
	subset, err := stack.GetAnnotationSubset(declared, 0, 100)
	if err != nil {
		t.Fatalf("GetAnnotationSubset(declared row): %v", err)
	}
	if len(subset) != 1 {
		t.Errorf("declared row got %d annotations, want 1", len(subset))
	}

	fallback := NewDefaultRow("uart", "UART")
	subset, err = stack.GetAnnotationSubset(fallback, 0, 100)
	if err != nil {
		t.Fatalf("GetAnnotationSubset(fallback row): %v", err)
	}
	if len(subset) != 1 {
		t.Errorf("fallback row got %d annotations, want 1", len(subset))
	}

	rows := stack.ListRows()
	for _, r := range rows {
		if r.IsDefault() {
			t.Error("ListRows() exposed the suppressed fallback row for a decoder with declared rows")
		}
	}
}

func TestDecoderStackDedupAndRangeQuery(t *testing.T) {
	eng := &fakeEngine{
		onSend: func(start, end uint64, emit func(EngineEvent)) {
			for i := uint64(0); i < 4; i++ {
				emit(EngineEvent{DecoderID: "uart", StartSample: start + i*2, EndSample: start + i*2 + 1, AnnClass: 0, AnnText: []string{"same text"}})
			}
		},
	}
	stack, _ := newReadyStack(t, eng, 16)

	if err := stack.BeginDecodeWork(); err != nil {
		t.Fatalf("BeginDecodeWork(): %v", err)
	}

	if got := stack.status.resTable.Count(); got != 1 {
		t.Errorf("resTable.Count() after 4 identical annotations=%d, want 1", got)
	}

	row := NewAnnotationRow("uart", "UART", 0, "RX/TX", 0)
	subset, err := stack.GetAnnotationSubset(row, 2, 5)
	if err != nil {
		t.Fatalf("GetAnnotationSubset: %v", err)
	}
	if len(subset) != 2 {
		t.Errorf("GetAnnotationSubset(2,5)=%d annotations, want 2", len(subset))
	}
}

func TestDecoderStackNumericRerender(t *testing.T) {
	eng := &fakeEngine{
		onSend: func(start, end uint64, emit func(EngineEvent)) {
			emit(EngineEvent{DecoderID: "uart", StartSample: start, EndSample: start + 1, AnnClass: 0, AnnText: []string{"byte: {$}"}, NumberHex: "FF"})
		},
	}
	stack, _ := newReadyStack(t, eng, 8)
	if err := stack.BeginDecodeWork(); err != nil {
		t.Fatalf("BeginDecodeWork(): %v", err)
	}

	row := NewAnnotationRow("uart", "UART", 0, "RX/TX", 0)
	model := NewDecoderModel(stack)
	text, ok := model.AnnotationText(row, 0)
	if !ok || len(text) != 1 || text[0] != "byte: FF" {
		t.Fatalf("AnnotationText() under FormatHex=%v, ok=%v, want [byte: FF]", text, ok)
	}

	stack.Status().SetDisplayFormat(FormatDec)
	text, ok = model.AnnotationText(row, 0)
	if !ok || len(text) != 1 || text[0] != "byte: 255" {
		t.Fatalf("AnnotationText() under FormatDec=%v, ok=%v, want [byte: 255]", text, ok)
	}
}

func TestDecoderStackOutOfMemoryStopsRowPushes(t *testing.T) {
	eng := &fakeEngine{
		onSend: func(start, end uint64, emit func(EngineEvent)) {
			emit(EngineEvent{DecoderID: "uart", StartSample: start, EndSample: start + 1, AnnClass: 0, AnnText: []string{"x"}})
		},
	}
	stack, _ := newReadyStack(t, eng, 8)

	row := NewAnnotationRow("uart", "UART", 0, "RX/TX", 0)
	stack.mu.Lock()
	rd := stack.rows[row]
	stack.mu.Unlock()
	rd.setOOMHook(func() bool { return true })

	if err := stack.BeginDecodeWork(); err != nil {
		t.Fatalf("BeginDecodeWork(): %v", err)
	}
	if !stack.OutOfMemory() {
		t.Error("OutOfMemory() false after a simulated allocation failure")
	}
}

func TestDecoderStackCancellation(t *testing.T) {
	eng := &fakeEngine{sendDelay: 30 * time.Millisecond}
	bufLen := 3 * MaxChunk
	stack, _ := newReadyStack(t, eng, bufLen)

	done := make(chan error, 1)
	go func() { done <- stack.BeginDecodeWork() }()

	time.Sleep(10 * time.Millisecond)
	stack.StopDecodeWork()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("BeginDecodeWork(): %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("decode run did not stop after StopDecodeWork()")
	}

	if stack.DecodeState() != Stopped {
		t.Errorf("DecodeState() after cancellation=%v, want Stopped", stack.DecodeState())
	}
	if stack.SamplesDecoded() >= int64(bufLen-1) {
		t.Error("decode ran to completion despite StopDecodeWork()")
	}
}

func TestDecoderStackStopSuppressesInFlightAnnotations(t *testing.T) {
	eng := &fakeEngine{}
	stack, _ := newReadyStack(t, eng, 4*MaxChunk)

	var chunks int
	eng.onSend = func(start, end uint64, emit func(EngineEvent)) {
		chunks++
		if chunks == 2 {
			// simulate the stop request landing between the engine
			// starting a chunk and it calling back with an annotation.
			stack.StopDecodeWork()
		}
		emit(EngineEvent{DecoderID: "uart", StartSample: start, EndSample: end, AnnClass: 0, AnnText: []string{"late"}})
	}

	if err := stack.BeginDecodeWork(); err != nil {
		t.Fatalf("BeginDecodeWork(): %v", err)
	}

	rows := stack.ListRows()
	subset, err := stack.GetAnnotationSubset(rows[0], 0, uint64(4*MaxChunk))
	if err != nil {
		t.Fatalf("GetAnnotationSubset: %v", err)
	}
	for _, ann := range subset {
		if ann.Texts(stack.Status())[0] == "late" {
			t.Error("annotation emitted after StopDecodeWork() was routed into row data")
		}
	}
}

func TestDecoderStackBeginDecodeWorkRejectsEmptyStack(t *testing.T) {
	stack := NewDecoderStack(&fakeEngine{})
	if err := stack.BeginDecodeWork(); err != ErrNoDecoders {
		t.Errorf("BeginDecodeWork() on empty stack = %v, want ErrNoDecoders", err)
	}
}

func TestDecoderStackCommitAllReportsChange(t *testing.T) {
	stack := NewDecoderStack(&fakeEngine{})
	dec := NewDecoder(uartDescriptor())
	stack.AddSubDecoder(dec)

	if !stack.CommitAll() {
		t.Error("CommitAll() after AddSubDecoder returned false, want true")
	}
	if stack.CommitAll() {
		t.Error("CommitAll() with nothing staged returned true, want false")
	}
}

func TestDecoderStackVisibilityByTitleIDRoundTrip(t *testing.T) {
	stack := NewDecoderStack(&fakeEngine{})
	dec := NewDecoder(uartDescriptor())
	stack.AddSubDecoder(dec)
	stack.CommitAll()

	rows := stack.ListRows()
	if len(rows) != 1 {
		t.Fatalf("ListRows()=%d rows, want 1", len(rows))
	}
	row := rows[0]
	stack.SetRowVisibility(row, false)

	saved := stack.VisibilityByTitleID()
	if shown, ok := saved[row.TitleID()]; !ok || shown {
		t.Fatalf("VisibilityByTitleID()[%q] = %v, %v, want false, true", row.TitleID(), shown, ok)
	}

	other := NewDecoderStack(&fakeEngine{})
	dec2 := NewDecoder(uartDescriptor())
	other.AddSubDecoder(dec2)
	other.CommitAll()
	other.ApplyVisibilityByTitleID(saved)

	if other.RowVisible(other.ListRows()[0]) {
		t.Error("RowVisible() after ApplyVisibilityByTitleID(saved) = true, want false")
	}
}
