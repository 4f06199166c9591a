package decodecore

import "sync"

// DecoderStatus is the shared state an Annotation needs to materialize its
// display text: the deduplicated payload table, the global lock every
// RowData push/read and every Annotation text materialization goes
// through, and the display format currently selected for numeric
// payloads. One DecoderStatus backs an entire DecoderStack.
type DecoderStatus struct {
	lock        sync.Mutex
	resTable    *AnnotationResTable
	format      DisplayFormat
	hasNumeric  bool
}

func NewDecoderStatus() *DecoderStatus {
	return &DecoderStatus{resTable: NewAnnotationResTable(), format: FormatHex}
}

// Lock exposes the shared annotation lock so RowData can serialize pushes
// and subset reads against Annotation text materialization, per the
// concurrency model's single global lock.
func (s *DecoderStatus) Lock()   { s.lock.Lock() }
func (s *DecoderStatus) Unlock() { s.lock.Unlock() }

// reset clears the payload table for a fresh decode run. Caller must hold
// the lock.
func (s *DecoderStatus) reset() {
	s.resTable.Reset()
	s.hasNumeric = false
}

// Reset acquires the lock itself; use this from outside the package.
func (s *DecoderStatus) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.reset()
}

// SetDisplayFormat changes how numeric annotation payloads render. Takes
// effect lazily: cached conversions are invalidated one item at a time the
// next time each item's text is requested, by comparing CurDisplayFormat.
func (s *DecoderStatus) SetDisplayFormat(f DisplayFormat) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.format = f
}

func (s *DecoderStatus) DisplayFormat() DisplayFormat {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.format
}

func (s *DecoderStatus) HasNumeric() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.hasNumeric
}
