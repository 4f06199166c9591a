package decodecore

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxChunk bounds how many samples one engine.Send call carries at a time,
// so a very long capture still yields control (and a chance to observe
// cancellation) at regular intervals.
const MaxChunk = 16 * 1024

// DecodeState is the DecoderStack's run state.
type DecodeState int

const (
	Stopped DecodeState = iota
	Running
)

// classRowKey routes one decoder's annotation class to the Row it belongs
// on, populated by buildRow from each decoder's declared annotation rows.
type classRowKey struct {
	Decoder DecoderID
	Class   int
}

// taskStatus is a cooperative cancellation flag for one decode run. A new
// one is created per BeginDecodeWork call; StopDecodeWork marks the
// current one stopped without blocking for the worker to notice.
type taskStatus struct {
	stopped atomic.Bool
}

func newTaskStatus() *taskStatus { return &taskStatus{} }
func (t *taskStatus) stop()      { t.stopped.Store(true) }
func (t *taskStatus) Stopped() bool { return t.stopped.Load() }

// DecoderStack owns an ordered stack of decoders, the rows their output is
// routed into, and the single worker-goroutine feed loop that drives a
// decode run against an external Snapshot through an Engine.
type DecoderStack struct {
	mu sync.Mutex

	status *DecoderStatus

	stack []*Decoder

	rows      map[Row]*RowData
	classRows map[classRowKey]Row
	rowsGShow map[Row]bool
	rowsLShow map[Row]bool

	errorMessage   string
	progress       int
	samplesDecoded int64
	sampleRate     float64
	sampleCount    uint64
	noMemory       bool
	optionsChanged bool
	decodeState    DecodeState
	task           *taskStatus

	engine   Engine
	snapshot Snapshot

	signals *StackSignals
}

func NewDecoderStack(eng Engine) *DecoderStack {
	return &DecoderStack{
		status:    NewDecoderStatus(),
		rows:      make(map[Row]*RowData),
		classRows: make(map[classRowKey]Row),
		rowsGShow: make(map[Row]bool),
		rowsLShow: make(map[Row]bool),
		engine:    eng,
		signals:   NewStackSignals(),
	}
}

func (ds *DecoderStack) Status() *DecoderStatus { return ds.status }
func (ds *DecoderStack) Signals() *StackSignals { return ds.signals }

// SetSnapshot wires the acquisition-side collaborator a decode run reads
// samples from. Out of scope for the stack itself to create (spec.md
// places acquisition outside this package); callers inject one.
func (ds *DecoderStack) SetSnapshot(s Snapshot) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.snapshot = s
}

// AddSubDecoder appends dec to the stack, rebuilds the row set, and marks
// options changed so the next decode run picks it up.
func (ds *DecoderStack) AddSubDecoder(dec *Decoder) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.stack = append(ds.stack, dec)
	ds.buildRowLocked()
	ds.optionsChanged = true
}

// RemoveSubDecoder removes dec from the stack if present.
func (ds *DecoderStack) RemoveSubDecoder(dec *Decoder) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for i, d := range ds.stack {
		if d == dec {
			ds.stack = append(ds.stack[:i], ds.stack[i+1:]...)
			break
		}
	}
	ds.buildRowLocked()
	ds.optionsChanged = true
}

// CommitAll applies every decoder's staged configuration and rebuilds the
// row set, reporting whether anything changed. Callers use this after a
// batch of SetOption/SetChannelMap/SetDecodeRegion calls.
func (ds *DecoderStack) CommitAll() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	changed := false
	for _, dec := range ds.stack {
		if dec.Commit() {
			changed = true
		}
	}
	if changed {
		ds.buildRowLocked()
		ds.optionsChanged = true
	}
	return changed
}

// buildRowLocked rebuilds the row set and class-to-row map from the current
// stack. Every decoder contributes a default, row-less fallback row
// (reachable when an emitted class has no declared row, or has not been
// mapped by the decoder's own annotation-row classes) plus one row per
// declared annotation-row.
func (ds *DecoderStack) buildRowLocked() {
	for _, rd := range ds.rows {
		rd.Clear()
	}
	ds.rows = make(map[Row]*RowData)
	ds.classRows = make(map[classRowKey]Row)

	for _, dec := range ds.stack {
		dec.ResetStart()
		desc := dec.descriptor

		defaultRow := NewDefaultRow(dec.id, desc.Name)
		ds.rows[defaultRow] = NewRowData(&ds.status.lock)
		ds.ensureVisibilityDefaultLocked(defaultRow)

		for order, annRow := range desc.AnnotationRows {
			row := NewAnnotationRow(dec.id, desc.Name, AnnRowID(order), annRow.Desc, order)
			ds.rows[row] = NewRowData(&ds.status.lock)
			ds.ensureVisibilityDefaultLocked(row)

			for _, class := range annRow.Classes {
				ds.classRows[classRowKey{Decoder: dec.id, Class: class}] = row
			}
		}
	}
}

func (ds *DecoderStack) ensureVisibilityDefaultLocked(row Row) {
	if _, ok := ds.rowsGShow[row]; ok {
		return
	}
	ds.rowsGShow[row] = true
	ds.rowsLShow[row] = !row.hidesByDefault()
}

// ListRows returns every row a decoder actually declared (the default
// fallback row for a decoder that declares no annotation rows of its own,
// plus every declared annotation-row); a decoder's fallback row is
// suppressed from this list when it also declares named rows, matching
// build_row's original row set even though the fallback key always exists
// internally for routing.
func (ds *DecoderStack) ListRows() []Row {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	var out []Row
	for _, dec := range ds.stack {
		if len(dec.descriptor.AnnotationRows) == 0 {
			out = append(out, NewDefaultRow(dec.id, dec.descriptor.Name))
			continue
		}
		for order, annRow := range dec.descriptor.AnnotationRows {
			out = append(out, NewAnnotationRow(dec.id, dec.descriptor.Name, AnnRowID(order), annRow.Desc, order))
		}
	}
	return out
}

// RowVisible reports whether row is shown, combining the global and local
// (current view) visibility flags. Only the local flags are persisted,
// through VisibilityByTitleID.
func (ds *DecoderStack) RowVisible(row Row) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.rowsGShow[row] && ds.rowsLShow[row]
}

// SetRowVisibility updates a row's local visibility flag.
func (ds *DecoderStack) SetRowVisibility(row Row, visible bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.rowsLShow[row] = visible
}

// VisibilityByTitleID exports the local-show flags keyed by Row.TitleID
// rather than by Row itself, so visibility choices survive a restart even
// if a decoder's position in the stack changes.
func (ds *DecoderStack) VisibilityByTitleID() map[string]bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	out := make(map[string]bool, len(ds.rowsLShow))
	for row, shown := range ds.rowsLShow {
		out[row.TitleID()] = shown
	}
	return out
}

// ApplyVisibilityByTitleID restores local-show flags saved by
// VisibilityByTitleID, matching them against the stack's current rows by
// TitleID rather than by the (possibly stale) Row value itself. Matching
// ignores case, since a config file read back through viper has its map
// keys lowercased.
func (ds *DecoderStack) ApplyVisibilityByTitleID(saved map[string]bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	lowered := make(map[string]bool, len(saved))
	for id, shown := range saved {
		lowered[strings.ToLower(id)] = shown
	}
	for row := range ds.rowsGShow {
		if shown, ok := lowered[strings.ToLower(row.TitleID())]; ok {
			ds.rowsLShow[row] = shown
		}
	}
}

// GetAnnotationSubset returns every annotation on row overlapping
// [startSample, endSample].
func (ds *DecoderStack) GetAnnotationSubset(row Row, startSample, endSample uint64) ([]Annotation, error) {
	ds.mu.Lock()
	rd, ok := ds.rows[row]
	ds.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRow
	}
	return rd.GetAnnotationSubset(nil, startSample, endSample), nil
}

func (ds *DecoderStack) GetAnnotationIndex(row Row, startSample uint64) (uint64, error) {
	ds.mu.Lock()
	rd, ok := ds.rows[row]
	ds.mu.Unlock()
	if !ok {
		return 0, ErrUnknownRow
	}
	return rd.GetAnnotationIndex(startSample), nil
}

func (ds *DecoderStack) ErrorMessage() string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.errorMessage
}

func (ds *DecoderStack) setErrorMessage(msg string) {
	ds.mu.Lock()
	ds.errorMessage = msg
	ds.mu.Unlock()
}

func (ds *DecoderStack) Progress() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.progress
}

func (ds *DecoderStack) SamplesDecoded() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.samplesDecoded
}

func (ds *DecoderStack) DecodeState() DecodeState {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.decodeState
}

func (ds *DecoderStack) OutOfMemory() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.noMemory
}

func (ds *DecoderStack) OptionsChanged() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.optionsChanged
}

// BeginDecodeWork runs one full decode cycle synchronously; the caller is
// expected to invoke it on a dedicated goroutine, matching the single
// worker-thread scheduling rule: a renderer or RPC handler should `go
// stack.BeginDecodeWork()` rather than call it inline.
func (ds *DecoderStack) BeginDecodeWork() error {
	ds.mu.Lock()
	if ds.decodeState != Stopped {
		ds.mu.Unlock()
		return ErrAlreadyDecoding
	}
	if len(ds.stack) == 0 {
		ds.mu.Unlock()
		return ErrNoDecoders
	}
	if !ds.optionsChanged {
		ds.mu.Unlock()
		return ErrNothingChanged
	}
	ds.errorMessage = ""
	ds.decodeState = Running
	ds.mu.Unlock()

	ds.doDecodeWork()

	ds.mu.Lock()
	ds.decodeState = Stopped
	ds.mu.Unlock()
	return nil
}

// StopDecodeWork requests cancellation of the in-progress decode, if any.
// Non-blocking: it sets the stop flag and returns; DecodeState settles
// back to Stopped once the worker goroutine observes the flag and exits.
func (ds *DecoderStack) StopDecodeWork() {
	ds.mu.Lock()
	if ds.task != nil {
		ds.task.stop()
	}
	ds.mu.Unlock()
}

func (ds *DecoderStack) doDecodeWork() {
	ds.mu.Lock()
	task := newTaskStatus()
	ds.task = task
	ds.optionsChanged = false
	ds.progress = 0
	ds.samplesDecoded = 0
	ds.noMemory = false
	stack := append([]*Decoder(nil), ds.stack...)
	snapshot := ds.snapshot
	ds.mu.Unlock()

	ds.status.Reset()

	for _, dec := range stack {
		if !dec.HaveRequiredProbes() {
			ds.setErrorMessage(ErrMissingRequiredChannel.Error())
			return
		}
	}

	if snapshot == nil {
		ds.setErrorMessage(ErrNoBackingSnapshot.Error())
		return
	}

	first := stack[0]
	found := false
	for _, sig := range first.ChannelSignalIndices() {
		if sig >= 0 && snapshot.HasData(sig) {
			found = true
			break
		}
	}
	if !found {
		ds.setErrorMessage(ErrMissingRequiredChannel.Error())
		return
	}

	if !snapshot.IsRealtimeRefresh() && snapshot.Len() == 0 {
		ds.setErrorMessage(ErrEmptyDecodeRegion.Error())
		return
	}

	rate := snapshot.SampleRate()
	if rate <= 0 {
		ds.setErrorMessage(ErrInvalidSampleRate.Error())
		return
	}

	ds.mu.Lock()
	ds.sampleRate = rate
	ds.sampleCount = snapshot.RingCount()
	ds.mu.Unlock()

	ds.executeDecodeStack(stack, snapshot, task)
}

// executeDecodeStack builds the engine-side session for stack, feeds it
// samples via decodeData, and tears it down.
func (ds *DecoderStack) executeDecodeStack(stack []*Decoder, snapshot Snapshot, task *taskStatus) {
	session, err := ds.engine.NewSession()
	if err != nil {
		ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
		return
	}
	defer session.Close()

	if err := session.SetSampleRate(ds.sampleRate); err != nil {
		ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
		return
	}
	if err := session.AddAnnotationCallback(func(evt EngineEvent) { ds.routeAnnotation(evt, task) }); err != nil {
		ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
		return
	}

	var prev Instance
	var instances []Instance
	for _, dec := range stack {
		inst, err := session.NewInstance(dec.id, dec.Options())
		if err != nil {
			ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
			return
		}
		if err := inst.SetChannelMap(dec.ChannelSignalIndices()); err != nil {
			ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
			return
		}
		if prev != nil {
			if err := session.Stack(prev, inst); err != nil {
				ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
				return
			}
		}
		prev = inst
		instances = append(instances, inst)
	}

	decodeStart := stack[0].DecodeStart()
	var decodeEnd uint64
	if snapshot.IsRealtimeRefresh() {
		for _, dec := range stack {
			if e := dec.DecodeEnd(); e > decodeEnd {
				decodeEnd = e
			}
		}
	} else {
		decodeEnd = stack[0].DecodeEnd()
		if ds.sampleCount > 0 && decodeEnd > ds.sampleCount-1 {
			decodeEnd = ds.sampleCount - 1
		}
	}

	if err := session.Start(); err != nil {
		ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
		return
	}

	ds.decodeData(decodeStart, decodeEnd, session, instances[0], snapshot, task)

	ds.signals.NotifyDecodeDone()
}

// decodeData is the feed loop: it walks [start, end] in MaxChunk-bounded
// pieces, pulling sample data for the root instance's mapped channels from
// snapshot and handing each chunk to the engine.
func (ds *DecoderStack) decodeData(start, end uint64, session Session, root Instance, snapshot Snapshot, task *taskStatus) {
	dec := ds.rootDecoder()
	if dec == nil {
		ds.setErrorMessage(fmt.Sprintf("%s: no decoder in the stack declares channels", ErrMissingRequiredChannel))
		return
	}
	sigIdx := dec.ChannelSignalIndices()

	i := start
	endIdx := end
	checkedCaptureEnd := false

	notifyEvery := (end - start + 1) / 100
	if notifyEvery == 0 {
		notifyEvery = 1
	}
	var lastNotify uint64

	var sendErr error
	stoppedEarly := false

	for i < endIdx {
		if task.Stopped() || ds.OutOfMemory() {
			stoppedEarly = true
			break
		}

		if snapshot.IsCaptureEnd() {
			if !checkedCaptureEnd {
				checkedCaptureEnd = true
				aligned := snapshot.AlignedCount()
				if aligned > 0 && endIdx >= aligned {
					endIdx = aligned - 1
				}
			}
		} else if i >= snapshot.RingCount() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		chunkEnd := endIdx
		feeds := make([]ChannelFeed, len(sigIdx))
		for ci, sig := range sigIdx {
			if sig < 0 {
				continue
			}
			if !snapshot.HasData(sig) {
				sendErr = ErrMissingRequiredChannel
				stoppedEarly = true
				break
			}
			data, ce, block := snapshot.GetSamples(i, sig)
			if ce < chunkEnd {
				chunkEnd = ce
			}
			feeds[ci] = ChannelFeed{Data: data, Const: snapshot.GetSample(i, sig)}
			if snapshot.IsAbleFree() {
				snapshot.FreeDecodeBlock(block)
			}
		}
		if stoppedEarly {
			break
		}
		if chunkEnd > endIdx {
			chunkEnd = endIdx
		}
		if chunkEnd-i > MaxChunk {
			chunkEnd = i + MaxChunk
		}
		if chunkEnd <= i {
			chunkEnd = i + 1
		}
		for ci := range feeds {
			if n := chunkEnd - i; uint64(len(feeds[ci].Data)) > n {
				feeds[ci].Data = feeds[ci].Data[:n]
			}
		}

		if err := session.Send(i, chunkEnd, feeds); err != nil {
			sendErr = err
			stoppedEarly = true
			break
		}

		i = chunkEnd

		ds.mu.Lock()
		ds.samplesDecoded = int64(i-start) + 1
		if endIdx > 0 {
			ds.progress = int((i - start) * 100 / endIdx)
		}
		ds.mu.Unlock()

		if i-lastNotify >= notifyEvery {
			lastNotify = i
			ds.signals.NotifyDecodeData()
		}
	}

	if sendErr != nil {
		ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, sendErr))
	} else if !stoppedEarly {
		if err := session.End(); err != nil {
			ds.setErrorMessage(fmt.Sprintf("%s: %v", ErrEngineFailure, err))
		}
	}
}

// rootDecoder returns the first decoder in the stack that declares
// channels, i.e. reads directly from acquired data rather than from
// another decoder's output.
func (ds *DecoderStack) rootDecoder() *Decoder {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, dec := range ds.stack {
		if dec.DeclaresChannels() {
			return dec
		}
	}
	return nil
}

// routeAnnotation is the engine callback: it interns evt's payload, then
// routes the resulting Annotation to the row its class maps to, falling
// back to the emitting decoder's default row when the class has no
// declared mapping.
func (ds *DecoderStack) routeAnnotation(evt EngineEvent, task *taskStatus) {
	if task.Stopped() {
		return
	}
	if ds.OutOfMemory() {
		return
	}

	ann := NewAnnotation(evt.StartSample, evt.EndSample, evt.AnnClass, evt.AnnType, evt.AnnText, evt.NumberHex, ds.status)

	ds.mu.Lock()
	row, ok := ds.classRows[classRowKey{Decoder: evt.DecoderID, Class: evt.AnnClass}]
	if !ok {
		row = NewDefaultRow(evt.DecoderID, "")
		for r := range ds.rows {
			if r.Decoder == evt.DecoderID && r.IsDefault() {
				row = r
				break
			}
		}
	}
	rd, ok := ds.rows[row]
	ds.mu.Unlock()

	if !ok {
		return
	}

	if !rd.PushAnnotation(ann) {
		ds.mu.Lock()
		ds.noMemory = true
		ds.mu.Unlock()
	}
}
