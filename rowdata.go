package decodecore

import "sync"

// RowData is one visible row's append-only annotation log. Annotations
// arrive from a single decode worker in non-decreasing start-sample order,
// so subset queries can do a linear scan without re-sorting.
//
// All mutation and reads go through the lock passed to NewRowData, the
// same shared lock an owning DecoderStack hands to its DecoderStatus, so a
// renderer reading a subset never observes a torn push.
type RowData struct {
	lock          *sync.Mutex
	annotations   []Annotation
	maxAnnotation uint64
	minAnnotation uint64

	// oomHook, when set, is consulted on every PushAnnotation; each push
	// for which it returns true reports out of memory instead of appending. Test-only: exercises the
	// out-of-memory path without actually exhausting the heap.
	oomHook func() bool
}

func NewRowData(lock *sync.Mutex) *RowData {
	return &RowData{lock: lock}
}

// PushAnnotation appends a, returning false if the append could not be
// completed (simulated or real allocation failure), mirroring
// push_annotation's bool return and catch(bad_alloc).
func (r *RowData) PushAnnotation(a Annotation) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.oomHook != nil && r.oomHook() {
		return false
	}

	r.annotations = append(r.annotations, a)

	span := a.EndSample - a.StartSample
	if span > r.maxAnnotation {
		r.maxAnnotation = span
	}
	if span != 0 {
		if r.minAnnotation == 0 {
			r.minAnnotation = span
		} else if span < r.minAnnotation {
			r.minAnnotation = span
		}
	}
	return true
}

// GetAnnotationSubset appends every annotation overlapping
// [startSample, endSample] to dest, in storage order.
func (r *RowData) GetAnnotationSubset(dest []Annotation, startSample, endSample uint64) []Annotation {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, a := range r.annotations {
		if a.EndSample > startSample && a.StartSample <= endSample {
			dest = append(dest, a)
		}
	}
	return dest
}

// GetAnnotationIndex returns the count of annotations whose start sample
// is <= startSample, i.e. the index of the first annotation strictly
// after startSample.
func (r *RowData) GetAnnotationIndex(startSample uint64) uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()

	var idx uint64
	for _, a := range r.annotations {
		if a.StartSample > startSample {
			break
		}
		idx++
	}
	return idx
}

// GetAnnotation returns the annotation at index, or false if out of range.
func (r *RowData) GetAnnotation(index uint64) (Annotation, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if index >= uint64(len(r.annotations)) {
		return Annotation{}, false
	}
	return r.annotations[index], true
}

// GetMaxSample returns the end sample of the last pushed annotation, or 0
// if the row is empty.
func (r *RowData) GetMaxSample() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()

	if len(r.annotations) == 0 {
		return 0
	}
	return r.annotations[len(r.annotations)-1].EndSample
}

func (r *RowData) GetMaxAnnotation() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.maxAnnotation
}

// GetMinAnnotation returns the smallest non-zero annotation span seen, or
// 10 if none has been observed yet (a rendering default, carried from the
// source's get_min_annotation).
func (r *RowData) GetMinAnnotation() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.minAnnotation == 0 {
		return 10
	}
	return r.minAnnotation
}

func (r *RowData) Size() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return uint64(len(r.annotations))
}

// Clear empties the row, releasing its annotations.
func (r *RowData) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.annotations = nil
	r.minAnnotation = 0
	// maxAnnotation is deliberately left as-is: clear() in the source
	// never resets _max_annotation, only _min_annotation and the count.
}

// setOOMHook installs a test-only allocation-failure simulator.
func (r *RowData) setOOMHook(hook func() bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.oomHook = hook
}
