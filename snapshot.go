package decodecore

import "sync"

// SampleBlock is an opaque handle to a borrowed slab of sample memory, so
// a Snapshot implementation that pools or reference-counts its buffers can
// reclaim one once the decode engine has consumed it.
type SampleBlock interface{}

// Snapshot is the acquisition-side collaborator a DecoderStack decodes
// against: a logical array of per-channel sample streams, indexed by
// sample number and by "signal index" (the acquisition layer's stable
// channel identifier, distinct from a decoder's own ChannelDesc). A
// DecoderStack never owns or acquires samples itself; it is handed a
// Snapshot and reads through this interface.
type Snapshot interface {
	// Len is the total number of samples captured so far.
	Len() uint64
	// RingCount is how many samples are currently available to read
	// without blocking (may be less than Len for a streaming source).
	RingCount() uint64
	// AlignedCount is RingCount rounded down to a boundary the decode
	// engine can safely stop at (e.g. a whole-byte boundary for
	// byte-packed channels).
	AlignedCount() uint64
	// IsCaptureEnd reports whether acquisition has finished, so a
	// consumer knows RingCount/AlignedCount will not grow further.
	IsCaptureEnd() bool
	// IsRealtimeRefresh reports whether this snapshot is being fed by a
	// continuously running (realtime) acquisition rather than a single
	// completed capture.
	IsRealtimeRefresh() bool
	// IsAbleFree reports whether GetSamples blocks belong to the caller
	// (and so must be released via FreeDecodeBlock) or are owned by the
	// snapshot itself.
	IsAbleFree() bool
	// HasData reports whether sigIndex names a channel with any data at
	// all in this snapshot.
	HasData(sigIndex int) bool
	// GetSamples returns the contiguous byte run for sigIndex starting
	// at sample i, the sample index one past the end of that
	// contiguous run (chunkEnd), and a handle to release when done.
	GetSamples(i uint64, sigIndex int) (data []byte, chunkEnd uint64, block SampleBlock)
	// GetSample returns a single channel's constant byte value, used
	// when the channel has no per-sample data but a best-effort constant
	// last-known value.
	GetSample(i uint64, sigIndex int) uint8
	// FreeDecodeBlock releases a block obtained from GetSamples when
	// IsAbleFree is true.
	FreeDecodeBlock(block SampleBlock)
	// SampleRate is the acquisition sample rate in Hz.
	SampleRate() float64
}

// MemorySnapshot is a reference Snapshot backed by fixed in-memory
// per-channel buffers: a single completed capture with no streaming or
// pooling behavior, useful for tests and for decoding against a plain
// recorded buffer.
type MemorySnapshot struct {
	mu         sync.Mutex
	channels   map[int][]byte
	sampleRate float64
	realtime   bool
}

func NewMemorySnapshot(sampleRate float64) *MemorySnapshot {
	return &MemorySnapshot{channels: make(map[int][]byte), sampleRate: sampleRate}
}

// SetChannel installs the full sample buffer for signal index sigIndex.
func (m *MemorySnapshot) SetChannel(sigIndex int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[sigIndex] = data
}

func (m *MemorySnapshot) Len() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lenLocked()
}

func (m *MemorySnapshot) lenLocked() uint64 {
	var max uint64
	for _, d := range m.channels {
		if uint64(len(d)) > max {
			max = uint64(len(d))
		}
	}
	return max
}

func (m *MemorySnapshot) RingCount() uint64     { return m.Len() }
func (m *MemorySnapshot) AlignedCount() uint64  { return m.Len() }
func (m *MemorySnapshot) IsCaptureEnd() bool    { return true }
func (m *MemorySnapshot) IsRealtimeRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realtime
}
func (m *MemorySnapshot) IsAbleFree() bool { return false }

func (m *MemorySnapshot) HasData(sigIndex int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.channels[sigIndex]
	return ok && len(d) > 0
}

func (m *MemorySnapshot) GetSamples(i uint64, sigIndex int) ([]byte, uint64, SampleBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.channels[sigIndex]
	if i >= uint64(len(d)) {
		return nil, i, nil
	}
	return d[i:], uint64(len(d)), nil
}

func (m *MemorySnapshot) GetSample(i uint64, sigIndex int) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.channels[sigIndex]
	if i >= uint64(len(d)) {
		return 0
	}
	return d[i]
}

func (m *MemorySnapshot) FreeDecodeBlock(block SampleBlock) {}

func (m *MemorySnapshot) SampleRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleRate
}
