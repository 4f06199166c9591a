package decodecore

import "sync"

// ChannelDesc identifies one channel slot a decoder definition declares,
// e.g. "SCL" on the i2c decoder. It is a value type so it can key a map
// the way the source keys by srd_channel pointer.
type ChannelDesc struct {
	ID   string
	Name string
}

// AnnotationRowDesc is one annotation-row a decoder definition declares:
// its description text and the set of annotation classes routed to it.
type AnnotationRowDesc struct {
	Desc    string
	Classes []int
}

// DecoderDescriptor is the static definition of a decoder kind: its
// identity, the channels it needs, and the annotation rows/classes it
// will emit. This is the Go analogue of a loaded srd_decoder.
type DecoderDescriptor struct {
	ID               DecoderID
	Name             string
	RequiredChannels []ChannelDesc
	OptionalChannels []ChannelDesc
	AnnotationRows   []AnnotationRowDesc
}

// Decoder is one entry in a DecoderStack: a descriptor plus the
// pending ("back", staged by configuration calls) and active (committed,
// in effect during a decode run) channel map, option map, and decode
// region. Commit atomically promotes pending state to active.
type Decoder struct {
	mu sync.Mutex

	descriptor DecoderDescriptor
	id         DecoderID
	shown      bool

	channels map[ChannelDesc]int
	options  map[string]OptionValue
	decodeStart uint64
	decodeEnd   uint64

	channelsBack    map[ChannelDesc]int
	optionsBack     map[string]OptionValue
	decodeStartBack uint64
	decodeEndBack   uint64

	setted bool
}

func NewDecoder(desc DecoderDescriptor) *Decoder {
	return &Decoder{
		descriptor:  desc,
		id:          desc.ID,
		shown:       true,
		channels:    make(map[ChannelDesc]int),
		options:     make(map[string]OptionValue),
		channelsBack: make(map[ChannelDesc]int),
		optionsBack:  make(map[string]OptionValue),
		setted:      true,
	}
}

func (d *Decoder) ID() DecoderID { return d.id }

func (d *Decoder) Descriptor() DecoderDescriptor { return d.descriptor }

func (d *Decoder) Shown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

func (d *Decoder) Show(show bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = show
}

// SetChannelMap stages a new channel -> signal index mapping, to take
// effect on the next Commit.
func (d *Decoder) SetChannelMap(probes map[ChannelDesc]int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make(map[ChannelDesc]int, len(probes))
	for k, v := range probes {
		cp[k] = v
	}
	d.channelsBack = cp
	d.setted = true
}

// SetOption stages one option's value, to take effect on the next Commit.
func (d *Decoder) SetOption(id string, value OptionValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.optionsBack[id] = value
	d.setted = true
}

// SetDecodeRegion stages a new decode sample range.
func (d *Decoder) SetDecodeRegion(start, end uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decodeStartBack = start
	d.decodeEndBack = end
	if d.decodeStart != start || d.decodeEnd != end {
		d.setted = true
	}
}

// Channels returns the active (committed) channel map.
func (d *Decoder) Channels() map[ChannelDesc]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make(map[ChannelDesc]int, len(d.channels))
	for k, v := range d.channels {
		cp[k] = v
	}
	return cp
}

func (d *Decoder) Options() map[string]OptionValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make(map[string]OptionValue, len(d.options))
	for k, v := range d.options {
		cp[k] = v
	}
	return cp
}

func (d *Decoder) DecodeStart() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decodeStart
}

func (d *Decoder) DecodeEnd() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decodeEnd
}

// ResetStart copies only the pending decode start onto the active decode
// start; it does not touch decode end and does not otherwise commit
// pending channel/option state. Called unconditionally for every decoder
// whenever the stack's row set is rebuilt.
func (d *Decoder) ResetStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decodeStart = d.decodeStartBack
}

// Commit promotes pending channel/option/region state to active if
// anything was staged since the last commit, reporting whether it did so.
func (d *Decoder) Commit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.setted {
		return false
	}
	d.channels = d.channelsBack
	d.options = d.optionsBack
	d.decodeStart = d.decodeStartBack
	d.decodeEnd = d.decodeEndBack
	d.setted = false
	return true
}

// HaveRequiredProbes reports whether every non-optional channel the
// descriptor declares has been mapped to a signal index.
func (d *Decoder) HaveRequiredProbes() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.descriptor.RequiredChannels {
		if _, ok := d.channels[ch]; !ok {
			return false
		}
	}
	return true
}

// DeclaresChannels reports whether this decoder reads directly from
// acquired channels, as opposed to one stacked purely on another
// decoder's output. A decoder with no required channels in its descriptor
// never declares channels regardless of how it's mapped.
func (d *Decoder) DeclaresChannels() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.descriptor.RequiredChannels) > 0
}

// ChannelSignalIndices returns, for each required channel in declared
// order, the mapped signal index, or -1 when unmapped (always present by
// the time HaveRequiredProbes is true, but used before that by diagnostics).
func (d *Decoder) ChannelSignalIndices() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.descriptor.RequiredChannels))
	for i, ch := range d.descriptor.RequiredChannels {
		if idx, ok := d.channels[ch]; ok {
			out[i] = idx
		} else {
			out[i] = -1
		}
	}
	return out
}
