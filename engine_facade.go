package decodecore

// Engine compiles and runs decoder program modules. A DecoderStack talks to
// exactly one Engine, obtaining a fresh Session for each decode run: the
// Go-native analogue of libsigrokdecode's srd_session, sandboxing
// third-party decoder code the stack never trusts directly.
type Engine interface {
	// NewSession starts a fresh decode session. Sessions are not
	// reentrant: one Session serves exactly one execute_decode_stack run.
	NewSession() (Session, error)
}

// Session is one decode run's engine-side state: a stack of decoder
// instances plus the callback through which they emit annotations.
type Session interface {
	// NewInstance instantiates decoderID with the given committed
	// options, returning a fresh Instance. Never reuses an instance
	// across decode runs.
	NewInstance(decoderID DecoderID, options map[string]OptionValue) (Instance, error)
	// Stack links next to receive lower-level output from prev,
	// mirroring srd_inst_stack.
	Stack(prev, next Instance) error
	// SetSampleRate hands the acquisition sample rate to the session.
	// The wazero-backed session in engine/ accepts it without passing it
	// on to its instances.
	SetSampleRate(rate float64) error
	// AddAnnotationCallback registers the single host callback every
	// instance's annotation output is routed through.
	AddAnnotationCallback(cb func(EngineEvent)) error
	// Start runs each instance's start handler.
	Start() error
	// Send feeds one chunk of samples, [start, end), to the root
	// instance. feeds is ordered the same as the root instance's
	// declared required channels.
	Send(start, end uint64, feeds []ChannelFeed) error
	// End signals end-of-data to every instance.
	End() error
	// Close tears the session down, releasing every instance. Idempotent.
	Close() error
}

// Instance is one decoder's running engine-side state within a Session.
type Instance interface {
	// SetChannelMap informs the instance which signal index feeds each
	// of its declared required channels, in declaration order (-1 for an
	// unmapped channel).
	SetChannelMap(sigIndices []int) error
	// DeclaresChannels reports whether this instance is a root decoder
	// (reads directly from acquired channels) as opposed to a stacked
	// decoder that only consumes another instance's output.
	DeclaresChannels() bool
}

// ChannelFeed is one channel's sample data for one Session.Send call: a
// contiguous byte run, or, when Data is nil, a constant last-known value.
type ChannelFeed struct {
	Data  []byte
	Const uint8
}

// EngineEvent is one annotation emission from a decoder instance, the Go
// shape of the host_emit_annotation callback payload.
type EngineEvent struct {
	DecoderID   DecoderID
	StartSample uint64
	EndSample   uint64
	AnnClass    int
	AnnType     int
	AnnText     []string
	NumberHex   string
}
