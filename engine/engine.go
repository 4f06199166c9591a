package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/scopeworks/decodecore"
)

const (
	exportAlloc          = "decoder_alloc"
	exportInit           = "decoder_init"
	exportSetOption      = "decoder_set_option"
	exportChannelSetAll  = "decoder_channel_set_all"
	exportStart          = "decoder_start"
	exportDecode         = "decoder_decode"
	exportEnd            = "decoder_end"
	importEmitAnnotation = "host_emit_annotation"
	hostModuleName       = "host"
)

// Engine compiles one WASM module per decoder kind and instantiates a
// fresh guest per decode session, mirroring how gherkin.Engine compiles
// its core module once and creates a new instance per call because the
// guest side is not designed for re-entrance.
type Engine struct {
	runtime  wazero.Runtime
	compiled map[decodecore.DecoderID]wazero.CompiledModule
	counter  atomic.Uint64
}

func NewEngine(ctx context.Context) *Engine {
	return &Engine{
		runtime:  wazero.NewRuntime(ctx),
		compiled: make(map[decodecore.DecoderID]wazero.CompiledModule),
	}
}

// LoadDecoderModule compiles wasmBytes as the guest program for decoderID.
// Compilation happens once; every session instantiates fresh from the
// cached wazero.CompiledModule.
func (e *Engine) LoadDecoderModule(ctx context.Context, decoderID decodecore.DecoderID, wasmBytes []byte) error {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("engine: compile module for %q: %w", decoderID, err)
	}
	e.compiled[decoderID] = compiled
	return nil
}

func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// NewSession implements decodecore.Engine.
func (e *Engine) NewSession() (decodecore.Session, error) {
	ctx := context.Background()
	s := &session{engine: e, ctx: ctx, instances: make(map[string]*instance)}
	hostMod, err := instantiateHostModule(ctx, e.runtime, s)
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate host module: %w", err)
	}
	s.hostMod = hostMod
	return s, nil
}

type session struct {
	engine    *Engine
	ctx       context.Context
	hostMod   api.Module
	instances map[string]*instance
	order     []*instance
	callback  func(decodecore.EngineEvent)
}

func (s *session) NewInstance(decoderID decodecore.DecoderID, options map[string]decodecore.OptionValue) (decodecore.Instance, error) {
	compiled, ok := s.engine.compiled[decoderID]
	if !ok {
		return nil, fmt.Errorf("engine: no compiled module loaded for decoder %q", decoderID)
	}

	id := s.engine.counter.Add(1)
	name := fmt.Sprintf("%s-%d", decoderID, id)

	mod, err := s.engine.runtime.InstantiateModule(s.ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate %q: %w", decoderID, err)
	}

	inst := &instance{mod: mod, decoderID: decoderID, session: s}
	inst.alloc = mod.ExportedFunction(exportAlloc)
	if inst.alloc == nil {
		mod.Close(s.ctx)
		return nil, fmt.Errorf("engine: %q does not export %s", decoderID, exportAlloc)
	}
	inst.mem = mod.Memory()
	if inst.mem == nil {
		mod.Close(s.ctx)
		return nil, fmt.Errorf("engine: %q does not export memory", decoderID)
	}

	if initFn := mod.ExportedFunction(exportInit); initFn != nil {
		if _, err := initFn.Call(s.ctx); err != nil {
			mod.Close(s.ctx)
			return nil, fmt.Errorf("engine: %q decoder_init: %w", decoderID, err)
		}
	}

	for key, value := range options {
		if err := inst.setOption(s.ctx, key, value); err != nil {
			mod.Close(s.ctx)
			return nil, err
		}
	}

	s.instances[name] = inst
	s.order = append(s.order, inst)
	return inst, nil
}

// rootInstance returns the first instance in stacking order that declares
// channels, i.e. reads directly from acquired data rather than from
// another instance's output.
func (s *session) rootInstance() *instance {
	for _, inst := range s.order {
		if inst.DeclaresChannels() {
			return inst
		}
	}
	return nil
}

func (s *session) Stack(prev, next decodecore.Instance) error {
	// Guest modules consume their upstream's decoded output by calling
	// back into the host the same way they emit annotations; linking two
	// instances is therefore bookkeeping on the host side only (which
	// instance feeds which), not an engine call. Nothing to do beyond
	// recording order, which NewInstance already does.
	return nil
}

func (s *session) SetSampleRate(rate float64) error {
	// Sample rate is informational for guests that want to translate
	// sample counts to wall-clock time; no guest export currently
	// consumes it, so this is a no-op reserved for future decoders.
	return nil
}

func (s *session) AddAnnotationCallback(cb func(decodecore.EngineEvent)) error {
	s.callback = cb
	return nil
}

func (s *session) Start() error {
	for _, inst := range s.order {
		fn := inst.mod.ExportedFunction(exportStart)
		if fn == nil {
			continue
		}
		results, err := fn.Call(s.ctx)
		if err != nil {
			return fmt.Errorf("engine: %q decoder_start: %w", inst.decoderID, err)
		}
		if len(results) > 0 && int32(results[0]) != 0 {
			return fmt.Errorf("engine: %q decoder_start returned error code %d", inst.decoderID, int32(results[0]))
		}
	}
	return nil
}

func (s *session) Send(start, end uint64, feeds []decodecore.ChannelFeed) error {
	if len(s.order) == 0 {
		return fmt.Errorf("engine: send with no instances in session")
	}
	root := s.rootInstance()
	if root == nil {
		return fmt.Errorf("engine: no instance in session declares channels")
	}

	entries := make([]feedHeaderEntry, len(feeds))
	for i, f := range feeds {
		if f.Data == nil {
			entries[i] = feedHeaderEntry{IsConst: true, ConstVal: f.Const}
			continue
		}
		ptr, err := root.guestAlloc(s.ctx, uint32(len(f.Data)))
		if err != nil {
			return fmt.Errorf("engine: allocate feed buffer: %w", err)
		}
		if !root.mem.Write(ptr, f.Data) {
			return fmt.Errorf("engine: write feed buffer out of bounds")
		}
		entries[i] = feedHeaderEntry{Ptr: ptr, Length: uint32(len(f.Data))}
	}

	header := encodeFeedHeader(entries)
	headerPtr, err := root.guestAlloc(s.ctx, uint32(len(header)))
	if err != nil {
		return fmt.Errorf("engine: allocate feed header: %w", err)
	}
	if !root.mem.Write(headerPtr, header) {
		return fmt.Errorf("engine: write feed header out of bounds")
	}

	fn := root.mod.ExportedFunction(exportDecode)
	if fn == nil {
		return fmt.Errorf("engine: %q does not export %s", root.decoderID, exportDecode)
	}
	results, err := fn.Call(s.ctx, start, end, uint64(headerPtr), uint64(len(entries)))
	if err != nil {
		return fmt.Errorf("engine: %q decoder_decode: %w", root.decoderID, err)
	}
	if len(results) > 0 && int32(results[0]) != 0 {
		return fmt.Errorf("engine: %q decoder_decode returned error code %d", root.decoderID, int32(results[0]))
	}
	return nil
}

func (s *session) End() error {
	for _, inst := range s.order {
		fn := inst.mod.ExportedFunction(exportEnd)
		if fn == nil {
			continue
		}
		if _, err := fn.Call(s.ctx); err != nil {
			return fmt.Errorf("engine: %q decoder_end: %w", inst.decoderID, err)
		}
	}
	return nil
}

func (s *session) Close() error {
	for _, inst := range s.order {
		if err := inst.mod.Close(s.ctx); err != nil {
			return err
		}
	}
	if s.hostMod != nil {
		return s.hostMod.Close(s.ctx)
	}
	return nil
}

// instance is one decoder's engine-side handle within a session.
type instance struct {
	mod              api.Module
	mem              api.Memory
	alloc            api.Function
	decoderID        decodecore.DecoderID
	session          *session
	declaresChannels bool
}

func (i *instance) guestAlloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := i.alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("decoder_alloc failed: %w", err)
	}
	return api.DecodeU32(results[0]), nil
}

func (i *instance) setOption(ctx context.Context, key string, value decodecore.OptionValue) error {
	fn := i.mod.ExportedFunction(exportSetOption)
	if fn == nil {
		return nil
	}
	keyBytes := []byte(key)
	keyPtr, err := i.guestAlloc(ctx, uint32(len(keyBytes)))
	if err != nil {
		return err
	}
	if !i.mem.Write(keyPtr, keyBytes) {
		return fmt.Errorf("engine: write option key out of bounds")
	}

	var strPtr, strLen uint32
	var intVal uint64
	var floatVal float64
	switch value.Kind {
	case decodecore.OptionInt64:
		intVal = uint64(value.Int)
	case decodecore.OptionFloat64:
		floatVal = value.Float
	case decodecore.OptionBool:
		if value.Bool {
			intVal = 1
		}
	case decodecore.OptionString:
		sb := []byte(value.Str)
		strPtr, err = i.guestAlloc(ctx, uint32(len(sb)))
		if err != nil {
			return err
		}
		if !i.mem.Write(strPtr, sb) {
			return fmt.Errorf("engine: write option string out of bounds")
		}
		strLen = uint32(len(sb))
	case decodecore.OptionMatrix:
		// Matrix-valued options are a host-side-only concept for
		// calibration/basis style decoders; there is no guest export
		// that currently consumes one, so it is not forwarded across
		// the ABI. Decoders needing it read it back from the host via
		// a future export, not modeled here.
		return nil
	}

	results, err := fn.Call(ctx, uint64(keyPtr), uint64(len(keyBytes)), uint64(value.Kind), intVal, math.Float64bits(floatVal), uint64(strPtr), uint64(strLen))
	if err != nil {
		return fmt.Errorf("engine: %q decoder_set_option(%s): %w", i.decoderID, key, err)
	}
	if len(results) > 0 && int32(results[0]) != 0 {
		return fmt.Errorf("engine: %q decoder_set_option(%s) returned error code %d", i.decoderID, key, int32(results[0]))
	}
	return nil
}

func (i *instance) SetChannelMap(sigIndices []int) error {
	i.declaresChannels = len(sigIndices) > 0
	fn := i.mod.ExportedFunction(exportChannelSetAll)
	if fn == nil {
		return nil
	}
	header := encodeChannelMapHeader(sigIndices)
	ptr, err := i.guestAlloc(i.session.ctx, uint32(len(header)))
	if err != nil {
		return err
	}
	if len(header) > 0 && !i.mem.Write(ptr, header) {
		return fmt.Errorf("engine: write channel map out of bounds")
	}
	results, err := fn.Call(i.session.ctx, uint64(ptr), uint64(len(sigIndices)))
	if err != nil {
		return fmt.Errorf("engine: %q decoder_channel_set_all: %w", i.decoderID, err)
	}
	if len(results) > 0 && int32(results[0]) != 0 {
		return fmt.Errorf("engine: %q decoder_channel_set_all returned error code %d", i.decoderID, int32(results[0]))
	}
	return nil
}

func (i *instance) DeclaresChannels() bool { return i.declaresChannels }
