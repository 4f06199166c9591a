package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/scopeworks/decodecore"
)

// instantiateHostModule registers the single host import every guest
// decoder module calls once per annotation it emits. One host module
// instance is shared by every guest instance in a session; the handler
// identifies which decoder instance is calling it by the calling
// module's name, which NewInstance sets to "<decoderID>-<counter>".
func instantiateHostModule(ctx context.Context, runtime wazero.Runtime, s *session) (api.Module, error) {
	return runtime.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithFunc(s.onEmitAnnotation).
		Export(importEmitAnnotation).
		Instantiate(ctx)
}

// onEmitAnnotation is the host_emit_annotation import: mod is the calling
// guest's module instance, giving access to its linear memory regardless
// of which decoder instance is calling.
func (s *session) onEmitAnnotation(ctx context.Context, mod api.Module, start, end uint64, annClass, annType, textPtr, textLen, hexPtr, hexLen uint32) {
	if s.callback == nil {
		return
	}

	inst, ok := s.instances[mod.Name()]
	if !ok {
		return
	}

	var text []string
	if textLen > 0 {
		if raw, ok := mod.Memory().Read(textPtr, textLen); ok {
			text = splitNulJoined(raw)
		}
	}

	var hex string
	if hexLen > 0 {
		if raw, ok := mod.Memory().Read(hexPtr, hexLen); ok {
			hex = string(raw)
		}
	}

	s.callback(decodecore.EngineEvent{
		DecoderID:   inst.decoderID,
		StartSample: start,
		EndSample:   end,
		AnnClass:    int(annClass),
		AnnType:     int(annType),
		AnnText:     text,
		NumberHex:   hex,
	})
}
