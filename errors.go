package decodecore

import "errors"

// Sentinel errors a caller can match with errors.Is. The human-readable
// message carried on DecoderStack.ErrorMessage() is a plain string, same as
// the original decoder stack's _error_message field; these sentinels let
// callers branch on error kind without parsing that string.
var (
	ErrMissingRequiredChannel = errors.New("decodecore: one or more required channels have not been specified")
	ErrNoBackingSnapshot      = errors.New("decodecore: no backing snapshot for decode")
	ErrEmptyDecodeRegion      = errors.New("decodecore: decode data is empty")
	ErrInvalidSampleRate      = errors.New("decodecore: decode data got an invalid sample rate")
	ErrEngineFailure          = errors.New("decodecore: decode engine reported an error")
	ErrOutOfMemory            = errors.New("decodecore: out of memory while decoding")
	ErrNoDecoders             = errors.New("decodecore: decoder stack is empty")
	ErrAlreadyDecoding        = errors.New("decodecore: decode already running")
	ErrNothingChanged         = errors.New("decodecore: no decoder options have changed since the last decode")
	ErrUnknownRow             = errors.New("decodecore: row not found")
)
