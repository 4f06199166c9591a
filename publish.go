package decodecore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	czmq "github.com/zeromq/goczmq"
)

// SignalPublisher wraps a PUB socket that rebroadcasts a DecoderStack's
// new_decode_data/decode_done/progress signals as small binary messages,
// for a renderer that wants a push feed instead of polling the RPC
// server's GetStatus call.
type SignalPublisher struct {
	pub *czmq.Channeler
}

// NewSignalPublisher binds a PUB socket on the given port.
func NewSignalPublisher(port int) *SignalPublisher {
	hostname := fmt.Sprintf("tcp://*:%d", port)
	return &SignalPublisher{pub: czmq.NewPubChanneler(hostname)}
}

func (p *SignalPublisher) Close() {
	if p.pub != nil {
		p.pub.Destroy()
		p.pub = nil
	}
}

// messageKind distinguishes the three signal shapes on the wire.
type messageKind uint8

const (
	kindProgress messageKind = iota
	kindNewDecodeData
	kindDecodeDone
)

// encodeProgressMessage renders a progress update: kind byte, then
// samplesDecoded (u64) and progress percent (u32), little-endian.
func encodeProgressMessage(samplesDecoded int64, progress int) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, kindProgress)
	binary.Write(buf, binary.LittleEndian, uint64(samplesDecoded))
	binary.Write(buf, binary.LittleEndian, uint32(progress))
	return buf.Bytes()
}

// PublishProgress sends a progress update.
func (p *SignalPublisher) PublishProgress(samplesDecoded int64, progress int) {
	if p.pub == nil {
		return
	}
	p.pub.SendChan <- [][]byte{encodeProgressMessage(samplesDecoded, progress)}
}

// PublishNewDecodeData announces that freshly decoded rows are available.
func (p *SignalPublisher) PublishNewDecodeData() {
	if p.pub == nil {
		return
	}
	p.pub.SendChan <- [][]byte{{byte(kindNewDecodeData)}}
}

// PublishDecodeDone announces the end of a decode run, carrying the final
// error message (empty on success).
func (p *SignalPublisher) PublishDecodeDone(errorMessage string) {
	if p.pub == nil {
		return
	}
	header := []byte{byte(kindDecodeDone)}
	p.pub.SendChan <- [][]byte{header, []byte(errorMessage)}
}

// AttachToStack subscribes this publisher to stack's signals, pushing each
// one onto the PUB socket until stop is closed.
func (p *SignalPublisher) AttachToStack(stack *DecoderStack, stop <-chan struct{}) {
	data := stack.Signals().SubscribeNewDecodeData()
	done := stack.Signals().SubscribeDecodeDone()
	go func() {
		for {
			select {
			case <-data:
				p.PublishProgress(stack.SamplesDecoded(), stack.Progress())
				p.PublishNewDecodeData()
			case <-done:
				p.PublishDecodeDone(stack.ErrorMessage())
			case <-stop:
				return
			}
		}
	}()
}
