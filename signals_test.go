package decodecore

import "testing"

func TestStackSignalsFanOutNonBlocking(t *testing.T) {
	s := NewStackSignals()
	a := s.SubscribeNewDecodeData()
	b := s.SubscribeNewDecodeData()

	// NotifyDecodeData must not block even though neither channel has been
	// drained yet, and must not block on a second call either.
	s.NotifyDecodeData()
	s.NotifyDecodeData()

	select {
	case <-a:
	default:
		t.Error("subscriber a never received a notification")
	}
	select {
	case <-b:
	default:
		t.Error("subscriber b never received a notification")
	}
}

func TestStackSignalsDecodeDone(t *testing.T) {
	s := NewStackSignals()
	done := s.SubscribeDecodeDone()
	s.NotifyDecodeDone()
	select {
	case <-done:
	default:
		t.Error("decode-done subscriber never received a notification")
	}
}
