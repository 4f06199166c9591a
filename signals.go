package decodecore

import "sync"

// StackSignals is a minimal Go-channel based publish point for the two
// renderer signals spec.md calls out: "new data is available to render"
// and "the decode run has finished". It fans a single event out to every
// currently-subscribed listener without blocking the decode worker on a
// slow or absent subscriber.
type StackSignals struct {
	mu            sync.Mutex
	dataListeners []chan struct{}
	doneListeners []chan struct{}
}

func NewStackSignals() *StackSignals {
	return &StackSignals{}
}

// SubscribeNewDecodeData returns a channel that receives a value (best
// effort, non-blocking) every time new decode data is available.
func (s *StackSignals) SubscribeNewDecodeData() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.dataListeners = append(s.dataListeners, ch)
	s.mu.Unlock()
	return ch
}

// SubscribeDecodeDone returns a channel that receives a value (best
// effort, non-blocking) every time a decode run finishes.
func (s *StackSignals) SubscribeDecodeDone() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.doneListeners = append(s.doneListeners, ch)
	s.mu.Unlock()
	return ch
}

func (s *StackSignals) NotifyDecodeData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.dataListeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *StackSignals) NotifyDecodeDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.doneListeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
