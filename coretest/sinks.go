package coretest

import (
	"io"
	"sync"
	"sync/atomic"
)

// AudioCapture drains an instance's audio stream into memory as it arrives.
type AudioCapture struct {
	mu   sync.Mutex
	data []byte
	rate int
	done chan struct{}
}

func (a *AudioCapture) Start(r io.Reader, sampleRate int) error {
	a.mu.Lock()
	a.rate = sampleRate
	a.mu.Unlock()
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				a.mu.Lock()
				a.data = append(a.data, buf[:n]...)
				a.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Close waits for the stream to end so Bytes is complete afterwards.
func (a *AudioCapture) Close() error {
	if a.done != nil {
		<-a.done
	}
	return nil
}

// Bytes returns a copy of everything captured so far.
func (a *AudioCapture) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.data...)
}

func (a *AudioCapture) Rate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate
}

// StaticInput answers every input query with one fixed value, which makes
// cross-instance wiring visible: each instance's core should read back its
// own sink's value.
type StaticInput struct {
	Value int16

	polls atomic.Uint64
}

func (s *StaticInput) Poll() { s.polls.Add(1) }

func (s *StaticInput) State(port, device, index, id uint32) int16 { return s.Value }

// Polls counts input-poll callbacks received.
func (s *StaticInput) Polls() uint64 { return s.polls.Load() }
