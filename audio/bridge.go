// Package audio moves sample batches from a core's emulation thread to an
// audio consumer without ever blocking the producer. The core side hands in
// int16 stereo frames and is told how many were accepted; the consumer side
// is a blocking io.Reader of little-endian bytes, which is the pull model
// oto's player expects.
package audio

import (
	"io"
	"sync"
	"sync/atomic"
)

// bytesPerFrame is one stereo frame: two int16 samples.
const bytesPerFrame = 4

// Bridge is a bounded single-producer single-consumer ring. When the ring is
// full the incoming tail of a batch is dropped and counted; the producer
// never waits. When the bridge is not live (the instance is not running)
// writes report full acceptance without buffering anything, so a core that
// retries short writes does not spin against a consumer that is gone.
type Bridge struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	buf      []byte
	readPos  int
	writePos int
	count    int
	closed   bool

	live    atomic.Bool
	dropped atomic.Uint64
}

// NewBridge returns a bridge buffering up to frames stereo frames.
func NewBridge(frames int) *Bridge {
	if frames < 1 {
		frames = 1
	}
	b := &Bridge{buf: make([]byte, frames*bytesPerFrame)}
	b.notEmpty = sync.NewCond(&b.mu)
	return b
}

// SetLive switches the producer contract. Live writes buffer samples; non-live
// writes are swallowed but still report the full frame count.
func (b *Bridge) SetLive(live bool) {
	b.live.Store(live)
}

// WriteFrames enqueues stereo frames from samples (pairs of left, right) and
// returns how many frames were accepted. Whole frames are enqueued until the
// ring is full; the rest of the batch is dropped and counted. Never blocks.
//
// When the bridge is not live, or closed, the samples are discarded and the
// full frame count is returned anyway.
func (b *Bridge) WriteFrames(samples []int16) int {
	frames := len(samples) / 2
	if frames == 0 {
		return 0
	}
	if !b.live.Load() {
		return frames
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return frames
	}

	free := (len(b.buf) - b.count) / bytesPerFrame
	accept := frames
	if accept > free {
		accept = free
	}
	for _, s := range samples[:accept*2] {
		b.buf[b.writePos] = byte(s)
		b.buf[(b.writePos+1)%len(b.buf)] = byte(s >> 8)
		b.writePos = (b.writePos + 2) % len(b.buf)
	}
	b.count += accept * bytesPerFrame
	if accept > 0 {
		b.notEmpty.Signal()
	}
	b.mu.Unlock()

	if accept < frames {
		b.dropped.Add(uint64(frames - accept))
	}
	return accept
}

// Read blocks until sample bytes are available, then copies up to len(p) of
// them. After Close it drains the remaining bytes and then returns io.EOF.
func (b *Bridge) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.notEmpty.Wait()
	}
	if b.count == 0 {
		return 0, io.EOF
	}

	n := len(p)
	if n > b.count {
		n = b.count
	}
	for i := 0; i < n; i++ {
		p[i] = b.buf[b.readPos]
		b.readPos = (b.readPos + 1) % len(b.buf)
	}
	b.count -= n
	return n, nil
}

// Buffered returns the bytes currently queued.
func (b *Bridge) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Clear discards everything queued. Readers keep blocking for fresh data.
func (b *Bridge) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readPos = 0
	b.writePos = 0
	b.count = 0
}

// Dropped returns the total frames discarded because the ring was full.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the bridge. Blocked readers wake up, drain what is buffered,
// and then see io.EOF. Later writes are swallowed.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.notEmpty.Broadcast()
	b.mu.Unlock()
}
