package sink

import (
	"sync"

	"github.com/yosanyu/retromux/retro"
)

// Buffer keeps the most recent frame. The emulation thread writes into one
// buffer while readers get a snapshot copied into a second, so neither side
// ever hands out memory the other is touching.
type Buffer struct {
	mu          sync.Mutex
	writePixels []byte
	readPixels  []byte
	width       int
	height      int
	pitch       int
	format      retro.PixelFormat
	frames      uint64
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Refresh copies the frame in. Duplicate frames (nil pixels) never reach a
// sink, so f.Pixels is always live here.
func (b *Buffer) Refresh(f *Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := f.Pitch * f.Height
	if n > len(f.Pixels) {
		n = len(f.Pixels)
	}
	if cap(b.writePixels) < n {
		b.writePixels = make([]byte, n)
	}
	b.writePixels = b.writePixels[:n]
	copy(b.writePixels, f.Pixels[:n])

	b.width = f.Width
	b.height = f.Height
	b.pitch = f.Pitch
	b.format = f.Format
	b.frames++
}

func (b *Buffer) Close() error { return nil }

// Read returns a snapshot of the latest frame. The returned frame's Pixels
// belong to the Buffer's read copy and stay valid until the next Read.
func (b *Buffer) Read() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frames == 0 {
		return Frame{}, false
	}
	if cap(b.readPixels) < len(b.writePixels) {
		b.readPixels = make([]byte, len(b.writePixels))
	}
	b.readPixels = b.readPixels[:len(b.writePixels)]
	copy(b.readPixels, b.writePixels)

	return Frame{
		Width:  b.width,
		Height: b.height,
		Pitch:  b.pitch,
		Format: b.format,
		Pixels: b.readPixels,
	}, true
}

// Frames returns how many refreshes the buffer has seen.
func (b *Buffer) Frames() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}
