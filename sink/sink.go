// Package sink terminates an instance's callback surface on the host side.
// A core's video refreshes, its audio stream, and its input queries all end
// up at a sink; the bundled implementations cover a live audio device, WAV
// capture, BMP frame dumps, an in-memory framebuffer, and discard-everything
// nulls for headless runs.
package sink

import (
	"io"

	"github.com/yosanyu/retromux/retro"
)

// Frame is one video frame as the core handed it over. Pixels aliases
// core-owned memory and is only valid for the duration of the Refresh call;
// a sink that keeps the frame must copy it.
type Frame struct {
	Width  int
	Height int
	Pitch  int // bytes per row in Pixels
	Format retro.PixelFormat
	Pixels []byte
}

// Video receives finished frames. Refresh is called from the instance's
// emulation thread, so implementations must not block for long.
type Video interface {
	Refresh(f *Frame)
	Close() error
}

// Audio consumes an instance's sample stream: little-endian int16 stereo
// read from r at the core's sample rate. Start is called once the rate is
// known; the stream ends with io.EOF when the instance shuts down.
type Audio interface {
	Start(r io.Reader, sampleRate int) error
	Close() error
}

// Input answers a core's input queries. Poll is the core's input_poll;
// State must be cheap, it is called per input per frame.
type Input interface {
	Poll()
	State(port, device, index, id uint32) int16
}

// NullVideo discards frames.
type NullVideo struct{}

func (NullVideo) Refresh(*Frame) {}
func (NullVideo) Close() error   { return nil }

// NullAudio drains the sample stream and throws it away, standing in for an
// audio device on headless runs. Draining keeps the instance's ring from
// sitting full and counting every batch as dropped.
type NullAudio struct {
	done chan struct{}
}

func (n *NullAudio) Start(r io.Reader, sampleRate int) error {
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		buf := make([]byte, 4096)
		for {
			if _, err := r.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (n *NullAudio) Close() error {
	if n.done != nil {
		<-n.done
	}
	return nil
}

// NullInput reports nothing pressed.
type NullInput struct{}

func (NullInput) Poll()                                      {}
func (NullInput) State(port, device, index, id uint32) int16 { return 0 }
