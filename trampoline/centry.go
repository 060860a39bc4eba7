package trampoline

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// EntryPoints are the C-callable function pointers for one slot, in the
// shape the six retro_set_* registration calls expect.
type EntryPoints struct {
	Environment        uintptr
	VideoRefresh       uintptr
	AudioSample        uintptr
	AudioSampleBatch   uintptr
	InputPoll          uintptr
	InputState         uintptr
	CurrentFramebuffer uintptr
}

var (
	entryOnce [Capacity]sync.Once
	entries   [Capacity]EntryPoints
)

// EntryPoints returns the slot's C entry points, creating them on first
// use. purego callbacks are never freed, so each slot's seven pointers are
// built exactly once for the life of the process and survive any number of
// bind/release cycles; in-process cores that go through the Go dispatch
// methods never trigger the creation.
func (s *Slot) EntryPoints() EntryPoints {
	entryOnce[s.id].Do(func() {
		entries[s.id] = newEntryPoints(s.id)
	})
	return entries[s.id]
}

func newEntryPoints(id SlotID) EntryPoints {
	return EntryPoints{
		Environment: purego.NewCallback(func(cmd uint32, data unsafe.Pointer) uintptr {
			if dispatchEnvironment(id, cmd, data) {
				return 1
			}
			return 0
		}),
		VideoRefresh: purego.NewCallback(func(data unsafe.Pointer, width, height uint32, pitch uintptr) uintptr {
			dispatchVideoRefresh(id, data, width, height, pitch)
			return 0
		}),
		AudioSample: purego.NewCallback(func(left, right uintptr) uintptr {
			dispatchAudioSample(id, int16(uint16(left)), int16(uint16(right)))
			return 0
		}),
		AudioSampleBatch: purego.NewCallback(func(data unsafe.Pointer, frames uintptr) uintptr {
			return uintptr(dispatchAudioSampleBatch(id, data, int(frames)))
		}),
		InputPoll: purego.NewCallback(func() uintptr {
			dispatchInputPoll(id)
			return 0
		}),
		InputState: purego.NewCallback(func(port, device, index, btn uint32) uintptr {
			return uintptr(uint16(dispatchInputState(id, port, device, index, btn)))
		}),
		CurrentFramebuffer: purego.NewCallback(func() uintptr {
			return dispatchCurrentFramebuffer(id)
		}),
	}
}
