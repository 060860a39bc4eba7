// Package trampoline multiplexes the libretro callback ABI across many core
// instances. The ABI registers bare function pointers that carry no instance
// handle, so the package keeps a process-wide table of Capacity statically
// distinguishable dispatch identities ("slots"). Each slot owns seven entry
// points, one per callback kind; binding installs an instance's closures as
// the dispatch target, and releasing returns the identity to the pool so a
// later instance can reuse it.
package trampoline

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Capacity is the process-wide limit on concurrently bound slots. Entry
// points are permanent once created, so the table size is fixed at compile
// time rather than configured.
const Capacity = 64

// ErrExhausted is returned by Acquire when every slot is bound. It is a
// capacity condition: the caller should retire an instance before retrying,
// the table is not broken.
var ErrExhausted = errors.New("trampoline: all slots in use")

// SlotID indexes the table.
type SlotID int

// Callbacks is one instance's closure set. Nil members dispatch to the same
// safe defaults an unbound slot uses.
type Callbacks struct {
	Environment        func(cmd uint32, data unsafe.Pointer) bool
	VideoRefresh       func(data unsafe.Pointer, width, height uint32, pitch uintptr)
	AudioSample        func(left, right int16)
	AudioSampleBatch   func(data unsafe.Pointer, frames int) int
	InputPoll          func()
	InputState         func(port, device, index, id uint32) int16
	CurrentFramebuffer func() uintptr
}

var (
	allocMu  sync.Mutex
	used     [Capacity]bool
	bindings [Capacity]atomic.Pointer[Callbacks]
)

// Slot is the handle to one acquired dispatch identity. Exactly one live
// instance may hold a given slot at a time.
type Slot struct {
	id       SlotID
	released atomic.Bool
}

// Acquire claims a free slot, or reports ErrExhausted when all Capacity
// slots are bound.
func Acquire() (*Slot, error) {
	allocMu.Lock()
	defer allocMu.Unlock()
	for i := range used {
		if !used[i] {
			used[i] = true
			return &Slot{id: SlotID(i)}, nil
		}
	}
	return nil, ErrExhausted
}

// ID returns the slot's table index.
func (s *Slot) ID() SlotID { return s.id }

// Bind installs cb as the dispatch target for every entry point of this
// slot. The store is the publication barrier: a core thread entering the
// slot's entry points afterwards observes the new closures.
func (s *Slot) Bind(cb *Callbacks) {
	bindings[s.id].Store(cb)
}

// Release unbinds the slot and returns it to the pool. The caller must
// guarantee no core can still call the slot's entry points; the instance
// teardown order (unload content, deinit, then Release) provides that.
// Releasing twice is a no-op.
func (s *Slot) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	bindings[s.id].Store(nil)
	allocMu.Lock()
	used[s.id] = false
	allocMu.Unlock()
}

// Go-side dispatch. These are the exact paths the C entry points take, so
// in-process cores and tests exercise the same binding lookups a native
// core would.

func (s *Slot) Environment(cmd uint32, data unsafe.Pointer) bool {
	return dispatchEnvironment(s.id, cmd, data)
}

func (s *Slot) VideoRefresh(data unsafe.Pointer, width, height uint32, pitch uintptr) {
	dispatchVideoRefresh(s.id, data, width, height, pitch)
}

func (s *Slot) AudioSample(left, right int16) {
	dispatchAudioSample(s.id, left, right)
}

func (s *Slot) AudioSampleBatch(data unsafe.Pointer, frames int) int {
	return dispatchAudioSampleBatch(s.id, data, frames)
}

func (s *Slot) InputPoll() {
	dispatchInputPoll(s.id)
}

func (s *Slot) InputState(port, device, index, id uint32) int16 {
	return dispatchInputState(s.id, port, device, index, id)
}

func (s *Slot) CurrentFramebuffer() uintptr {
	return dispatchCurrentFramebuffer(s.id)
}

func dispatchEnvironment(id SlotID, cmd uint32, data unsafe.Pointer) bool {
	cb := bindings[id].Load()
	if cb == nil || cb.Environment == nil {
		return false
	}
	return cb.Environment(cmd, data)
}

func dispatchVideoRefresh(id SlotID, data unsafe.Pointer, width, height uint32, pitch uintptr) {
	cb := bindings[id].Load()
	if cb == nil || cb.VideoRefresh == nil {
		return
	}
	cb.VideoRefresh(data, width, height, pitch)
}

func dispatchAudioSample(id SlotID, left, right int16) {
	cb := bindings[id].Load()
	if cb == nil || cb.AudioSample == nil {
		return
	}
	cb.AudioSample(left, right)
}

// An unbound batch callback accepts everything: a core draining its audio
// during teardown must not spin on a consumer that no longer exists.
func dispatchAudioSampleBatch(id SlotID, data unsafe.Pointer, frames int) int {
	cb := bindings[id].Load()
	if cb == nil || cb.AudioSampleBatch == nil {
		return frames
	}
	return cb.AudioSampleBatch(data, frames)
}

func dispatchInputPoll(id SlotID) {
	cb := bindings[id].Load()
	if cb == nil || cb.InputPoll == nil {
		return
	}
	cb.InputPoll()
}

func dispatchInputState(id SlotID, port, device, index, id2 uint32) int16 {
	cb := bindings[id].Load()
	if cb == nil || cb.InputState == nil {
		return 0
	}
	return cb.InputState(port, device, index, id2)
}

func dispatchCurrentFramebuffer(id SlotID) uintptr {
	cb := bindings[id].Load()
	if cb == nil || cb.CurrentFramebuffer == nil {
		return 0
	}
	return cb.CurrentFramebuffer()
}
