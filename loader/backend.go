// Package loader opens core module images and resolves them into Go-callable
// handles. It owns the per-module copy bookkeeping that lets the same binary
// be loaded as several distinct images: dynamic loaders return the one
// already-mapped image for a repeated path, and a core keeps its callback
// pointers in process-wide storage, so two logical instances sharing one
// image would alias each other's state.
package loader

import (
	"unsafe"

	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/trampoline"
)

// Core is the resolved entry-point set of one loaded module image. All calls
// must come from the instance thread that owns the image; nothing here is
// synchronized.
type Core interface {
	// APIVersion reports the ABI revision the core was built against.
	APIVersion() uint32

	Init()
	Deinit()

	SystemInfo() retro.SystemInfo
	SystemAVInfo() retro.AVInfo

	// SetCallbacks performs the six registration calls, installing the
	// slot's entry points as the core's callback targets.
	SetCallbacks(slot *trampoline.Slot)

	SetControllerPortDevice(port, device uint32)
	Reset()
	Run()

	LoadGame(info retro.GameInfo) bool
	UnloadGame()

	MemoryData(id uint32) unsafe.Pointer
	MemorySize(id uint32) uintptr

	SerializeSize() uintptr
	Serialize(buf []byte) bool
	Unserialize(buf []byte) bool

	// Close unloads the image. The loader guarantees Deinit was called
	// first for images whose Init succeeded.
	Close() error
}

// Backend turns a module path into a resolved Core. The production backend
// is the platform dynamic loader; tests substitute an in-process registry.
type Backend interface {
	Load(path string) (Core, error)
}

// MemoryBytes returns a byte view over one of the core's memory regions, or
// nil when the core exposes no such region. The slice aliases core-owned
// memory and is only valid while the image stays loaded.
func MemoryBytes(c Core, id uint32) []byte {
	size := c.MemorySize(id)
	if size == 0 {
		return nil
	}
	data := c.MemoryData(id)
	if data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(data), size)
}
