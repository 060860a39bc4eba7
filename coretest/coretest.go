// Package coretest provides an in-process core for exercising the runtime
// without a native module. The fake core talks to the host through the same
// trampoline slot dispatch a real core would, emitting tagged video frames,
// a tagged audio stream, input reads, and environment queries, so tests can
// tell exactly which instance's traffic landed where.
package coretest

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/yosanyu/retromux/loader"
	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/trampoline"
)

// snapshotLen is the fixed part of a fake snapshot: the run counter plus
// the snapshot's own recorded length.
const snapshotLen = 16

// unknownEnvCommand is a command number no runtime handles; the fake issues
// it during Init to observe the unsupported-query answer.
const unknownEnvCommand = 0x7edd

// Core is a scriptable in-process core. Configure the exported fields
// before handing it to a Backend; read the observation accessors after the
// run. It implements loader.Core.
type Core struct {
	// Identity reported through retro_get_system_info.
	Name         string
	Extensions   string
	NeedFullPath bool

	// Timing and geometry reported once content is loaded.
	FPS        float64
	SampleRate float64
	Width      int
	Height     int

	// PixelFormat is negotiated during Init.
	PixelFormat retro.PixelFormat

	// Tag marks every video frame and audio sample this core emits.
	Tag byte

	// AudioPerRun is how many stereo frames each Run pushes.
	AudioPerRun int

	// DupEvery makes every Nth refresh a duplicate-frame signal when > 0.
	DupEvery int

	// SRAMSize allocates a save RAM region of that many bytes.
	SRAMSize int

	// SerializeJitter grows the reported serialize size by this many bytes
	// after every successful Serialize.
	SerializeJitter int

	// RefuseContent makes retro_load_game fail.
	RefuseContent bool

	// Variables are declared to the host during Init as key and raw
	// declaration string pairs.
	Variables [][2]string

	// OnRun, when set, runs at the end of every Run on the core's thread.
	OnRun func(c *Core)

	slot *trampoline.Slot

	inits      atomic.Int32
	deinits    atomic.Int32
	closes     atomic.Int32
	resets     atomic.Int32
	unloads    atomic.Int32
	runs       atomic.Uint64
	serializes atomic.Int32
	audioSent  atomic.Uint64
	audioTaken atomic.Uint64
	lastInput  atomic.Int32

	mu          sync.Mutex
	loadedPath  string
	loadedData  []byte
	ports       map[uint32]uint32
	saveDirSeen string
	sysDirSeen  string
	canDupe     bool
	unknownOK   bool
	varsSeen    map[string]string
	varUpdates  int

	sram   []byte
	pixels []byte
}

var _ loader.Core = (*Core)(nil)

func (c *Core) defaults() {
	if c.Name == "" {
		c.Name = "fakecore"
	}
	if c.Extensions == "" {
		c.Extensions = "bin"
	}
	if c.FPS == 0 {
		c.FPS = 60
	}
	if c.SampleRate == 0 {
		c.SampleRate = 32040
	}
	if c.Width == 0 {
		c.Width = 64
	}
	if c.Height == 0 {
		c.Height = 48
	}
	if c.ports == nil {
		c.ports = make(map[uint32]uint32)
	}
	if c.varsSeen == nil {
		c.varsSeen = make(map[string]string)
	}
	if c.SRAMSize > 0 && c.sram == nil {
		c.sram = make([]byte, c.SRAMSize)
	}
}

func (c *Core) APIVersion() uint32 { return retro.APIVersion }

// Init negotiates the pixel format, declares variables, and probes the
// directory and capability queries, the way real cores front-load their
// environment traffic.
func (c *Core) Init() {
	c.defaults()
	c.inits.Add(1)

	pf := uint32(c.PixelFormat)
	c.slot.Environment(retro.EnvSetPixelFormat, unsafe.Pointer(&pf))

	if len(c.Variables) > 0 {
		c.declareVariables()
	}

	var dir *byte
	if c.slot.Environment(retro.EnvGetSaveDirectory, unsafe.Pointer(&dir)) {
		c.mu.Lock()
		c.saveDirSeen = goString(dir)
		c.mu.Unlock()
	}
	dir = nil
	if c.slot.Environment(retro.EnvGetSystemDirectory, unsafe.Pointer(&dir)) {
		c.mu.Lock()
		c.sysDirSeen = goString(dir)
		c.mu.Unlock()
	}

	var dupe bool
	c.slot.Environment(retro.EnvGetCanDupe, unsafe.Pointer(&dupe))
	ok := c.slot.Environment(unknownEnvCommand, nil)
	c.mu.Lock()
	c.canDupe = dupe
	c.unknownOK = ok
	c.mu.Unlock()
}

func (c *Core) Deinit() { c.deinits.Add(1) }

func (c *Core) SystemInfo() retro.SystemInfo {
	c.defaults()
	return retro.SystemInfo{
		LibraryName:     c.Name,
		LibraryVersion:  "0.0-fake",
		ValidExtensions: c.Extensions,
		NeedFullPath:    c.NeedFullPath,
	}
}

func (c *Core) SystemAVInfo() retro.AVInfo {
	c.defaults()
	return retro.AVInfo{
		Geometry: retro.Geometry{
			BaseWidth:   c.Width,
			BaseHeight:  c.Height,
			MaxWidth:    c.Width,
			MaxHeight:   c.Height,
			AspectRatio: float64(c.Width) / float64(c.Height),
		},
		Timing: retro.Timing{FPS: c.FPS, SampleRate: c.SampleRate},
	}
}

func (c *Core) SetCallbacks(slot *trampoline.Slot) { c.slot = slot }

func (c *Core) SetControllerPortDevice(port, device uint32) {
	c.mu.Lock()
	c.ports[port] = device
	c.mu.Unlock()
}

func (c *Core) Reset() { c.resets.Add(1) }

// Run emits one frame of traffic through the slot: an input poll and read,
// a variable-update probe, a tagged video frame, and a tagged audio batch.
func (c *Core) Run() {
	c.slot.InputPoll()
	state := c.slot.InputState(0, retro.DeviceJoypad, 0, retro.DeviceIDJoypadA)
	c.lastInput.Store(int32(state))

	var changed bool
	if c.slot.Environment(retro.EnvGetVariableUpdate, unsafe.Pointer(&changed)) && changed {
		c.mu.Lock()
		c.varUpdates++
		c.mu.Unlock()
		c.readVariables()
	}

	run := c.runs.Load()
	if c.DupEvery > 0 && run%uint64(c.DupEvery) == uint64(c.DupEvery-1) {
		c.slot.VideoRefresh(nil, uint32(c.Width), uint32(c.Height), 0)
	} else {
		c.refreshFrame(run)
	}

	if c.AudioPerRun > 0 {
		c.emitAudio()
	}

	c.runs.Add(1)
	if c.OnRun != nil {
		c.OnRun(c)
	}
}

// refreshFrame pushes a frame whose first two pixels carry the core's tag
// and the low byte of the run counter.
func (c *Core) refreshFrame(run uint64) {
	bpp := c.PixelFormat.BytesPerPixel()
	pitch := c.Width * bpp
	if c.pixels == nil {
		c.pixels = make([]byte, pitch*c.Height)
	}
	c.pixels[0] = c.Tag
	c.pixels[bpp] = byte(run)
	c.slot.VideoRefresh(unsafe.Pointer(&c.pixels[0]), uint32(c.Width), uint32(c.Height), uintptr(pitch))
}

// emitAudio pushes AudioPerRun stereo frames where every sample's both
// bytes equal the core's tag, and records how many the host accepted.
func (c *Core) emitAudio() {
	sample := int16(uint16(c.Tag) * 0x0101)
	batch := make([]int16, c.AudioPerRun*2)
	for i := range batch {
		batch[i] = sample
	}
	taken := c.slot.AudioSampleBatch(unsafe.Pointer(&batch[0]), c.AudioPerRun)
	c.audioSent.Add(uint64(c.AudioPerRun))
	c.audioTaken.Add(uint64(taken))
}

func (c *Core) LoadGame(info retro.GameInfo) bool {
	c.defaults()
	c.mu.Lock()
	c.loadedPath = info.Path
	c.loadedData = append([]byte(nil), info.Data...)
	c.mu.Unlock()
	return !c.RefuseContent
}

func (c *Core) UnloadGame() { c.unloads.Add(1) }

func (c *Core) MemoryData(id uint32) unsafe.Pointer {
	if id != retro.MemorySaveRAM || len(c.sram) == 0 {
		return nil
	}
	return unsafe.Pointer(&c.sram[0])
}

func (c *Core) MemorySize(id uint32) uintptr {
	if id != retro.MemorySaveRAM {
		return 0
	}
	return uintptr(len(c.sram))
}

func (c *Core) SerializeSize() uintptr {
	return uintptr(snapshotLen + c.SerializeJitter*int(c.serializes.Load()))
}

func (c *Core) Serialize(buf []byte) bool {
	if len(buf) < snapshotLen {
		return false
	}
	binary.LittleEndian.PutUint64(buf[0:8], c.runs.Load())
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(buf)))
	c.serializes.Add(1)
	return true
}

func (c *Core) Unserialize(buf []byte) bool {
	if len(buf) < snapshotLen {
		return false
	}
	c.runs.Store(binary.LittleEndian.Uint64(buf[0:8]))
	return true
}

func (c *Core) Close() error {
	c.closes.Add(1)
	return nil
}

// Observation accessors, safe from any goroutine.

func (c *Core) Inits() int       { return int(c.inits.Load()) }
func (c *Core) Deinits() int     { return int(c.deinits.Load()) }
func (c *Core) Closes() int      { return int(c.closes.Load()) }
func (c *Core) Resets() int      { return int(c.resets.Load()) }
func (c *Core) Unloads() int     { return int(c.unloads.Load()) }
func (c *Core) Runs() uint64     { return c.runs.Load() }
func (c *Core) LastInput() int16 { return int16(c.lastInput.Load()) }

// AudioSent and AudioTaken count stereo frames offered to and accepted by
// the host.
func (c *Core) AudioSent() uint64  { return c.audioSent.Load() }
func (c *Core) AudioTaken() uint64 { return c.audioTaken.Load() }

func (c *Core) LoadedPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedPath
}

func (c *Core) LoadedData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.loadedData...)
}

func (c *Core) PortDevice(port uint32) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.ports[port]
	return d, ok
}

func (c *Core) SaveDirSeen() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveDirSeen
}

func (c *Core) SystemDirSeen() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sysDirSeen
}

// CanDupe reports what the host answered to the frame-dupe capability
// query; UnknownAnswered reports what it said to a command it cannot know.
func (c *Core) CanDupe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canDupe
}

func (c *Core) UnknownAnswered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unknownOK
}

// VarSeen returns the value the core last read for a variable key.
func (c *Core) VarSeen(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.varsSeen[key]
	return v, ok
}

// VarUpdates counts how many runs observed a raised variable-update flag.
func (c *Core) VarUpdates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.varUpdates
}

// SRAM exposes the fake's save RAM region. The instance thread writes into
// it during load, so tests should only touch it once the instance is ready
// or done.
func (c *Core) SRAM() []byte { return c.sram }
