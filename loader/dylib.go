package loader

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/trampoline"
)

// FatalLoad conditions: the image is unusable, not degraded.
var (
	ErrOpen          = errors.New("loader: cannot open module image")
	ErrMissingSymbol = errors.New("loader: module is missing a required symbol")
)

// DylibBackend loads module images through the platform dynamic loader.
type DylibBackend struct{}

// C-layout mirrors of the structs crossing the ABI. Field order and widths
// follow libretro.h; Go's natural alignment matches the C layout on every
// 64-bit target purego supports.

type cSystemInfo struct {
	libraryName     *byte
	libraryVersion  *byte
	validExtensions *byte
	needFullpath    bool
	blockExtract    bool
}

type cGameGeometry struct {
	baseWidth   uint32
	baseHeight  uint32
	maxWidth    uint32
	maxHeight   uint32
	aspectRatio float32
}

type cSystemTiming struct {
	fps        float64
	sampleRate float64
}

type cSystemAVInfo struct {
	geometry cGameGeometry
	timing   cSystemTiming
}

type cGameInfo struct {
	path *byte
	data unsafe.Pointer
	size uintptr
	meta *byte
}

type dylibCore struct {
	handle uintptr
	pin    runtime.Pinner

	apiVersion              func() uint32
	init_                   func()
	deinit                  func()
	getSystemInfo           func(unsafe.Pointer)
	getSystemAVInfo         func(unsafe.Pointer)
	setControllerPortDevice func(uint32, uint32)
	reset                   func()
	run                     func()
	loadGame                func(unsafe.Pointer) bool
	unloadGame              func()
	getMemoryData           func(uint32) unsafe.Pointer
	getMemorySize           func(uint32) uintptr
	serializeSize           func() uintptr
	serialize               func(unsafe.Pointer, uintptr) bool
	unserialize             func(unsafe.Pointer, uintptr) bool

	setEnvironment      func(uintptr)
	setVideoRefresh     func(uintptr)
	setInputPoll        func(uintptr)
	setInputState       func(uintptr)
	setAudioSample      func(uintptr)
	setAudioSampleBatch func(uintptr)
}

// Load maps the image at path and resolves the full required symbol set.
// Any missing symbol makes the whole image unusable.
func (DylibBackend) Load(path string) (Core, error) {
	handle, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}

	c := &dylibCore{handle: handle}
	for _, sym := range []struct {
		name string
		fptr any
	}{
		{"retro_api_version", &c.apiVersion},
		{"retro_init", &c.init_},
		{"retro_deinit", &c.deinit},
		{"retro_get_system_info", &c.getSystemInfo},
		{"retro_get_system_av_info", &c.getSystemAVInfo},
		{"retro_set_controller_port_device", &c.setControllerPortDevice},
		{"retro_reset", &c.reset},
		{"retro_run", &c.run},
		{"retro_load_game", &c.loadGame},
		{"retro_unload_game", &c.unloadGame},
		{"retro_get_memory_data", &c.getMemoryData},
		{"retro_get_memory_size", &c.getMemorySize},
		{"retro_serialize_size", &c.serializeSize},
		{"retro_serialize", &c.serialize},
		{"retro_unserialize", &c.unserialize},
		{"retro_set_environment", &c.setEnvironment},
		{"retro_set_video_refresh", &c.setVideoRefresh},
		{"retro_set_input_poll", &c.setInputPoll},
		{"retro_set_input_state", &c.setInputState},
		{"retro_set_audio_sample", &c.setAudioSample},
		{"retro_set_audio_sample_batch", &c.setAudioSampleBatch},
	} {
		addr, err := lookupSymbol(handle, sym.name)
		if err != nil || addr == 0 {
			closeLibrary(handle)
			return nil, fmt.Errorf("%w: %s in %s", ErrMissingSymbol, sym.name, path)
		}
		purego.RegisterFunc(sym.fptr, addr)
	}
	return c, nil
}

func (c *dylibCore) APIVersion() uint32 { return c.apiVersion() }
func (c *dylibCore) Init()              { c.init_() }
func (c *dylibCore) Deinit()            { c.deinit() }

func (c *dylibCore) SystemInfo() retro.SystemInfo {
	var ci cSystemInfo
	c.getSystemInfo(unsafe.Pointer(&ci))
	return retro.SystemInfo{
		LibraryName:     goString(ci.libraryName),
		LibraryVersion:  goString(ci.libraryVersion),
		ValidExtensions: goString(ci.validExtensions),
		NeedFullPath:    ci.needFullpath,
		BlockExtract:    ci.blockExtract,
	}
}

func (c *dylibCore) SystemAVInfo() retro.AVInfo {
	var av cSystemAVInfo
	c.getSystemAVInfo(unsafe.Pointer(&av))
	return retro.AVInfo{
		Geometry: retro.Geometry{
			BaseWidth:   int(av.geometry.baseWidth),
			BaseHeight:  int(av.geometry.baseHeight),
			MaxWidth:    int(av.geometry.maxWidth),
			MaxHeight:   int(av.geometry.maxHeight),
			AspectRatio: float64(av.geometry.aspectRatio),
		},
		Timing: retro.Timing{
			FPS:        av.timing.fps,
			SampleRate: av.timing.sampleRate,
		},
	}
}

func (c *dylibCore) SetCallbacks(slot *trampoline.Slot) {
	ep := slot.EntryPoints()
	c.setEnvironment(ep.Environment)
	c.setVideoRefresh(ep.VideoRefresh)
	c.setInputPoll(ep.InputPoll)
	c.setInputState(ep.InputState)
	c.setAudioSample(ep.AudioSample)
	c.setAudioSampleBatch(ep.AudioSampleBatch)
}

func (c *dylibCore) SetControllerPortDevice(port, device uint32) {
	c.setControllerPortDevice(port, device)
}

func (c *dylibCore) Reset() { c.reset() }
func (c *dylibCore) Run()   { c.run() }

func (c *dylibCore) LoadGame(info retro.GameInfo) bool {
	ci := cGameInfo{
		path: c.cString(info.Path),
		meta: c.cString(info.Meta),
	}
	if len(info.Data) > 0 {
		ci.data = unsafe.Pointer(&info.Data[0])
		ci.size = uintptr(len(info.Data))
	}
	ok := c.loadGame(unsafe.Pointer(&ci))
	runtime.KeepAlive(info.Data)
	return ok
}

func (c *dylibCore) UnloadGame() { c.unloadGame() }

func (c *dylibCore) MemoryData(id uint32) unsafe.Pointer { return c.getMemoryData(id) }
func (c *dylibCore) MemorySize(id uint32) uintptr        { return c.getMemorySize(id) }

func (c *dylibCore) SerializeSize() uintptr { return c.serializeSize() }

func (c *dylibCore) Serialize(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return c.serialize(unsafe.Pointer(&buf[0]), uintptr(len(buf)))
}

func (c *dylibCore) Unserialize(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return c.unserialize(unsafe.Pointer(&buf[0]), uintptr(len(buf)))
}

func (c *dylibCore) Close() error {
	c.pin.Unpin()
	return closeLibrary(c.handle)
}

// cString copies s into NUL-terminated memory pinned for the life of the
// image; cores are allowed to keep the pointer.
func (c *dylibCore) cString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	p := &b[0]
	c.pin.Pin(p)
	return p
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
