package retro

// SystemInfo mirrors retro_system_info: the static identity a core reports
// before any content is loaded.
type SystemInfo struct {
	LibraryName     string
	LibraryVersion  string
	ValidExtensions string

	// NeedFullPath means the core opens content from disk itself; the host
	// must hand it a path instead of a buffer.
	NeedFullPath bool
	BlockExtract bool
}

// Geometry mirrors retro_game_geometry.
type Geometry struct {
	BaseWidth   int
	BaseHeight  int
	MaxWidth    int
	MaxHeight   int
	AspectRatio float64
}

// Timing mirrors retro_system_timing. FPS drives frame pacing and
// SampleRate drives the audio sink.
type Timing struct {
	FPS        float64
	SampleRate float64
}

// AVInfo mirrors retro_system_av_info, reported once content is loaded.
type AVInfo struct {
	Geometry Geometry
	Timing   Timing
}

// GameInfo mirrors retro_game_info as handed to retro_load_game. Exactly one
// of Path and Data is meaningful depending on SystemInfo.NeedFullPath.
type GameInfo struct {
	Path string
	Data []byte
	Meta string
}

// Variable is one core option: a settings key plus its current value.
type Variable struct {
	Key   string
	Value string
}

// InputDescriptor is a core-declared binding description for one input.
type InputDescriptor struct {
	Port        uint32
	Device      uint32
	Index       uint32
	ID          uint32
	Description string
}

// FrameTimeCallback is the core's registration from EnvSetFrameTimeCallback:
// an entry point expecting the elapsed microseconds since the previous frame,
// and the reference interval to report when no previous frame exists.
type FrameTimeCallback struct {
	Callback     uintptr
	ReferenceUsc int64
}

// AudioCallback is the core's registration from EnvSetAudioCallback. The
// host invokes Callback once per frame to ask the core to emit audio, and
// SetState to tell it whether the audio device is live.
type AudioCallback struct {
	Callback uintptr
	SetState uintptr
}

// HWRenderCallback records an EnvSetHWRender request: the context the core
// wants plus the reset/destroy entry points it registered. The runtime
// stores it and flags the instance as hardware-rendered; actual context
// creation belongs to the video sink behind the host boundary.
type HWRenderCallback struct {
	ContextType    uint32
	ContextReset   uintptr
	ContextDestroy uintptr
	VersionMajor   uint32
	VersionMinor   uint32
	Depth          bool
	Stencil        bool
	BottomLeft     bool
	CacheContext   bool
	DebugContext   bool
}
