package instance

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/yosanyu/retromux/retro"
)

// C-layout mirrors of the environment payloads, following libretro.h field
// order on 64-bit targets.

type cVariable struct {
	key   *byte
	value *byte
}

type cFrameTimeCallback struct {
	callback  uintptr
	reference int64
}

type cAudioCallback struct {
	callback uintptr
	setState uintptr
}

type cInputDescriptor struct {
	port        uint32
	device      uint32
	index       uint32
	id          uint32
	description *byte
}

type cHWRenderCallback struct {
	contextType           uint32
	_                     uint32
	contextReset          uintptr
	getCurrentFramebuffer uintptr
	getProcAddress        uintptr
	depth                 bool
	stencil               bool
	bottomLeftOrigin      bool
	_                     bool
	versionMajor          uint32
	versionMinor          uint32
	cacheContext          bool
	_                     [3]byte
	contextDestroy        uintptr
	debugContext          bool
	_                     [7]byte
}

// environment answers the core's environment queries. It runs on the
// instance thread, from inside retro_init, the load handshake, or
// retro_run. Commands outside the handled set are reported unsupported;
// that is an answer, not a failure.
func (in *Instance) environment(cmd uint32, data unsafe.Pointer) bool {
	switch cmd {
	case retro.EnvGetVariable:
		v := (*cVariable)(data)
		key := goString(v.key)
		val, ok := in.opts.get(key)
		if !ok {
			in.log.Debug("variable not set", zap.String("key", key))
			return false
		}
		v.value = in.cString(val)
		return true

	case retro.EnvSetVariables:
		v := (*cVariable)(data)
		n := 0
		for ; v.key != nil; v = (*cVariable)(unsafe.Add(unsafe.Pointer(v), unsafe.Sizeof(cVariable{}))) {
			key := goString(v.key)
			def := parseDefault(goString(v.value))
			in.opts.declareDefault(key, def)
			in.log.Debug("core variable", zap.String("key", key), zap.String("default", def))
			n++
		}
		in.log.Info("core declared variables", zap.Int("count", n))
		return true

	case retro.EnvGetVariableUpdate:
		*(*bool)(data) = in.opts.consumeDirty()
		return true

	case retro.EnvGetLogInterface:
		// The interface wants a printf-style variadic C callback, which
		// cannot be expressed here. Cores fall back to their own logging.
		in.log.Debug("log interface declined")
		return false

	case retro.EnvGetCanDupe:
		*(*bool)(data) = true
		return true

	case retro.EnvSetPixelFormat:
		format := retro.PixelFormat(*(*uint32)(data))
		if !format.Valid() {
			return false
		}
		in.mu.Lock()
		in.pixfmt = format
		in.mu.Unlock()
		in.log.Info("pixel format set", zap.Stringer("format", format))
		return true

	case retro.EnvSetHWRender:
		hw := (*cHWRenderCallback)(data)
		hw.getCurrentFramebuffer = in.slot.EntryPoints().CurrentFramebuffer
		hw.getProcAddress = 0
		in.mu.Lock()
		in.hw = retro.HWRenderCallback{
			ContextType:    hw.contextType,
			ContextReset:   hw.contextReset,
			ContextDestroy: hw.contextDestroy,
			VersionMajor:   hw.versionMajor,
			VersionMinor:   hw.versionMinor,
			Depth:          hw.depth,
			Stencil:        hw.stencil,
			BottomLeft:     hw.bottomLeftOrigin,
			CacheContext:   hw.cacheContext,
			DebugContext:   hw.debugContext,
		}
		in.accelerated = true
		in.mu.Unlock()
		in.log.Info("hardware render context requested",
			zap.Uint32("contextType", hw.contextType),
			zap.Uint32("major", hw.versionMajor),
			zap.Uint32("minor", hw.versionMinor))
		return true

	case retro.EnvSetFrameTimeCallback:
		ft := (*cFrameTimeCallback)(data)
		in.frameTimeRef = ft.reference
		if ft.callback != 0 {
			var fn func(int64)
			purego.RegisterFunc(&fn, ft.callback)
			in.frameTimeFn = fn
		} else {
			in.frameTimeFn = nil
		}
		return true

	case retro.EnvSetAudioCallback:
		ac := (*cAudioCallback)(data)
		if ac.callback != 0 {
			var fn func()
			purego.RegisterFunc(&fn, ac.callback)
			in.audioCbFn = fn
		} else {
			in.audioCbFn = nil
		}
		if ac.setState != 0 {
			var fn func(bool)
			purego.RegisterFunc(&fn, ac.setState)
			in.audioSetStateFn = fn
		} else {
			in.audioSetStateFn = nil
		}
		return true

	case retro.EnvGetSaveDirectory:
		*(**byte)(data) = in.cString(in.params.SaveDir)
		return true

	case retro.EnvGetSystemDirectory:
		*(**byte)(data) = in.cString(in.params.SystemDir)
		return true

	case retro.EnvGetUsername:
		if in.params.Username == "" {
			return false
		}
		*(**byte)(data) = in.cString(in.params.Username)
		return true

	case retro.EnvGetLanguage:
		*(*uint32)(data) = retro.LanguageEnglish
		return true

	case retro.EnvGetAudioVideoEnable:
		return false

	case retro.EnvSetInputDescriptors:
		d := (*cInputDescriptor)(data)
		for ; d.description != nil; d = (*cInputDescriptor)(unsafe.Add(unsafe.Pointer(d), unsafe.Sizeof(cInputDescriptor{}))) {
			in.log.Debug("input descriptor",
				zap.Uint32("port", d.port),
				zap.Uint32("device", d.device),
				zap.Uint32("id", d.id),
				zap.String("description", goString(d.description)))
		}
		return true

	case retro.EnvGetPreferredHWRender:
		*(*uint32)(data) = retro.HWContextOpenGLCore
		return true

	case retro.EnvSetHWSharedContext:
		return true

	case retro.EnvSetHWRenderContextNegotiationIface:
		in.hwNegotiation = uintptr(data)
		return true

	default:
		in.log.Warn("unhandled environment command", zap.Uint32("cmd", cmd))
		return false
	}
}

// cString returns a NUL-terminated copy of s pinned for the core's use.
// Identical strings share one allocation; everything unpins at teardown.
// Instance thread only.
func (in *Instance) cString(s string) *byte {
	if p, ok := in.cstrs[s]; ok {
		return p
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	p := &b[0]
	in.pin.Pin(p)
	in.cstrs[s] = p
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
