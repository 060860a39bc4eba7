// Package retro holds the libretro ABI vocabulary: environment command
// codes, pixel formats, device and memory identifiers, and the Go-side
// mirrors of the structs exchanged with a core. It carries no behavior.
package retro

// APIVersion is the ABI revision reported by retro_api_version.
const APIVersion = 1

// EnvExperimental flags environment commands that are not yet frozen.
const EnvExperimental = 0x10000

// Environment command codes. Only the ones the runtime answers are named;
// anything else is reported as unsupported to the core.
const (
	EnvSetRotation                          = 1
	EnvGetOverscan                          = 2
	EnvGetCanDupe                           = 3
	EnvSetMessage                           = 6
	EnvShutdown                             = 7
	EnvSetPerformanceLevel                  = 8
	EnvGetSystemDirectory                   = 9
	EnvSetPixelFormat                       = 10
	EnvSetInputDescriptors                  = 11
	EnvSetHWRender                          = 14
	EnvGetVariable                          = 15
	EnvSetVariables                         = 16
	EnvGetVariableUpdate                    = 17
	EnvSetSupportNoGame                     = 18
	EnvGetLibretroPath                      = 19
	EnvSetFrameTimeCallback                 = 21
	EnvSetAudioCallback                     = 22
	EnvGetRumbleInterface                   = 23
	EnvGetInputDeviceCapabilities           = 24
	EnvGetLogInterface                      = 27
	EnvGetPerfInterface                     = 28
	EnvGetCoreAssetsDirectory               = 30
	EnvGetSaveDirectory                     = 31
	EnvSetSystemAVInfo                      = 32
	EnvSetControllerInfo                    = 35
	EnvSetGeometry                          = 37
	EnvGetUsername                          = 38
	EnvGetLanguage                          = 39
	EnvGetCurrentSoftwareFramebuffer        = 40 | EnvExperimental
	EnvGetHWRenderInterface                 = 41 | EnvExperimental
	EnvSetSupportAchievements               = 42 | EnvExperimental
	EnvSetHWRenderContextNegotiationIface   = 43 | EnvExperimental
	EnvSetSerializationQuirks               = 44
	EnvSetHWSharedContext                   = 44 | EnvExperimental
	EnvGetVFSInterface                      = 45 | EnvExperimental
	EnvGetLEDInterface                      = 46 | EnvExperimental
	EnvGetAudioVideoEnable                  = 47 | EnvExperimental
	EnvGetFastforwarding                    = 49 | EnvExperimental
	EnvGetCoreOptionsVersion                = 52
	EnvSetCoreOptions                       = 53
	EnvGetPreferredHWRender                 = 56
)

// PixelFormat identifies the framebuffer encoding negotiated through
// EnvSetPixelFormat. The zero value is the ABI default.
type PixelFormat uint32

const (
	PixelFormat0RGB1555 PixelFormat = 0
	PixelFormatXRGB8888 PixelFormat = 1
	PixelFormatRGB565   PixelFormat = 2
)

// BytesPerPixel returns the byte width of one pixel in this format.
func (f PixelFormat) BytesPerPixel() int {
	if f == PixelFormatXRGB8888 {
		return 4
	}
	return 2
}

func (f PixelFormat) String() string {
	switch f {
	case PixelFormat0RGB1555:
		return "0RGB1555"
	case PixelFormatXRGB8888:
		return "XRGB8888"
	case PixelFormatRGB565:
		return "RGB565"
	default:
		return "unknown"
	}
}

// Valid reports whether the format is one the ABI defines.
func (f PixelFormat) Valid() bool {
	return f <= PixelFormatRGB565
}

// Input device classes.
const (
	DeviceNone     = 0
	DeviceJoypad   = 1
	DeviceMouse    = 2
	DeviceKeyboard = 3
	DeviceLightgun = 4
	DeviceAnalog   = 5
	DevicePointer  = 6
)

// Joypad button IDs for DeviceJoypad input-state queries.
const (
	DeviceIDJoypadB      = 0
	DeviceIDJoypadY      = 1
	DeviceIDJoypadSelect = 2
	DeviceIDJoypadStart  = 3
	DeviceIDJoypadUp     = 4
	DeviceIDJoypadDown   = 5
	DeviceIDJoypadLeft   = 6
	DeviceIDJoypadRight  = 7
	DeviceIDJoypadA      = 8
	DeviceIDJoypadX      = 9
	DeviceIDJoypadL      = 10
	DeviceIDJoypadR      = 11
	DeviceIDJoypadL2     = 12
	DeviceIDJoypadR2     = 13
	DeviceIDJoypadL3     = 14
	DeviceIDJoypadR3     = 15
)

// Analog stick indexes and axis IDs for DeviceAnalog queries.
const (
	DeviceIndexAnalogLeft   = 0
	DeviceIndexAnalogRight  = 1
	DeviceIndexAnalogButton = 2

	DeviceIDAnalogX = 0
	DeviceIDAnalogY = 1
)

// Memory region IDs for retro_get_memory_data/size.
const (
	MemorySaveRAM   = 0
	MemoryRTC       = 1
	MemorySystemRAM = 2
	MemoryVideoRAM  = 3
)

// Region codes reported by retro_get_region.
const (
	RegionNTSC = 0
	RegionPAL  = 1
)

// Language codes answered through EnvGetLanguage.
const (
	LanguageEnglish = 0
)

// Core log levels for the retro_log interface.
const (
	LogDebug = 0
	LogInfo  = 1
	LogWarn  = 2
	LogError = 3
)

// Hardware render context types requested through EnvSetHWRender.
const (
	HWContextNone       = 0
	HWContextOpenGL     = 1
	HWContextOpenGLES2  = 2
	HWContextOpenGLCore = 3
	HWContextOpenGLES3  = 4
	HWContextVulkan     = 6
	HWContextDirect3D   = 7
)

// HWFrameBufferValid is the video-refresh data sentinel meaning "the frame
// was rendered into the hardware target; there is no pixel buffer".
const HWFrameBufferValid = ^uintptr(0)
