// Package instance runs one core from load to teardown. Each instance owns
// a dedicated OS thread that performs every call into the core, a trampoline
// slot carrying its callback identity, and the sinks its output lands in.
// The host talks to a running instance through a small control surface;
// anything that must touch the core is enqueued onto the instance thread.
package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yosanyu/retromux/audio"
	"github.com/yosanyu/retromux/content"
	"github.com/yosanyu/retromux/iosched"
	"github.com/yosanyu/retromux/loader"
	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/saves"
	"github.com/yosanyu/retromux/sink"
	"github.com/yosanyu/retromux/trampoline"
)

// State is where an instance is in its lifecycle. Transitions only move
// forward except for the Running/Paused pair.
type State int32

const (
	StateCreated State = iota
	StateLoading
	StateReady
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrStopped reports a control operation arriving after the instance
	// shut down.
	ErrStopped = errors.New("instance: stopped")
	// ErrNotReady reports a control operation arriving before content
	// finished loading.
	ErrNotReady = errors.New("instance: content not loaded")
	// ErrContentLoad reports content the core refused or the runtime could
	// not resolve. The instance never reaches Running.
	ErrContentLoad = errors.New("instance: cannot load content")
	// ErrSerialize reports a core that cannot produce a state snapshot.
	ErrSerialize = errors.New("instance: core cannot serialize")
	// ErrUnserialize reports a core that rejected a state snapshot.
	ErrUnserialize = errors.New("instance: core rejected state data")
	// ErrNoState reports a state-load from a slot nothing was saved to.
	ErrNoState = errors.New("instance: no state saved in slot")
)

// DefaultAudioQueueFrames is the bridge capacity used when Params does not
// set one: a quarter second of buffer at 32kHz.
const DefaultAudioQueueFrames = 8192

// taskQueueDepth bounds how many control operations can wait for the
// instance thread before Enqueue blocks.
const taskQueueDepth = 128

// Params configures one instance. ModulePath and ContentPath are required;
// everything else has a workable zero value.
type Params struct {
	ModulePath  string
	ContentPath string

	// SaveDir receives the instance's SRAM file and state snapshots.
	SaveDir string
	// SystemDir is reported to the core when it asks for firmware space.
	SystemDir string
	// Username is reported to the core when set; cores asking for it get
	// "unsupported" otherwise.
	Username string

	// Variables overrides core option defaults by key. Values set here win
	// over the defaults the core declares.
	Variables map[string]string

	// AudioQueueFrames is the sample bridge capacity in stereo frames.
	AudioQueueFrames int
	// ContentSizeLimit caps resident content bytes; zero means the
	// package default.
	ContentSizeLimit int64
	// FrameLagReset is how many frame intervals the loop may fall behind
	// before the pacing baseline resets instead of catching up.
	FrameLagReset float64

	Audio sink.Audio
	Video sink.Video
	Input sink.Input

	// Backend loads the module image. Nil selects the platform dynamic
	// loader.
	Backend loader.Backend
	// Scheduler orders this instance's save traffic against everyone
	// else's. Instances sharing save files must share a scheduler.
	Scheduler *iosched.Scheduler

	Log *zap.Logger

	// OnReady, when set, runs on the instance thread once loading settles,
	// with nil or the load error.
	OnReady func(error)
}

// Instance is one loaded core and the thread driving it.
type Instance struct {
	params  Params
	log     *zap.Logger
	slot    *trampoline.Slot
	sched   *iosched.Scheduler
	bridge  *audio.Bridge
	backend loader.Backend

	state    atomic.Int32
	ready    chan struct{}
	readyErr error
	done     chan struct{}
	tasks    chan func(loader.Core)

	// Pause handshake between the control surface and the loop.
	ctlMu    sync.Mutex
	pauseReq bool
	paused   bool
	stopReq  bool
	ackCh    chan struct{}

	frames    atomic.Uint64
	dupFrames atomic.Uint64
	hwFrames  atomic.Uint64

	opts *options

	mu          sync.RWMutex
	sysInfo     retro.SystemInfo
	avInfo      retro.AVInfo
	layout      saves.Layout
	contentName string
	pixfmt      retro.PixelFormat
	accelerated bool
	hw          retro.HWRenderCallback

	// Everything below is owned by the instance thread.
	mod             *loader.Module
	game            *content.Loaded
	loaded          bool
	frameTimeRef    int64
	frameTimeFn     func(int64)
	audioCbFn       func()
	audioSetStateFn func(bool)
	hwNegotiation   uintptr
	cstrs           map[string]*byte
	pin             runtime.Pinner
}

// Launch acquires a dispatch slot, binds the instance's callbacks to it, and
// starts the instance thread. The synchronous part only verifies the module
// and content files exist and that a slot is free; loading happens on the
// thread and settles through WaitReady or OnReady.
func Launch(p Params) (*Instance, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	if p.Backend == nil {
		p.Backend = loader.DylibBackend{}
	}
	if p.Scheduler == nil {
		p.Scheduler = iosched.New()
	}
	if p.Audio == nil {
		p.Audio = &sink.NullAudio{}
	}
	if p.Video == nil {
		p.Video = sink.NullVideo{}
	}
	if p.Input == nil {
		p.Input = sink.NullInput{}
	}
	if p.AudioQueueFrames <= 0 {
		p.AudioQueueFrames = DefaultAudioQueueFrames
	}
	if p.FrameLagReset <= 0 {
		p.FrameLagReset = 1
	}

	if _, err := os.Stat(p.ModulePath); err != nil {
		return nil, fmt.Errorf("%w: %v", loader.ErrOpen, err)
	}
	if _, err := os.Stat(p.ContentPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentLoad, err)
	}

	slot, err := trampoline.Acquire()
	if err != nil {
		return nil, err
	}

	in := &Instance{
		params:  p,
		log:     log.With(zap.Int("slot", int(slot.ID()))),
		slot:    slot,
		sched:   p.Scheduler,
		bridge:  audio.NewBridge(p.AudioQueueFrames),
		backend: p.Backend,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		tasks:   make(chan func(loader.Core), taskQueueDepth),
		ackCh:   make(chan struct{}, 1),
		opts:    newOptions(p.Variables),
		cstrs:   make(map[string]*byte),
	}
	in.state.Store(int32(StateCreated))

	slot.Bind(&trampoline.Callbacks{
		Environment:      in.environment,
		VideoRefresh:     in.videoRefresh,
		AudioSample:      in.audioSample,
		AudioSampleBatch: in.audioSampleBatch,
		InputPoll:        in.inputPoll,
		InputState:       in.inputState,
	})

	go in.run()
	return in, nil
}

// State returns the lifecycle state as last published by the instance
// thread.
func (in *Instance) State() State { return State(in.state.Load()) }

func (in *Instance) setState(s State) { in.state.Store(int32(s)) }

// Done is closed once the instance has fully torn down.
func (in *Instance) Done() <-chan struct{} { return in.done }

// WaitReady blocks until loading settles and returns the load error, if
// any.
func (in *Instance) WaitReady(ctx context.Context) error {
	select {
	case <-in.ready:
		return in.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause with on=true blocks until the loop acknowledges that no further
// retro_run will happen; with on=false it lets the loop resume. Pausing an
// instance that is already paused or shutting down returns immediately.
func (in *Instance) Pause(on bool) {
	if !on {
		in.ctlMu.Lock()
		in.pauseReq = false
		in.paused = false
		in.ctlMu.Unlock()
		return
	}

	in.ctlMu.Lock()
	if in.paused || in.pauseReq || in.stopReq {
		in.ctlMu.Unlock()
		return
	}
	in.pauseReq = true
	in.ctlMu.Unlock()

	select {
	case <-in.ackCh:
	case <-in.done:
	}
}

// Paused reports whether the loop is sitting in the pause spin.
func (in *Instance) Paused() bool {
	in.ctlMu.Lock()
	p := in.paused
	in.ctlMu.Unlock()
	return p
}

// Shutdown asks the instance to stop. It returns immediately; Done reports
// completion. Safe to call from any state and more than once.
func (in *Instance) Shutdown() {
	in.ctlMu.Lock()
	in.stopReq = true
	in.pauseReq = false
	in.ctlMu.Unlock()
}

// Enqueue hands fn to the instance thread, which runs it between frames
// with exclusive access to the core. Blocks when the queue is full; fails
// once the instance has stopped.
func (in *Instance) Enqueue(fn func(loader.Core)) error {
	select {
	case <-in.done:
		return ErrStopped
	default:
	}
	select {
	case in.tasks <- fn:
		return nil
	case <-in.done:
		return ErrStopped
	}
}

// Reset presses the core's reset button.
func (in *Instance) Reset() error {
	return in.Enqueue(func(core loader.Core) { core.Reset() })
}

// SetControllerPortDevice tells the core what device sits on a port.
func (in *Instance) SetControllerPortDevice(port, device uint32) error {
	return in.Enqueue(func(core loader.Core) { core.SetControllerPortDevice(port, device) })
}

// SetVariable changes one core option and marks the set dirty so the core
// can pick the change up through its next variable-update query.
func (in *Instance) SetVariable(key, value string) {
	in.opts.set(key, value)
}

// Variable returns the current value of one core option.
func (in *Instance) Variable(key string) (string, bool) {
	return in.opts.get(key)
}

// Variables returns a snapshot of all core options and their current
// values.
func (in *Instance) Variables() map[string]string {
	return in.opts.snapshot()
}

// SystemInfo returns the core's static identity. Valid once ready.
func (in *Instance) SystemInfo() retro.SystemInfo {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.sysInfo
}

// AVInfo returns the core's timing and geometry. Valid once ready.
func (in *Instance) AVInfo() retro.AVInfo {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.avInfo
}

// ContentName returns the basename of the loaded content.
func (in *Instance) ContentName() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.contentName
}

// PixelFormat returns the framebuffer format the core negotiated.
func (in *Instance) PixelFormat() retro.PixelFormat {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.pixfmt
}

// Accelerated reports whether the core asked for a hardware render context.
func (in *Instance) Accelerated() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.accelerated
}

// HWRender returns the recorded hardware-render request, meaningful when
// Accelerated reports true.
func (in *Instance) HWRender() retro.HWRenderCallback {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.hw
}

// FramesRun counts completed retro_run calls.
func (in *Instance) FramesRun() uint64 { return in.frames.Load() }

// DuplicateFrames counts video refreshes that carried no new frame.
func (in *Instance) DuplicateFrames() uint64 { return in.dupFrames.Load() }

// HardwareFrames counts refreshes rendered into the hardware target.
func (in *Instance) HardwareFrames() uint64 { return in.hwFrames.Load() }

// AudioDropped counts stereo frames the bridge had to discard.
func (in *Instance) AudioDropped() uint64 { return in.bridge.Dropped() }

// AudioBuffered returns the bytes currently queued toward the audio sink.
func (in *Instance) AudioBuffered() int { return in.bridge.Buffered() }

// SlotID returns the trampoline slot this instance dispatches through.
func (in *Instance) SlotID() trampoline.SlotID { return in.slot.ID() }

func (in *Instance) layoutLocked() (saves.Layout, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.layout.Base == "" {
		return saves.Layout{}, ErrNotReady
	}
	return in.layout, nil
}
