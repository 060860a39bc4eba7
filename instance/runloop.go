package instance

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/yosanyu/retromux/content"
	"github.com/yosanyu/retromux/loader"
	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/saves"
	"github.com/yosanyu/retromux/sink"
)

// run is the instance thread. Every call into the core happens here, on one
// locked OS thread, from retro_init through retro_deinit.
func (in *Instance) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	in.setState(StateLoading)
	err := in.load()
	if err != nil {
		in.log.Error("load failed", zap.Error(err))
	} else {
		in.setState(StateReady)
	}
	in.readyErr = err
	close(in.ready)
	if in.params.OnReady != nil {
		in.params.OnReady(err)
	}

	if err == nil {
		in.setState(StateRunning)
		in.loop()
	}

	in.teardown()
	in.setState(StateStopped)
	close(in.done)
}

// load maps the module image, resolves content the way the core wants it,
// and runs the load handshake. Partial progress is left in fields for
// teardown to unwind.
func (in *Instance) load() error {
	mod, err := loader.Open(in.params.ModulePath, in.backend, in.slot, in.log)
	if err != nil {
		return err
	}
	in.mod = mod

	si := mod.SystemInfo()
	in.mu.Lock()
	in.sysInfo = si
	in.mu.Unlock()

	game, err := content.Resolve(in.params.ContentPath,
		content.Extensions(si.ValidExtensions), si.NeedFullPath, in.params.ContentSizeLimit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContentLoad, err)
	}
	in.game = game

	info := retro.GameInfo{Path: game.Path, Data: game.Data}
	if !mod.LoadGame(info) {
		return fmt.Errorf("%w: core refused %s", ErrContentLoad, game.Name)
	}
	in.loaded = true

	av := mod.SystemAVInfo()
	if av.Timing.FPS <= 0 {
		in.log.Warn("core reports no frame rate, assuming 60", zap.Float64("fps", av.Timing.FPS))
		av.Timing.FPS = 60
	}
	rate := int(av.Timing.SampleRate)
	if rate <= 0 {
		in.log.Warn("core reports no sample rate, assuming 44100", zap.Int("rate", rate))
		rate = 44100
	}

	in.mu.Lock()
	in.avInfo = av
	in.contentName = game.Name
	in.layout = saves.NewLayout(in.params.SaveDir, game.Name)
	in.mu.Unlock()

	in.log.Info("content loaded",
		zap.String("core", si.LibraryName),
		zap.String("content", game.Name),
		zap.Float64("fps", av.Timing.FPS),
		zap.Float64("sampleRate", av.Timing.SampleRate),
		zap.Int("width", av.Geometry.BaseWidth),
		zap.Int("height", av.Geometry.BaseHeight))

	if err := in.params.Audio.Start(in.bridge, rate); err != nil {
		// No consumer: leave the bridge dead so writes are swallowed
		// instead of piling up as drops.
		in.log.Warn("audio sink failed to start, discarding samples", zap.Error(err))
	} else {
		in.bridge.SetLive(true)
	}
	if in.audioSetStateFn != nil {
		in.audioSetStateFn(true)
	}

	mod.SetControllerPortDevice(0, retro.DeviceJoypad)

	in.loadSaveRAM()
	return nil
}

// loop paces retro_run at the core's reported frame rate. Pacing is
// bookkept against a baseline: frames/fps minus wall time elapsed is how
// long to sleep, and falling behind by more than the lag-reset window moves
// the baseline instead of running catch-up frames. A pause grows elapsed
// past the window, so resuming always lands on the reset path rather than a
// burst.
func (in *Instance) loop() {
	in.mu.RLock()
	fps := in.avInfo.Timing.FPS
	in.mu.RUnlock()

	start := time.Now()
	ran := 0
	var lastUs int64

	for in.checkPause() {
		in.drainTasks()

		if in.frameTimeFn != nil {
			nowUs := time.Now().UnixMicro()
			in.frameTimeFn(frameDelta(lastUs, nowUs, in.frameTimeRef))
			lastUs = nowUs
		}
		if in.audioCbFn != nil {
			in.audioCbFn()
		}

		in.mod.Run()
		ran++
		in.frames.Add(1)

		sleep := float64(ran)/fps - time.Since(start).Seconds()
		if sleep < -in.params.FrameLagReset/fps {
			start = time.Now()
			ran = 0
			sleep = 0
		}
		if sleep > 0 {
			time.Sleep(time.Duration(sleep * float64(time.Second)))
		}
	}
}

// frameDelta is the elapsed microseconds to hand the core's frame-time
// callback. The first frame has no predecessor and reports the core's own
// reference interval.
func frameDelta(prevUs, nowUs, referenceUs int64) int64 {
	if prevUs == 0 {
		return referenceUs
	}
	return nowUs - prevUs
}

// checkPause runs between frames. When a pause is pending it acknowledges,
// publishes the Paused state, and sits servicing control tasks until
// resumed or stopped. Returns false when the loop should exit.
func (in *Instance) checkPause() bool {
	in.ctlMu.Lock()
	if in.stopReq {
		in.ctlMu.Unlock()
		return false
	}
	if !in.pauseReq {
		in.ctlMu.Unlock()
		return true
	}
	in.paused = true
	in.ctlMu.Unlock()

	in.setState(StatePaused)
	select {
	case in.ackCh <- struct{}{}:
	default:
	}

	for {
		in.ctlMu.Lock()
		if in.stopReq {
			in.ctlMu.Unlock()
			return false
		}
		if !in.pauseReq {
			in.paused = false
			in.ctlMu.Unlock()
			in.setState(StateRunning)
			return true
		}
		in.ctlMu.Unlock()

		in.drainTasks()
		time.Sleep(10 * time.Millisecond)
	}
}

// drainTasks runs every queued control operation. Instance thread only.
func (in *Instance) drainTasks() {
	for {
		select {
		case fn := <-in.tasks:
			fn(in.mod)
		default:
			return
		}
	}
}

// teardown unwinds whatever load built, in the reverse order the core needs:
// pending tasks while the core is still up, save RAM flushed before deinit,
// the slot released only after the image is gone, sinks last. Tasks stranded
// in the queue see Done close and fail with ErrStopped on the caller side.
func (in *Instance) teardown() {
	in.setState(StateStopping)

	if in.mod != nil {
		in.drainTasks()
		if in.audioSetStateFn != nil {
			in.audioSetStateFn(false)
		}
		in.bridge.SetLive(false)
		if in.loaded {
			in.flushSaveRAM()
			in.mod.UnloadGame()
		}
		if err := in.mod.Close(); err != nil {
			in.log.Warn("module close failed", zap.Error(err))
		}
	}

	in.slot.Release()
	in.pin.Unpin()

	if in.game != nil {
		if err := in.game.Close(); err != nil {
			in.log.Warn("content cleanup failed", zap.Error(err))
		}
	}

	in.bridge.Close()
	if err := in.params.Audio.Close(); err != nil {
		in.log.Warn("audio sink close failed", zap.Error(err))
	}
	if err := in.params.Video.Close(); err != nil {
		in.log.Warn("video sink close failed", zap.Error(err))
	}

	in.log.Info("stopped",
		zap.Uint64("frames", in.frames.Load()),
		zap.Uint64("audioDropped", in.bridge.Dropped()))
}

// loadSaveRAM restores the core's save RAM region from disk. Runs inline on
// the instance thread through the save scheduler so a restore always sees
// any still-queued write to the same file.
func (in *Instance) loadSaveRAM() {
	mem := loader.MemoryBytes(in.mod, retro.MemorySaveRAM)
	if len(mem) == 0 {
		return
	}
	layout, err := in.layoutLocked()
	if err != nil {
		return
	}
	path := layout.SRAMPath()

	err = in.sched.Ordered(path, func() error {
		data, ok, err := saves.ReadBlob(path)
		if err != nil {
			return err
		}
		if !ok {
			in.log.Debug("no prior save RAM", zap.String("path", path))
			return nil
		}
		if len(data) != len(mem) {
			in.log.Warn("save RAM size mismatch",
				zap.String("path", path),
				zap.Int("file", len(data)),
				zap.Int("region", len(mem)))
		}
		copy(mem, data)
		in.log.Info("save RAM restored", zap.String("path", path), zap.Int("bytes", len(data)))
		return nil
	})()
	if err != nil {
		in.log.Warn("save RAM load failed", zap.String("path", path), zap.Error(err))
	}
}

// flushSaveRAM writes the core's save RAM region to disk and waits for the
// write, so the file is settled before retro_deinit frees the region.
func (in *Instance) flushSaveRAM() {
	mem := loader.MemoryBytes(in.mod, retro.MemorySaveRAM)
	if len(mem) == 0 {
		return
	}
	layout, err := in.layoutLocked()
	if err != nil {
		return
	}
	path := layout.SRAMPath()

	data := make([]byte, len(mem))
	copy(data, mem)
	err = in.sched.Ordered(path, func() error {
		return saves.WriteBlob(path, data)
	})()
	if err != nil {
		in.log.Warn("save RAM write failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.log.Info("save RAM written", zap.String("path", path), zap.Int("bytes", len(data)))
}

// Callback surface. All of these arrive on the instance thread, from inside
// retro_run or the load handshake.

func (in *Instance) videoRefresh(data unsafe.Pointer, width, height uint32, pitch uintptr) {
	if data == nil {
		// Duplicate frame: the previous image stands.
		in.dupFrames.Add(1)
		return
	}
	if uintptr(data) == retro.HWFrameBufferValid {
		// Rendered into the hardware target; no pixel buffer to copy.
		in.hwFrames.Add(1)
		return
	}

	n := int(pitch) * int(height)
	if n <= 0 {
		return
	}
	in.mu.RLock()
	format := in.pixfmt
	in.mu.RUnlock()

	f := sink.Frame{
		Width:  int(width),
		Height: int(height),
		Pitch:  int(pitch),
		Format: format,
		Pixels: unsafe.Slice((*byte)(data), n),
	}
	in.params.Video.Refresh(&f)
}

func (in *Instance) audioSample(left, right int16) {
	buf := [2]int16{left, right}
	in.bridge.WriteFrames(buf[:])
}

func (in *Instance) audioSampleBatch(data unsafe.Pointer, frames int) int {
	if data == nil || frames <= 0 {
		return 0
	}
	return in.bridge.WriteFrames(unsafe.Slice((*int16)(data), frames*2))
}

func (in *Instance) inputPoll() {
	in.params.Input.Poll()
}

func (in *Instance) inputState(port, device, index, id uint32) int16 {
	return in.params.Input.State(port, device, index, id)
}
