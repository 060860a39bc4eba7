// Package host composes the runtime. One Host owns the shared save
// scheduler, the module backend, and the registry of live instances; it
// launches instances against its configuration and tears them all down on
// shutdown.
package host

import (
	"sync"

	"go.uber.org/zap"

	"github.com/yosanyu/retromux/config"
	"github.com/yosanyu/retromux/instance"
	"github.com/yosanyu/retromux/iosched"
	"github.com/yosanyu/retromux/loader"
	"github.com/yosanyu/retromux/sink"
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger handed to every instance.
func WithLogger(log *zap.Logger) Option {
	return func(h *Host) { h.log = log }
}

// WithBackend replaces the platform dynamic loader, mainly for tests.
func WithBackend(b loader.Backend) Option {
	return func(h *Host) { h.backend = b }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(h *Host) { h.cfg = cfg }
}

// WithAudioSink installs a factory building one audio sink per launch.
func WithAudioSink(f func() sink.Audio) Option {
	return func(h *Host) { h.audioFn = f }
}

// WithVideoSink installs a factory building one video sink per launch.
func WithVideoSink(f func() sink.Video) Option {
	return func(h *Host) { h.videoFn = f }
}

// WithInputSink installs a factory building one input source per launch.
func WithInputSink(f func() sink.Input) Option {
	return func(h *Host) { h.inputFn = f }
}

// Host launches and tracks instances.
type Host struct {
	log     *zap.Logger
	cfg     *config.Config
	backend loader.Backend
	sched   *iosched.Scheduler
	audioFn func() sink.Audio
	videoFn func() sink.Video
	inputFn func() sink.Input

	mu        sync.Mutex
	instances []*instance.Instance
}

// New builds a Host and makes sure its save and system directories exist.
func New(opts ...Option) (*Host, error) {
	h := &Host{
		cfg:     config.Default(),
		backend: loader.DylibBackend{},
		sched:   iosched.New(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if err := config.EnsureDirectories(h.cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// LaunchSpec names what to run and optionally overrides the host's sinks
// and core options for this one instance.
type LaunchSpec struct {
	ModulePath  string
	ContentPath string

	// Variables overlays config.CoreOptions for this instance.
	Variables map[string]string

	Audio sink.Audio
	Video sink.Video
	Input sink.Input

	OnReady func(error)
}

// Launch starts one instance. The error covers only the synchronous part
// (slot capacity, missing files); load failures surface through the
// instance's WaitReady or the spec's OnReady.
func (h *Host) Launch(spec LaunchSpec) (*instance.Instance, error) {
	vars := make(map[string]string, len(h.cfg.CoreOptions)+len(spec.Variables))
	for k, v := range h.cfg.CoreOptions {
		vars[k] = v
	}
	for k, v := range spec.Variables {
		vars[k] = v
	}

	audio := spec.Audio
	if audio == nil && h.audioFn != nil {
		audio = h.audioFn()
	}
	video := spec.Video
	if video == nil && h.videoFn != nil {
		video = h.videoFn()
	}
	input := spec.Input
	if input == nil && h.inputFn != nil {
		input = h.inputFn()
	}

	in, err := instance.Launch(instance.Params{
		ModulePath:       spec.ModulePath,
		ContentPath:      spec.ContentPath,
		SaveDir:          h.cfg.SaveDir,
		SystemDir:        h.cfg.SystemDir,
		Username:         h.cfg.Username,
		Variables:        vars,
		AudioQueueFrames: h.cfg.AudioQueueFrames,
		ContentSizeLimit: int64(h.cfg.ContentSizeLimitMB) << 20,
		FrameLagReset:    h.cfg.FrameLagReset,
		Audio:            audio,
		Video:            video,
		Input:            input,
		Backend:          h.backend,
		Scheduler:        h.sched,
		Log:              h.log,
		OnReady:          spec.OnReady,
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.instances = append(h.instances, in)
	h.mu.Unlock()

	h.log.Info("instance launched",
		zap.String("module", spec.ModulePath),
		zap.String("content", spec.ContentPath),
		zap.Int("slot", int(in.SlotID())))
	return in, nil
}

// Instances returns the live instances, dropping any that have fully
// stopped since the last call.
func (h *Host) Instances() []*instance.Instance {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.instances[:0]
	for _, in := range h.instances {
		select {
		case <-in.Done():
		default:
			kept = append(kept, in)
		}
	}
	h.instances = kept
	return append([]*instance.Instance(nil), kept...)
}

// ShutdownAll asks every instance to stop and waits until each has torn
// down.
func (h *Host) ShutdownAll() {
	h.mu.Lock()
	all := append([]*instance.Instance(nil), h.instances...)
	h.instances = nil
	h.mu.Unlock()

	for _, in := range all {
		in.Shutdown()
	}
	for _, in := range all {
		<-in.Done()
	}
	if len(all) > 0 {
		h.log.Info("all instances stopped", zap.Int("count", len(all)))
	}
}
