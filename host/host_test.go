package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yosanyu/retromux/config"
	"github.com/yosanyu/retromux/coretest"
	"github.com/yosanyu/retromux/instance"
	"github.com/yosanyu/retromux/loader"
	"github.com/yosanyu/retromux/sink"
	"github.com/yosanyu/retromux/trampoline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SaveDir = filepath.Join(dir, "saves")
	cfg.SystemDir = filepath.Join(dir, "system")
	cfg.AudioQueueFrames = 1024
	return cfg
}

func fixtureFiles(t *testing.T) (module, content string) {
	t.Helper()
	dir := t.TempDir()
	module = filepath.Join(dir, "fake_core.so")
	content = filepath.Join(dir, "game.bin")
	require.NoError(t, os.WriteFile(module, []byte{0x7f, 'E', 'L', 'F', 0x02}, 0o755))
	require.NoError(t, os.WriteFile(content, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0o644))
	return module, content
}

func newTestHost(t *testing.T, opts ...Option) *Host {
	t.Helper()
	h, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(h.ShutdownAll)
	return h
}

func launchReady(t *testing.T, h *Host, spec LaunchSpec) *instance.Instance {
	t.Helper()
	in, err := h.Launch(spec)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, in.WaitReady(ctx))
	return in
}

func stopInstance(t *testing.T, in *instance.Instance) {
	t.Helper()
	in.Shutdown()
	select {
	case <-in.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("instance did not stop")
	}
}

func TestNew_EnsuresDirectories(t *testing.T) {
	cfg := testConfig(t)
	newTestHost(t, WithConfig(cfg))

	for _, dir := range []string{cfg.SaveDir, cfg.SystemDir} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir(), dir)
	}
}

func TestNew_UnwritableDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	occupied := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(occupied, []byte("x"), 0o644))

	cfg := testConfig(t)
	cfg.SaveDir = filepath.Join(occupied, "saves")
	_, err := New(WithConfig(cfg))
	require.Error(t, err)
}

func TestLaunch_MissingModuleLeavesRegistryClean(t *testing.T) {
	_, content := fixtureFiles(t)
	backend := coretest.NewBackend(func() *coretest.Core { return &coretest.Core{} })
	h := newTestHost(t, WithConfig(testConfig(t)), WithBackend(backend))

	_, err := h.Launch(LaunchSpec{ModulePath: "/does/not/exist.so", ContentPath: content})
	require.ErrorIs(t, err, loader.ErrOpen)
	assert.Empty(t, h.Instances())
}

// Launching the same module until every dispatch slot is bound must hand
// each instance its own slot and its own physical image file; the launch
// past capacity fails with the capacity sentinel, and releasing the fleet
// makes the slots reusable.
func TestLaunch_FillsEverySlotThenReportsCapacity(t *testing.T) {
	module, content := fixtureFiles(t)
	backend := coretest.NewBackend(func() *coretest.Core { return &coretest.Core{} })
	h := newTestHost(t, WithConfig(testConfig(t)), WithBackend(backend))

	spec := LaunchSpec{ModulePath: module, ContentPath: content}
	all := make([]*instance.Instance, 0, trampoline.Capacity)
	for i := 0; i < trampoline.Capacity; i++ {
		in, err := h.Launch(spec)
		require.NoError(t, err, "launch %d", i)
		all = append(all, in)
	}

	_, err := h.Launch(spec)
	require.ErrorIs(t, err, trampoline.ErrExhausted)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slots := make(map[trampoline.SlotID]bool, len(all))
	for _, in := range all {
		require.NoError(t, in.WaitReady(ctx))
		slots[in.SlotID()] = true
	}
	assert.Len(t, slots, trampoline.Capacity, "every instance got its own slot")

	images := make(map[string]bool)
	for _, p := range backend.Loads() {
		images[p] = true
		fi, statErr := os.Stat(p)
		require.NoError(t, statErr, "image %s must exist on disk", p)
		assert.False(t, fi.IsDir())
	}
	assert.Len(t, images, trampoline.Capacity, "every instance mapped its own image file")
	assert.True(t, images[module], "copy 0 maps the original file")

	require.Len(t, h.Instances(), trampoline.Capacity)
	h.ShutdownAll()
	assert.Empty(t, h.Instances())

	in := launchReady(t, h, spec)
	assert.Equal(t, trampoline.SlotID(0), in.SlotID(), "released slots are handed out again")
}

// Two live instances must keep their video, audio, and input traffic apart,
// and a slot freed by one instance must serve its next owner without any of
// the old owner's wiring leaking through.
func TestInstances_IsolatedTrafficAndSlotReuse(t *testing.T) {
	module, content := fixtureFiles(t)
	pending := make(chan *coretest.Core, 1)
	backend := coretest.NewBackend(func() *coretest.Core { return <-pending })
	h := newTestHost(t, WithConfig(testConfig(t)), WithBackend(backend))

	type rig struct {
		in    *instance.Instance
		core  *coretest.Core
		video *sink.Buffer
		audio *coretest.AudioCapture
	}
	start := func(tag byte, button int16) *rig {
		t.Helper()
		r := &rig{
			core:  &coretest.Core{Tag: tag, AudioPerRun: 4},
			video: sink.NewBuffer(),
			audio: &coretest.AudioCapture{},
		}
		pending <- r.core
		r.in = launchReady(t, h, LaunchSpec{
			ModulePath:  module,
			ContentPath: content,
			Audio:       r.audio,
			Video:       r.video,
			Input:       &coretest.StaticInput{Value: button},
		})
		return r
	}
	settle := func(r *rig) {
		t.Helper()
		require.Eventually(t, func() bool {
			return r.core.Runs() > 5 && len(r.audio.Bytes()) > 0
		}, 5*time.Second, 2*time.Millisecond)
	}
	check := func(r *rig, tag byte, button int16) {
		t.Helper()
		frame, ok := r.video.Read()
		require.True(t, ok, "no frame reached the video sink")
		assert.Equal(t, tag, frame.Pixels[0], "frame carries the wrong instance's tag")
		for i, bb := range r.audio.Bytes() {
			if bb != tag {
				t.Fatalf("audio byte %d = %#x, want %#x", i, bb, tag)
			}
		}
		assert.Equal(t, button, r.core.LastInput(), "core read the wrong instance's input")
	}

	a := start(0x11, 101)
	b := start(0x22, 202)
	settle(a)
	settle(b)
	check(a, 0x11, 101)
	check(b, 0x22, 202)

	aSlot := a.in.SlotID()
	stopInstance(t, a.in)
	require.Len(t, h.Instances(), 1, "stopped instance must drop out of the registry")

	aRuns := a.core.Runs()
	aFrames := a.video.Frames()

	c := start(0x33, 303)
	require.Equal(t, aSlot, c.in.SlotID(), "freed slot is reused")
	settle(c)
	check(c, 0x33, 303)
	check(b, 0x22, 202)

	assert.Equal(t, aRuns, a.core.Runs(), "stopped core must not run again")
	assert.Equal(t, aFrames, a.video.Frames(), "stopped instance's sink must stay quiet")
}

// One instance saves, a second instance of the same module and content
// loads. The second core answers the size query differently by then; the
// load must tolerate that and still restore the snapshot.
func TestStateRoundtrip_AcrossInstancesOfOneModule(t *testing.T) {
	module, content := fixtureFiles(t)
	pending := make(chan *coretest.Core, 1)
	backend := coretest.NewBackend(func() *coretest.Core { return <-pending })
	cfg := testConfig(t)
	h := newTestHost(t, WithConfig(cfg), WithBackend(backend))

	spec := LaunchSpec{ModulePath: module, ContentPath: content}

	pending <- &coretest.Core{SerializeJitter: 8}
	a := launchReady(t, h, spec)
	coreA := backend.Core(0)

	require.Eventually(t, func() bool { return coreA.Runs() > 10 },
		5*time.Second, 2*time.Millisecond)
	a.Pause(true)
	mark := coreA.Runs()
	require.NoError(t, <-a.SaveState(1))

	fi, err := os.Stat(filepath.Join(cfg.SaveDir, "game-1.state"))
	require.NoError(t, err)
	require.Greater(t, fi.Size(), int64(0))

	pending <- &coretest.Core{SerializeJitter: 8}
	b := launchReady(t, h, spec)
	coreB := backend.Core(1)

	require.Eventually(t, func() bool { return coreB.Runs() > mark },
		5*time.Second, 2*time.Millisecond)
	b.Pause(true)

	// A save on B moves its size answer past the stored snapshot's size,
	// so the load below exercises the mismatch-tolerant path.
	require.NoError(t, <-b.SaveState(2))
	require.NoError(t, <-b.LoadState(1))
	assert.Equal(t, mark, coreB.Runs(), "snapshot from instance A restored into B")
}

func TestLaunch_ConfigOptionsAndOverrides(t *testing.T) {
	module, content := fixtureFiles(t)
	pending := make(chan *coretest.Core, 1)
	backend := coretest.NewBackend(func() *coretest.Core { return <-pending })

	cfg := testConfig(t)
	cfg.CoreOptions = map[string]string{"fake_region": "pal"}

	var videoMade, audioMade int
	h := newTestHost(t,
		WithConfig(cfg),
		WithBackend(backend),
		WithVideoSink(func() sink.Video { videoMade++; return sink.NewBuffer() }),
		WithAudioSink(func() sink.Audio { audioMade++; return &sink.NullAudio{} }),
	)

	vars := [][2]string{
		{"fake_region", "Region; ntsc|pal"},
		{"fake_speed", "Speed; 1|2|4"},
	}

	pending <- &coretest.Core{Variables: vars}
	launchReady(t, h, LaunchSpec{ModulePath: module, ContentPath: content})

	got, ok := backend.Core(0).VarSeen("fake_region")
	require.True(t, ok)
	assert.Equal(t, "pal", got, "config option overrides the declared default")
	got, ok = backend.Core(0).VarSeen("fake_speed")
	require.True(t, ok)
	assert.Equal(t, "1", got, "declared default fills options the config leaves alone")

	pending <- &coretest.Core{Variables: vars}
	in := launchReady(t, h, LaunchSpec{
		ModulePath:  module,
		ContentPath: content,
		Variables:   map[string]string{"fake_region": "ntsc"},
		Video:       sink.NewBuffer(),
	})

	got, ok = backend.Core(1).VarSeen("fake_region")
	require.True(t, ok)
	assert.Equal(t, "ntsc", got, "launch overlay wins over the config")
	v, ok := in.Variable("fake_region")
	require.True(t, ok)
	assert.Equal(t, "ntsc", v)

	assert.Equal(t, 1, videoMade, "explicit sink suppresses the factory")
	assert.Equal(t, 2, audioMade)
}

func TestShutdownAll_StopsEverything(t *testing.T) {
	module, content := fixtureFiles(t)
	backend := coretest.NewBackend(func() *coretest.Core { return &coretest.Core{} })
	h := newTestHost(t, WithConfig(testConfig(t)), WithBackend(backend))

	spec := LaunchSpec{ModulePath: module, ContentPath: content}
	ins := make([]*instance.Instance, 0, 3)
	for i := 0; i < 3; i++ {
		ins = append(ins, launchReady(t, h, spec))
	}

	h.ShutdownAll()

	for i, in := range ins {
		select {
		case <-in.Done():
		default:
			t.Fatalf("instance %d still running after ShutdownAll", i)
		}
		assert.Equal(t, instance.StateStopped, in.State())
	}
	assert.Empty(t, h.Instances())

	for i, core := range backend.Cores() {
		assert.Equal(t, 1, core.Deinits(), "core %d deinit", i)
		assert.Equal(t, 1, core.Closes(), "core %d close", i)
		assert.Equal(t, 1, core.Unloads(), "core %d unload", i)
	}
}
