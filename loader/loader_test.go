package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/trampoline"
)

// stubCore satisfies Core without touching any dynamic loader. It records
// the call order that matters to Open and Close.
type stubCore struct {
	apiVersion uint32
	calls      []string
	slot       *trampoline.Slot
	inits      int
	deinits    int
	closes     int
}

func (c *stubCore) APIVersion() uint32 { return c.apiVersion }

func (c *stubCore) Init() {
	c.inits++
	c.calls = append(c.calls, "init")
}

func (c *stubCore) Deinit() {
	c.deinits++
	c.calls = append(c.calls, "deinit")
}

func (c *stubCore) SystemInfo() retro.SystemInfo { return retro.SystemInfo{LibraryName: "stub"} }
func (c *stubCore) SystemAVInfo() retro.AVInfo   { return retro.AVInfo{} }

func (c *stubCore) SetCallbacks(slot *trampoline.Slot) {
	c.slot = slot
	c.calls = append(c.calls, "set_callbacks")
}

func (c *stubCore) SetControllerPortDevice(port, device uint32) {}
func (c *stubCore) Reset()                                      {}
func (c *stubCore) Run()                                        {}

func (c *stubCore) LoadGame(info retro.GameInfo) bool { return true }
func (c *stubCore) UnloadGame()                       {}

func (c *stubCore) MemoryData(id uint32) unsafe.Pointer { return nil }
func (c *stubCore) MemorySize(id uint32) uintptr        { return 0 }

func (c *stubCore) SerializeSize() uintptr      { return 0 }
func (c *stubCore) Serialize(buf []byte) bool   { return false }
func (c *stubCore) Unserialize(buf []byte) bool { return false }

func (c *stubCore) Close() error {
	c.closes++
	c.calls = append(c.calls, "close")
	return nil
}

type stubBackend struct {
	core   *stubCore
	err    error
	loaded []string
}

func (b *stubBackend) Load(path string) (Core, error) {
	b.loaded = append(b.loaded, path)
	if b.err != nil {
		return nil, b.err
	}
	if b.core == nil {
		b.core = &stubCore{apiVersion: retro.APIVersion}
	}
	return b.core, nil
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("image"), 0o755); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestOpenCallOrder(t *testing.T) {
	image := writeImage(t, t.TempDir(), "core.so")
	backend := &stubBackend{core: &stubCore{apiVersion: retro.APIVersion}}

	slot, err := trampoline.Acquire()
	if err != nil {
		t.Fatalf("acquire slot: %v", err)
	}
	defer slot.Release()

	mod, err := Open(image, backend, slot, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	got := backend.core.calls
	if len(got) != 2 || got[0] != "set_callbacks" || got[1] != "init" {
		t.Fatalf("expected callbacks registered before init, got %v", got)
	}
	if backend.core.slot != slot {
		t.Fatalf("core received the wrong slot")
	}

	if err := mod.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got = backend.core.calls
	if len(got) != 4 || got[2] != "deinit" || got[3] != "close" {
		t.Fatalf("expected deinit before close, got %v", got)
	}
}

func TestOpenInitDeinitExactlyOnce(t *testing.T) {
	image := writeImage(t, t.TempDir(), "core.so")
	backend := &stubBackend{core: &stubCore{apiVersion: retro.APIVersion}}

	slot, err := trampoline.Acquire()
	if err != nil {
		t.Fatalf("acquire slot: %v", err)
	}
	defer slot.Release()

	mod, err := Open(image, backend, slot, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mod.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close is idempotent; the core must not see a second deinit.
	if err := mod.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if backend.core.inits != 1 || backend.core.deinits != 1 {
		t.Fatalf("expected init/deinit exactly once, got %d/%d",
			backend.core.inits, backend.core.deinits)
	}
}

func TestOpenDistinctImagesPerInstance(t *testing.T) {
	image := writeImage(t, t.TempDir(), "core.so")

	var mods []*Module
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		slot, err := trampoline.Acquire()
		if err != nil {
			t.Fatalf("acquire slot %d: %v", i, err)
		}
		defer slot.Release()

		backend := &stubBackend{}
		mod, err := Open(image, backend, slot, nil)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		mods = append(mods, mod)

		if mod.CopyIndex() != i {
			t.Fatalf("expected copy index %d, got %d", i, mod.CopyIndex())
		}
		if seen[mod.ImagePath()] {
			t.Fatalf("image path %q issued twice", mod.ImagePath())
		}
		seen[mod.ImagePath()] = true
		if _, err := os.Stat(mod.ImagePath()); err != nil {
			t.Fatalf("image %d not on disk: %v", i, err)
		}
	}

	// The first instance maps the original file, later ones map duplicates.
	if mods[0].ImagePath() != image {
		t.Fatalf("expected first instance to use original image, got %q", mods[0].ImagePath())
	}
	for _, mod := range mods {
		if err := mod.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	// Indices recycle once released.
	slot, err := trampoline.Acquire()
	if err != nil {
		t.Fatalf("acquire slot: %v", err)
	}
	defer slot.Release()
	mod, err := Open(image, &stubBackend{}, slot, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer mod.Close()
	if mod.CopyIndex() != 0 {
		t.Fatalf("expected recycled copy index 0, got %d", mod.CopyIndex())
	}
}

func TestOpenBackendFailureReleasesCopy(t *testing.T) {
	image := writeImage(t, t.TempDir(), "core.so")

	slot, err := trampoline.Acquire()
	if err != nil {
		t.Fatalf("acquire slot: %v", err)
	}
	defer slot.Release()

	loadErr := errors.New("unresolved symbol retro_run")
	if _, err := Open(image, &stubBackend{err: loadErr}, slot, nil); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}

	// The failed open must not leak its copy index.
	mod, err := Open(image, &stubBackend{}, slot, nil)
	if err != nil {
		t.Fatalf("open after failure: %v", err)
	}
	defer mod.Close()
	if mod.CopyIndex() != 0 {
		t.Fatalf("expected copy index 0 after failed open, got %d", mod.CopyIndex())
	}
}

func TestOpenMissingImage(t *testing.T) {
	slot, err := trampoline.Acquire()
	if err != nil {
		t.Fatalf("acquire slot: %v", err)
	}
	defer slot.Release()

	_, err = Open(filepath.Join(t.TempDir(), "gone.so"), &stubBackend{}, slot, nil)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen for missing image, got %v", err)
	}
}
