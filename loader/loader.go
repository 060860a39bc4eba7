package loader

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yosanyu/retromux/retro"
	"github.com/yosanyu/retromux/trampoline"
)

// Module is one live image: a resolved Core plus the copy bookkeeping that
// keeps concurrently loaded instances of the same binary on distinct
// physical files.
type Module struct {
	Core

	path      string
	imagePath string
	copyIdx   int
	closed    atomic.Bool
}

// Open maps a fresh image of the module at path, wires the slot's entry
// points into it via the six registration calls, and runs retro_init. On
// any failure the acquired copy index is released and the handle unloaded
// before the error is returned, so a failed open leaves no side effects.
//
// Init runs exactly once per image; Close pairs it with exactly one Deinit.
func Open(path string, backend Backend, slot *trampoline.Slot, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	copyIdx, err := acquireCopy(path)
	if err != nil {
		return nil, err
	}

	imagePath, err := duplicateImage(path, copyIdx)
	if err != nil {
		releaseCopy(path, copyIdx)
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	core, err := backend.Load(imagePath)
	if err != nil {
		releaseCopy(path, copyIdx)
		return nil, err
	}

	core.SetCallbacks(slot)
	if v := core.APIVersion(); v != retro.APIVersion {
		log.Warn("core reports unexpected API version",
			zap.String("module", path),
			zap.Uint32("version", v))
	}
	core.Init()

	log.Info("core loaded",
		zap.String("module", path),
		zap.String("image", imagePath),
		zap.Int("copy", copyIdx))

	return &Module{
		Core:      core,
		path:      path,
		imagePath: imagePath,
		copyIdx:   copyIdx,
	}, nil
}

// Path returns the module path the image was opened under (the copy key).
func (m *Module) Path() string { return m.path }

// ImagePath returns the physical file the dynamic loader mapped.
func (m *Module) ImagePath() string { return m.imagePath }

// CopyIndex returns which duplicate of the binary this image is.
func (m *Module) CopyIndex() int { return m.copyIdx }

// Close deinitializes the core, unloads the image, and recycles the copy
// index. Safe to call once; later calls are no-ops.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.Core.Deinit()
	err := m.Core.Close()
	releaseCopy(m.path, m.copyIdx)
	return err
}
