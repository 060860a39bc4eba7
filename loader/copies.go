package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CopiesPerModule caps how many images of one module path may be mapped at
// once. Copy 0 is the original file; higher indices are physical duplicates.
const CopiesPerModule = 64

// ErrNoFreeCopy is the capacity error for a module whose copy indices are
// all in use. Retiring an instance of that module frees one.
var ErrNoFreeCopy = errors.New("loader: no free image copy for module")

var (
	copyMu      sync.Mutex
	copiesInUse = map[string]*[CopiesPerModule]bool{}
)

func acquireCopy(path string) (int, error) {
	copyMu.Lock()
	defer copyMu.Unlock()
	slots := copiesInUse[path]
	if slots == nil {
		slots = new([CopiesPerModule]bool)
		copiesInUse[path] = slots
	}
	for i := range slots {
		if !slots[i] {
			slots[i] = true
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoFreeCopy, path)
}

func releaseCopy(path string, idx int) {
	copyMu.Lock()
	defer copyMu.Unlock()
	if slots := copiesInUse[path]; slots != nil {
		slots[idx] = false
	}
}

// copyPath derives the duplicate filename for copy idx: the original path
// with the index spliced in front of the extension, e.g. snes.so -> snes2.so.
func copyPath(path string, idx int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s%d%s", strings.TrimSuffix(path, ext), idx, ext)
}

// duplicateImage materializes the physical file for copy idx of the module
// at path. Copy 0 is the original; for higher indices an existing duplicate
// from an earlier run is reused as-is.
func duplicateImage(path string, idx int) (string, error) {
	if idx == 0 {
		return path, nil
	}
	dst := copyPath(path, idx)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("duplicate module image: %w", err)
	}
	defer src.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp*")
	if err != nil {
		return "", fmt.Errorf("duplicate module image: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("duplicate module image: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("duplicate module image: %w", err)
	}
	if err := os.Chmod(out.Name(), 0o755); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("duplicate module image: %w", err)
	}
	// The rename keeps another process from ever mapping a half-written
	// image under the duplicate's name.
	if err := os.Rename(out.Name(), dst); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("duplicate module image: %w", err)
	}
	return dst, nil
}
