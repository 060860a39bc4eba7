package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
)

// FrameDumper writes every Nth frame to dir as a numbered BMP image.
// Encoding happens on the emulation thread, so a small interval slows the
// instance down; it is meant for inspection, not recording.
type FrameDumper struct {
	dir   string
	every uint64
	seen  uint64
	err   error
}

// NewFrameDumper dumps one frame out of every `every` to dir, which is
// created if needed.
func NewFrameDumper(dir string, every int) (*FrameDumper, error) {
	if every < 1 {
		every = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create frame dump directory: %w", err)
	}
	return &FrameDumper{dir: dir, every: uint64(every)}, nil
}

func (d *FrameDumper) Refresh(f *Frame) {
	d.seen++
	if (d.seen-1)%d.every != 0 || d.err != nil {
		return
	}

	path := filepath.Join(d.dir, fmt.Sprintf("frame-%06d.bmp", d.seen-1))
	out, err := os.Create(path)
	if err != nil {
		d.err = fmt.Errorf("failed to create frame dump: %w", err)
		return
	}
	if err := bmp.Encode(out, f.RGBA()); err != nil {
		out.Close()
		d.err = fmt.Errorf("failed to encode frame dump: %w", err)
		return
	}
	if err := out.Close(); err != nil {
		d.err = err
	}
}

// Close reports the first write or encode failure, if any.
func (d *FrameDumper) Close() error { return d.err }
