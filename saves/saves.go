// Package saves lays out the persistent files one piece of content owns:
// the battery-backed SRAM image and the numbered save-state slots. Blob I/O
// treats a missing file as "no prior save", which is the normal first-run
// case and never an error.
package saves

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout derives the save paths for one piece of content inside a save
// directory. The base name is the content name with its extension stripped,
// so game.sfc and game.smc share nothing but a prefix.
type Layout struct {
	Dir  string
	Base string
}

// NewLayout builds the layout for contentName (a display name or basename,
// extension included) under dir.
func NewLayout(dir, contentName string) Layout {
	base := filepath.Base(contentName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Layout{Dir: dir, Base: base}
}

// SRAMPath returns the battery save path, e.g. saves/game.srm.
func (l Layout) SRAMPath() string {
	return filepath.Join(l.Dir, l.Base+".srm")
}

// StatePath returns the save-state path for a slot, e.g. saves/game-2.state.
func (l Layout) StatePath(slot int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s-%d.state", l.Base, slot))
}

// ReadBlob reads a persisted blob. A missing file returns (nil, false, nil):
// no prior save exists and the caller proceeds with defaults. Any other
// failure is a real error.
func ReadBlob(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read save file: %w", err)
	}
	return data, true, nil
}

// WriteBlob persists a blob, creating the save directory if needed.
func WriteBlob(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write save file: %w", err)
	}
	return nil
}
