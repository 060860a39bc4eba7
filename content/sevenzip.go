package content

import (
	"fmt"
	"path/filepath"

	"github.com/bodgit/sevenzip"
)

// extractFrom7z extracts the largest matching entry from a 7z archive
func extractFrom7z(path string, exts []string, limit int64) ([]byte, string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open 7z: %w", err)
	}
	defer r.Close()

	var best *sevenzip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !matchesExt(f.Name, exts) {
			continue
		}
		if best == nil || f.FileInfo().Size() > best.FileInfo().Size() {
			best = f
		}
	}
	if best == nil {
		return nil, "", ErrNoContent
	}

	rc, err := best.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s in archive: %w", best.Name, err)
	}
	defer rc.Close()

	data, err := limitedRead(rc, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", best.Name, err)
	}
	return data, filepath.Base(best.Name), nil
}
