package content

import (
	"archive/zip"
	"fmt"
	"path/filepath"
)

// extractFromZIP extracts the largest matching entry from a ZIP archive
func extractFromZIP(path string, exts []string, limit int64) ([]byte, string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	var best *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !matchesExt(f.Name, exts) {
			continue
		}
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
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
