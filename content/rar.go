package content

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/nwaples/rardecode/v2"
)

// extractFromRAR extracts the largest matching entry from a RAR archive.
// RAR reads are sequential, so every candidate is decompressed and the
// largest kept.
func extractFromRAR(path string, exts []string, limit int64) ([]byte, string, error) {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open rar: %w", err)
	}
	defer r.Close()

	var best []byte
	bestName := ""
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read rar entry: %w", err)
		}

		if header.IsDir {
			continue
		}
		if !matchesExt(header.Name, exts) {
			continue
		}

		data, err := limitedRead(r, limit)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		if bestName == "" || len(data) > len(best) {
			best = data
			bestName = header.Name
		}
	}
	if bestName == "" {
		return nil, "", ErrNoContent
	}
	return best, filepath.Base(bestName), nil
}
