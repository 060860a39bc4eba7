package content

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractFromGzip extracts content from a gzip or tar.gz archive
func extractFromGzip(path string, exts []string, limit int64) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open gzip: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	// Check if this is a tar.gz or just a .gz
	lowerPath := strings.ToLower(path)
	if strings.HasSuffix(lowerPath, ".tar.gz") || strings.HasSuffix(lowerPath, ".tgz") {
		return extractFromTar(gr, exts, limit)
	}

	// Plain .gz file - the decompressed stream is the content itself.
	// Use the base name without .gz extension
	data, err := limitedRead(gr, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress gzip: %w", err)
	}

	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-3]
	}
	return data, name, nil
}

// extractFromTar extracts the largest matching entry from a tar archive
func extractFromTar(r io.Reader, exts []string, limit int64) ([]byte, string, error) {
	tr := tar.NewReader(r)

	var best []byte
	bestName := ""
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}
		if !matchesExt(header.Name, exts) {
			continue
		}

		data, err := limitedRead(tr, limit)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s from tar: %w", header.Name, err)
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
