// Package content resolves the game file an instance was asked to run into
// what its core actually wants: the raw bytes resident in memory, or just a
// filesystem path when the core declares need_fullpath. Compressed archives
// (ZIP, 7z, gzip, tar.gz, RAR) are detected by magic bytes and the best
// matching entry is extracted, to memory or to a temporary file.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Magic bytes for format detection
var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06} // empty zip
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21} // "Rar!"
)

// DefaultSizeLimit caps resident content when the caller passes no limit.
const DefaultSizeLimit = 64 * 1024 * 1024

// ErrNoContent is returned when an archive holds no entry matching the
// core's extensions.
var ErrNoContent = errors.New("no usable content in archive")

// ErrTooLarge is returned when content exceeds the resident size limit.
var ErrTooLarge = errors.New("content exceeds size limit")

// formatType represents the detected file format
type formatType int

const (
	formatRaw formatType = iota
	formatZIP
	format7z
	formatGzip
	formatRAR
)

// Loaded is resolved content ready to hand to a core. Exactly one of Data
// (resident bytes) or a core-readable Path is the payload, depending on the
// core's need_fullpath; Path is always set for the load_game info record.
type Loaded struct {
	Path string // path to give the core: the original file or an extracted temp file
	Data []byte // resident bytes; nil when the core wants a path only
	Name string // basename of the selected content, for saves and display

	tempDir string
}

// Close removes the temporary extraction directory, if resolution made one.
// The path handed to the core is invalid afterwards.
func (l *Loaded) Close() error {
	if l.tempDir == "" {
		return nil
	}
	dir := l.tempDir
	l.tempDir = ""
	return os.RemoveAll(dir)
}

// Resolve loads the content at path for a core accepting the given
// extensions. With needFullPath the core reads the file itself, so archive
// entries are extracted to a temporary file and that path is returned;
// otherwise the bytes are loaded resident, capped at limit (DefaultSizeLimit
// when limit <= 0).
func Resolve(path string, exts []string, needFullPath bool, limit int64) (*Loaded, error) {
	if limit <= 0 {
		limit = DefaultSizeLimit
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	// Read header for magic byte detection
	header := make([]byte, 16)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read content header: %w", err)
	}
	header = header[:n]

	format := detectFormat(header, path)

	if format == formatRaw {
		if needFullPath {
			return &Loaded{Path: path, Name: filepath.Base(path)}, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek content: %w", err)
		}
		data, err := limitedRead(f, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to read content: %w", err)
		}
		return &Loaded{Path: path, Data: data, Name: filepath.Base(path)}, nil
	}

	var (
		data []byte
		name string
	)
	switch format {
	case formatZIP:
		data, name, err = extractFromZIP(path, exts, limit)
	case format7z:
		data, name, err = extractFrom7z(path, exts, limit)
	case formatGzip:
		data, name, err = extractFromGzip(path, exts, limit)
	case formatRAR:
		data, name, err = extractFromRAR(path, exts, limit)
	}
	if err != nil {
		return nil, err
	}

	if !needFullPath {
		return &Loaded{Path: path, Data: data, Name: name}, nil
	}

	// The core insists on reading from disk itself; give the extracted
	// entry a real file to live in for the lifetime of the instance.
	dir, err := os.MkdirTemp("", "retromux-content-")
	if err != nil {
		return nil, fmt.Errorf("failed to stage extracted content: %w", err)
	}
	out := filepath.Join(dir, name)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to stage extracted content: %w", err)
	}
	return &Loaded{Path: out, Name: name, tempDir: dir}, nil
}

// Extensions parses a core's pipe-separated valid-extensions declaration
// ("sfc|smc") into lowercase dotted extensions. An empty declaration means
// the core did not constrain content and any archive entry qualifies.
func Extensions(valid string) []string {
	if valid == "" {
		return nil
	}
	parts := strings.Split(valid, "|")
	exts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		exts = append(exts, p)
	}
	return exts
}

// detectFormat determines the file format based on magic bytes, falling back
// to the filename for archives. Anything unrecognized is raw content; the
// core, not the runtime, is the authority on what it can load.
func detectFormat(header []byte, path string) formatType {
	// Check magic bytes first (more reliable)
	if len(header) >= 4 {
		if bytes.HasPrefix(header, magicZIP) || bytes.HasPrefix(header, magicZIPEnd) {
			return formatZIP
		}
		if bytes.HasPrefix(header, magicRAR) {
			return formatRAR
		}
	}
	if len(header) >= 6 && bytes.HasPrefix(header, magic7z) {
		return format7z
	}
	if len(header) >= 2 && bytes.HasPrefix(header, magicGzip) {
		return formatGzip
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return formatZIP
	case ".7z":
		return format7z
	case ".gz", ".tgz":
		return formatGzip
	case ".rar":
		return formatRAR
	}

	if strings.HasSuffix(strings.ToLower(path), ".tar.gz") {
		return formatGzip
	}

	return formatRaw
}

// matchesExt checks if an archive entry name carries one of the wanted
// extensions (case-insensitive). An empty extension list matches everything.
func matchesExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// limitedRead reads from r up to limit bytes, returning ErrTooLarge if exceeded
func limitedRead(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
