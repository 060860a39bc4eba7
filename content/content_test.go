package content

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

var smsExts = []string{".sms"}

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

// createTestZip builds a .zip holding the given name -> data entries.
func createTestZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, data := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create file in zip: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("Failed to write to zip: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return path
}

// createTestTarGz builds a .tar.gz holding the given name -> data entries.
func createTestTarGz(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tar.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create tar.gz file: %v", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data := entries[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to write tar header: %v", err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("Failed to write tar entry: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
	return path
}

func createTestGzip(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create gzip file: %v", err)
	}
	defer f.Close()

	w := gzip.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Failed to write to gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
	return path
}

func TestResolve_RawResident(t *testing.T) {
	testData := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	path := writeTestFile(t, "game.sms", testData)

	l, err := Resolve(path, smsExts, false, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()

	if !bytes.Equal(l.Data, testData) {
		t.Errorf("Data mismatch: expected %v, got %v", testData, l.Data)
	}
	if l.Path != path {
		t.Errorf("Path mismatch: expected %s, got %s", path, l.Path)
	}
	if l.Name != "game.sms" {
		t.Errorf("Name mismatch: expected game.sms, got %s", l.Name)
	}
}

func TestResolve_RawFullPath(t *testing.T) {
	testData := []byte{0x01, 0x02, 0x03}
	path := writeTestFile(t, "game.sms", testData)

	l, err := Resolve(path, smsExts, true, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()

	if l.Data != nil {
		t.Errorf("Expected no resident data for full-path core, got %d bytes", len(l.Data))
	}
	if l.Path != path {
		t.Errorf("Expected original path %s, got %s", path, l.Path)
	}
}

func TestResolve_ZipPicksLargestMatch(t *testing.T) {
	big := bytes.Repeat([]byte{0xBB}, 64)
	path := createTestZip(t, map[string][]byte{
		"readme.txt": []byte("docs, not content"),
		"small.sms":  {0x01, 0x02},
		"big.sms":    big,
	})

	l, err := Resolve(path, smsExts, false, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()

	if l.Name != "big.sms" {
		t.Errorf("Expected largest matching entry big.sms, got %s", l.Name)
	}
	if !bytes.Equal(l.Data, big) {
		t.Errorf("Data mismatch for largest entry")
	}
	if l.Path != path {
		t.Errorf("Expected archive path %s for resident load, got %s", path, l.Path)
	}
}

func TestResolve_ZipWithSubdirectory(t *testing.T) {
	testData := []byte{0x12, 0x34, 0x56}
	path := createTestZip(t, map[string][]byte{
		"roms/games/test.sms": testData,
	})

	l, err := Resolve(path, smsExts, false, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()

	if !bytes.Equal(l.Data, testData) {
		t.Errorf("Data mismatch: expected %v, got %v", testData, l.Data)
	}
	if l.Name != "test.sms" {
		t.Errorf("Name should be just the filename, got %s", l.Name)
	}
}

func TestResolve_ZipFullPathExtractsTempFile(t *testing.T) {
	testData := []byte{0xAA, 0xBB, 0xCC}
	path := createTestZip(t, map[string][]byte{"game.sms": testData})

	l, err := Resolve(path, smsExts, true, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if l.Path == path {
		t.Fatal("Expected an extracted temp path, got the archive itself")
	}
	if filepath.Base(l.Path) != "game.sms" {
		t.Errorf("Extracted file should keep the entry name, got %s", l.Path)
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		t.Fatalf("Failed to read extracted file: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Errorf("Extracted data mismatch: expected %v, got %v", testData, data)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(l.Path); !os.IsNotExist(err) {
		t.Errorf("Expected temp file removed after Close, stat err: %v", err)
	}
}

func TestResolve_GzipFile(t *testing.T) {
	testData := []byte{0x11, 0x22, 0x33, 0x44, 0x55}
	path := createTestGzip(t, "test.sms.gz", testData)

	l, err := Resolve(path, smsExts, false, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()

	if !bytes.Equal(l.Data, testData) {
		t.Errorf("Data mismatch: expected %v, got %v", testData, l.Data)
	}
	if l.Name != "test.sms" {
		t.Errorf("Expected .gz suffix stripped from name, got %s", l.Name)
	}
}

func TestResolve_NoMatchInArchive(t *testing.T) {
	path := createTestZip(t, map[string][]byte{"readme.txt": []byte("hello")})

	_, err := Resolve(path, smsExts, false, 0)
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("Expected ErrNoContent, got %v", err)
	}
}

func TestResolve_SizeLimit(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 100)
	path := writeTestFile(t, "game.sms", data)

	if _, err := Resolve(path, smsExts, false, 99); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge at limit 99, got %v", err)
	}
	l, err := Resolve(path, smsExts, false, 100)
	if err != nil {
		t.Fatalf("Resolve at exact limit failed: %v", err)
	}
	defer l.Close()
	if len(l.Data) != 100 {
		t.Errorf("Expected 100 bytes at exact limit, got %d", len(l.Data))
	}
}

func TestResolve_FileNotFound(t *testing.T) {
	_, err := Resolve("/nonexistent/path/game.sms", smsExts, false, 0)
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestResolve_EmptyFile(t *testing.T) {
	path := writeTestFile(t, "game.sms", []byte{})

	l, err := Resolve(path, smsExts, false, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()
	if len(l.Data) != 0 {
		t.Errorf("Expected empty data, got %d bytes", len(l.Data))
	}
}

func TestResolve_UnknownExtensionIsRaw(t *testing.T) {
	// The core is the authority on content; an unknown extension still
	// loads as raw bytes.
	testData := []byte{0x01, 0x02, 0x03}
	path := writeTestFile(t, "game.xyz", testData)

	l, err := Resolve(path, smsExts, false, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer l.Close()
	if !bytes.Equal(l.Data, testData) {
		t.Errorf("Data mismatch: expected %v, got %v", testData, l.Data)
	}
}

func TestDetectFormat_Magic(t *testing.T) {
	testCases := []struct {
		header   []byte
		path     string
		expected formatType
	}{
		{[]byte{0x50, 0x4B, 0x03, 0x04}, "file.dat", formatZIP},
		{[]byte{0x50, 0x4B, 0x05, 0x06}, "file.dat", formatZIP},
		{[]byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, "file.dat", format7z},
		{[]byte{0x1F, 0x8B}, "file.dat", formatGzip},
		{[]byte{0x52, 0x61, 0x72, 0x21}, "file.dat", formatRAR},
	}

	for _, tc := range testCases {
		result := detectFormat(tc.header, tc.path)
		if result != tc.expected {
			t.Errorf("detectFormat(%v, %s): expected %d, got %d", tc.header, tc.path, tc.expected, result)
		}
	}
}

func TestDetectFormat_Extension(t *testing.T) {
	testCases := []struct {
		path     string
		expected formatType
	}{
		{"game.sms", formatRaw},
		{"game.zip", formatZIP},
		{"game.ZIP", formatZIP},
		{"game.7z", format7z},
		{"game.gz", formatGzip},
		{"game.tgz", formatGzip},
		{"game.tar.gz", formatGzip},
		{"game.rar", formatRAR},
		{"game.unknown", formatRaw},
	}

	for _, tc := range testCases {
		// Use empty header to force extension-based detection
		result := detectFormat([]byte{}, tc.path)
		if result != tc.expected {
			t.Errorf("detectFormat([], %s): expected %d, got %d", tc.path, tc.expected, result)
		}
	}
}

func TestExtensions(t *testing.T) {
	testCases := []struct {
		valid    string
		expected []string
	}{
		{"sfc|smc", []string{".sfc", ".smc"}},
		{"gba", []string{".gba"}},
		{"SFC|SMC", []string{".sfc", ".smc"}},
		{"bin|", []string{".bin"}},
		{"", nil},
	}

	for _, tc := range testCases {
		got := Extensions(tc.valid)
		if len(got) != len(tc.expected) {
			t.Fatalf("Extensions(%q): expected %v, got %v", tc.valid, tc.expected, got)
		}
		for i := range got {
			if got[i] != tc.expected[i] {
				t.Errorf("Extensions(%q)[%d]: expected %s, got %s", tc.valid, i, tc.expected[i], got[i])
			}
		}
	}
}

func TestMatchesExt(t *testing.T) {
	testCases := []struct {
		name     string
		exts     []string
		expected bool
	}{
		{"game.sms", smsExts, true},
		{"game.SMS", smsExts, true},
		{"game.txt", smsExts, false},
		{"game.sms.bak", smsExts, false},
		{"game", smsExts, false},
		{"anything.xyz", nil, true},
	}

	for _, tc := range testCases {
		if got := matchesExt(tc.name, tc.exts); got != tc.expected {
			t.Errorf("matchesExt(%q, %v): expected %v, got %v", tc.name, tc.exts, tc.expected, got)
		}
	}
}
