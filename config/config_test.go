package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 8192, cfg.AudioQueueFrames)
	assert.Equal(t, 1.0, cfg.FrameLagReset)
	assert.Equal(t, 64, cfg.ContentSizeLimitMB)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"username":"player1","audioQueueFrames":1024}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "player1", cfg.Username)
	assert.Equal(t, 1024, cfg.AudioQueueFrames)

	// Fields absent from the file keep their defaults.
	def := Default()
	assert.Equal(t, def.SaveDir, cfg.SaveDir)
	assert.Equal(t, def.FrameLagReset, cfg.FrameLagReset)
	assert.Equal(t, def.LogLevel, cfg.LogLevel)
}

func TestLoadCorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"saveDir": `), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audioQueueFrames":1}`), 0o644))
	_, err := Load(path)
	assert.Error(t, err, "queue below the floor must fail validation")

	require.NoError(t, os.WriteFile(path, []byte(`{"logLevel":"loud"}`), 0o644))
	_, err = Load(path)
	assert.Error(t, err, "unknown log level must fail validation")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Username = "player2"
	cfg.CoreOptions = map[string]string{"fake_region": "pal"}
	require.NoError(t, Save(path, cfg))

	// The atomic write must not leave its temp file behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.SaveDir = ""
	err := Save(filepath.Join(t.TempDir(), "config.json"), cfg)
	assert.Error(t, err)
}

func TestSchemaListsFields(t *testing.T) {
	blob, err := Schema()
	require.NoError(t, err)
	s := string(blob)
	for _, field := range []string{"saveDir", "systemDir", "audioQueueFrames", "frameLagReset", "coreOptions"} {
		assert.True(t, strings.Contains(s, field), "schema missing %s", field)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.SaveDir = filepath.Join(dir, "a", "saves")
	cfg.SystemDir = filepath.Join(dir, "b", "system")
	require.NoError(t, EnsureDirectories(cfg))

	for _, d := range []string{cfg.SaveDir, cfg.SystemDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
