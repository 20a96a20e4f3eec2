package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0", cfg.Capture.Device)
	assert.Equal(t, 3, cfg.Capture.WarmupFrames)
	assert.Equal(t, 10*time.Second, cfg.Capture.Timeout)
	assert.True(t, cfg.Segment.Enabled)
	assert.True(t, cfg.Segment.CenterPerson)
	assert.Equal(t, 28.0, cfg.Chyron.TitleFontSize)
	assert.Equal(t, 18.0, cfg.Chyron.InfoFontSize)
	assert.Equal(t, 0.75, cfg.Chyron.Opacity)
	assert.Equal(t, "sqlite", cfg.Gallery.DatabaseType)
	assert.Equal(t, 8080, cfg.Gallery.Port)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
capture:
  device: "/dev/video2"
  warmup_frames: 5
chyron:
  opacity: 0.5
  font: "Liberation Mono"
gallery:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	m := NewManager()
	require.NoError(t, m.Load(path))
	cfg := m.Get()

	assert.Equal(t, "/dev/video2", cfg.Capture.Device)
	assert.Equal(t, 5, cfg.Capture.WarmupFrames)
	assert.Equal(t, 0.5, cfg.Chyron.Opacity)
	assert.Equal(t, "Liberation Mono", cfg.Chyron.Font)
	assert.Equal(t, 9090, cfg.Gallery.Port)

	// Untouched fields keep their defaults.
	assert.Equal(t, 28.0, cfg.Chyron.TitleFontSize)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gallery:\n  port: 9090\n"), 0o644))

	t.Setenv("SNAPCOMMIT_PORT", "7070")
	t.Setenv("SNAPCOMMIT_CAPTURE_TIMEOUT", "30s")

	m := NewManager()
	require.NoError(t, m.Load(path))
	cfg := m.Get()

	assert.Equal(t, 7070, cfg.Gallery.Port)
	assert.Equal(t, 30*time.Second, cfg.Capture.Timeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Equal(t, "0", m.Get().Capture.Device)
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"SNAPCOMMIT_PORT": "70000"}},
		{"unknown database type", map[string]string{"SNAPCOMMIT_DATABASE_TYPE": "oracle"}},
		{"negative warmup", map[string]string{"SNAPCOMMIT_WARMUP_FRAMES": "-1"}},
		{"opacity above one", map[string]string{"SNAPCOMMIT_CHYRON_OPACITY": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			m := NewManager()
			assert.Error(t, m.Load(""))
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("SNAPCOMMIT_DATA_DIR", "/tmp/sc-data")

	m := NewManager()
	require.NoError(t, m.Load(""))
	cfg := m.Get()

	assert.Equal(t, filepath.Join("/tmp/sc-data", "snapcommit.db"), cfg.Gallery.DatabasePath)
	assert.Equal(t, filepath.Join("/tmp/sc-data", "images"), cfg.Gallery.WatchDir)
	assert.Equal(t, filepath.Join("/tmp/sc-data", "images"), cfg.Output.Dir)
	assert.Equal(t, filepath.Join("/tmp/sc-data", "models", "u2net.onnx"), cfg.Segment.ModelPath)
}

func TestRoleFontsInheritDefaultFace(t *testing.T) {
	t.Setenv("SNAPCOMMIT_FONT", "Hack")

	m := NewManager()
	require.NoError(t, m.Load(""))
	cfg := m.Get()

	assert.Equal(t, "Hack", cfg.Chyron.TitleFont)
	assert.Equal(t, "Hack", cfg.Chyron.InfoFont)
	assert.Equal(t, "Hack", cfg.Chyron.SHAFont)
	assert.Equal(t, "Hack", cfg.Chyron.StatsFont)
}

func TestExplicitRoleFontKept(t *testing.T) {
	t.Setenv("SNAPCOMMIT_FONT", "Hack")
	t.Setenv("SNAPCOMMIT_TITLE_FONT", "Fira Code")
	t.Setenv("SNAPCOMMIT_STATS_FONT", "Iosevka")

	m := NewManager()
	require.NoError(t, m.Load(""))
	cfg := m.Get()

	assert.Equal(t, "Fira Code", cfg.Chyron.TitleFont)
	assert.Equal(t, "Hack", cfg.Chyron.InfoFont)
	assert.Equal(t, "Hack", cfg.Chyron.SHAFont)
	assert.Equal(t, "Iosevka", cfg.Chyron.StatsFont)
}

func TestWatcherNotifiedOnReload(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	m.AddWatcher(func(oldConfig, newConfig *Config) {
		close(done)
	})

	require.NoError(t, m.Load(""))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	m := NewManager()
	require.NoError(t, m.Load(path))
	require.NoError(t, m.Save())

	m2 := NewManager()
	require.NoError(t, m2.Load(path))
	assert.Equal(t, m.Get().Chyron, m2.Get().Chyron)
}
