package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generation:\n  model: gemini-2.5-flash\n"), 0644))

	w, err := Watch(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "gemini-2.5-flash", w.Current().Generation.Model)

	notified := make(chan *Config, 1)
	w.Subscribe(func(c *Config) {
		select {
		case notified <- c:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("generation:\n  model: gemini-2.5-pro\n"), 0644))

	assert.Eventually(t, func() bool {
		return w.Current().Generation.Model == "gemini-2.5-pro"
	}, 3*time.Second, 20*time.Millisecond)

	select {
	case cfg := <-notified:
		assert.Equal(t, "gemini-2.5-pro", cfg.Generation.Model)
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber was not notified")
	}
}

func TestWatcherKeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("controller:\n  max_parallel: 2\n"), 0644))

	w, err := Watch(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("controller: ["), 0644))

	// The malformed write must not replace the current config.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, w.Current().Controller.MaxParallel)
}

func TestWatcherCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	w, err := Watch(path)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
