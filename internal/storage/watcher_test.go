package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_FiresOnPublish(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32

	w := NewWatcher(root, func() { calls.Add(1) }, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the watch register

	// Writing a snapshot directory alone does not fire.
	require.NoError(t, os.Mkdir(filepath.Join(root, "snap-a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "snap-a", ManifestFile), []byte("{}"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, Publish(root, "snap-a"))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), func() {}, nil)
	assert.Error(t, w.Run(context.Background()))
}
