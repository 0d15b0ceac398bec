package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockIsExclusive(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	unlock1, err := acquireLock("/tmp/tmux.sock")
	require.NoError(t, err)

	_, err = acquireLock("/tmp/tmux.sock")
	assert.ErrorIs(t, err, ErrDaemonRunning)

	other, err := acquireLock("/tmp/other.sock")
	require.NoError(t, err)
	other()

	unlock1()

	unlock2, err := acquireLock("/tmp/tmux.sock")
	require.NoError(t, err)
	require.NotNil(t, unlock2)
	unlock2()
}

func TestRunDaemonSavesUntilCanceled(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	srv := devServer(t, nil)
	a := newTestApp(t, srv.bin)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunDaemon(ctx, 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return a.catalog.Len() > 0 }, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, a.RunDaemon(context.Background(), time.Hour), ErrDaemonRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
