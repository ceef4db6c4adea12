package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelhray/dispatch/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Backend = "memory"
	cfg.HTTP.Addr = "127.0.0.1:0"
	return cfg
}

func TestNewWithMemoryBackend(t *testing.T) {
	d, err := New(testConfig())
	require.NoError(t, err)
	require.NotNil(t, d.Orchestrator())
	assert.NoError(t, d.store.Close())
}

func TestRunShutsDownOnCancel(t *testing.T) {
	d, err := New(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Give the loops a moment to start, then ask for shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}
