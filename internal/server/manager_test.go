package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 5 * time.Second
	m := NewManager(handler, cfg, nil)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestManagerServesRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "pong")
	})
	m := testManager(t, mux)
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.BoundAddr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestManagerStartTwiceFails(t *testing.T) {
	m := testManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
}

func TestManagerStartBadAddressFailsSynchronously(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "256.256.256.256:99999"
	m := NewManager(http.NewServeMux(), cfg, nil)
	assert.Error(t, m.Start())
}

func TestManagerShutdown(t *testing.T) {
	m := testManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	addr := m.BoundAddr()

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	// Shutdown is idempotent.
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err, "a stopped server must not accept connections")

	assert.Error(t, m.Start(), "a closed manager cannot be restarted")
}
