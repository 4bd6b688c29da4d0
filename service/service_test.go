package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	return port
}

func TestHealthzServer(t *testing.T) {
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", port)
	h := &HealthzServer{log: zap.NewNop().Sugar()}

	go func() {
		_ = h.Start(context.Background(), addr)
	}()
	t.Cleanup(func() { _ = h.Shutdown() })

	var resp *http.Response
	var err error
	require.Eventually(t, func() bool {
		resp, err = http.Get(fmt.Sprintf("http://%s/healthz", addr))
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestMetricsServer(t *testing.T) {
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", port)
	m := &MetricsServer{}

	go func() {
		_ = m.Start(context.Background(), addr)
	}()
	t.Cleanup(func() { _ = m.Shutdown() })

	var resp *http.Response
	var err error
	require.Eventually(t, func() bool {
		resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
