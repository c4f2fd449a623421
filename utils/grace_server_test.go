package utils

import (
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestServerShutdownRunsHooksInOrder(t *testing.T) {
	srv := NewServer("127.0.0.1:0", okHandler(), DefaultReadTimeout, DefaultWriteTimeout)
	ln, err := srv.getNetListener(srv.Addr)
	require.NoError(t, err)
	srv.listener = ln

	served := make(chan error, 1)
	go func() { served <- srv.Server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	var order []string
	srv.OnShutdown(func() { order = append(order, "flush page views") })
	srv.OnShutdown(func() { order = append(order, "close") })

	srv.shutdownHTTPServer()

	waitClosed(t, srv.shutdownChan)
	assert.Equal(t, []string{"flush page views", "close"}, order)
	assert.True(t, errors.Is(<-served, http.ErrServerClosed))

	_, err = net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	assert.Error(t, err, "listener must be closed after shutdown")
}

func TestServerShutsDownOnSIGTERM(t *testing.T) {
	srv := NewServer("127.0.0.1:0", okHandler(), DefaultReadTimeout, DefaultWriteTimeout)
	hooked := make(chan struct{})
	srv.OnShutdown(func() { close(hooked) })

	go srv.handleSignals()
	srv.signalChan <- syscall.SIGTERM

	waitClosed(t, hooked)
	waitClosed(t, srv.shutdownChan)
}

func TestNewServerReadsGracefulEnv(t *testing.T) {
	t.Setenv(gracefulEnvKey, "1")
	assert.True(t, NewServer(":0", okHandler(), time.Second, time.Second).isGraceful)
}
