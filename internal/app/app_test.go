package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

// freeAddress reserves a local port and releases it for the server under test
func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec // test server URL
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLibraryApp_StartAndStop(t *testing.T) {
	t.Parallel()

	addr := freeAddress(t)
	app, err := NewLibraryApp(context.Background(),
		WithConfig(createTestConfig(t)),
		WithAddress(addr),
		WithLocale(language.English))
	require.NoError(t, err)
	assert.Equal(t, addr, app.GetHTTPServer().Addr)
	assert.NotNil(t, app.GetConfig())

	startErr := make(chan error, 1)
	go func() { startErr <- app.Start() }()

	base := fmt.Sprintf("http://%s", addr)
	waitForServer(t, base+"/health")

	// The scheduler runs a first sync because none has happened yet
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/packages") //nolint:gosec // test server URL
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK &&
			strings.Contains(string(body), "Alpha") &&
			strings.Contains(string(body), "Beta")
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))

	select {
	case err := <-startErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// Stopped coordinators refuse new work
	_, err = app.Components().SyncCoordinator.Submit(false)
	assert.Error(t, err)
}

func TestLibraryApp_StartFailsOnBusyAddress(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	app, err := NewLibraryApp(context.Background(),
		WithConfig(createTestConfig(t)),
		WithAddress(l.Addr().String()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")
}
