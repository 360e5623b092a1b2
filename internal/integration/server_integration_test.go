package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/service/client"
	"github.com/oshokin/release-mirror/internal/service/server"
)

// freeAddress reserves a loopback port and releases it for the server to bind.
func freeAddress(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := lis.Addr().String()
	require.NoError(t, lis.Close())

	return address
}

// TestServer_HookStatusAndHealth starts the real server and drives it over HTTP and gRPC.
func TestServer_HookStatusAndHealth(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstream(t, appRelease("1.0.0"))
	configPath, root := writeSettings(t, upstream, func(cfg *config.Config) {
		cfg.SyncInterval = time.Hour
	})

	var (
		listenAddress = freeAddress(t)
		healthAddress = freeAddress(t)
		ctx, cancel   = context.WithCancel(context.Background())
		done          = make(chan error, 1)
	)

	defer cancel()

	go func() {
		done <- server.Run(ctx, &server.Options{
			ConfigPath:    configPath,
			ListenAddress: listenAddress,
			HealthAddress: healthAddress,
		})
	}()

	// The start-up pass makes the server healthy.
	require.Eventually(t, func() bool {
		return client.Check(ctx, healthAddress, time.Second) == nil
	}, 10*time.Second, 50*time.Millisecond)

	require.Equal(t, "linux 1.0.0", readFile(t, filepath.Join(root, "latest", "linux-amd64.tar.gz")))

	upstream.add(appRelease("1.1.0"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://"+listenAddress+"/api/hooks/release-download-toggle", http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var message map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&message))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "success", message["message"])

	require.Equal(t, "linux 1.1.0", readFile(t, filepath.Join(root, "latest", "linux-amd64.tar.gz")))

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listenAddress+"/api/status", http.NoBody)
	require.NoError(t, err)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)

	var status struct {
		Healthy             bool              `json:"healthy"`
		TrackingDirectories map[string]string `json:"tracking_directories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.NoError(t, resp.Body.Close())
	require.True(t, status.Healthy)
	require.Equal(t, "1.1.0", status.TrackingDirectories["latest"])

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
