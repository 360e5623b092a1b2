package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/service/mirror"
)

var errTestSync = errors.New("upstream exploded")

// fakeSyncer records passes and returns canned outcomes.
type fakeSyncer struct {
	// err is returned by Sync when set.
	err error
	// status is returned by LastStatus.
	status mirror.Status
	// calls counts Sync invocations.
	calls int
	// ctxErr is the state of the pass context when Sync ran.
	ctxErr error
}

func (f *fakeSyncer) Sync(ctx context.Context) (*mirror.Result, error) {
	f.calls++
	f.ctxErr = ctx.Err()

	if f.err != nil {
		return nil, f.err
	}

	return new(mirror.Result), nil
}

func (f *fakeSyncer) LastStatus() mirror.Status {
	return f.status
}

func serve(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}

	return rec, body
}

// TestToggle_Success runs one pass and answers with the success message.
func TestToggle_Success(t *testing.T) {
	t.Parallel()

	syncer := new(fakeSyncer)

	rec, body := serve(t, NewHandler(syncer), http.MethodPost, "/api/hooks/release-download-toggle")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"message": "success"}, body)
	require.Equal(t, 1, syncer.calls)
}

// TestToggle_CallerGoneKeepsPassRunning runs the pass even when the caller already went away.
func TestToggle_CallerGoneKeepsPassRunning(t *testing.T) {
	t.Parallel()

	syncer := new(fakeSyncer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/hooks/release-download-toggle", nil)
	rec := httptest.NewRecorder()
	NewHandler(syncer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, syncer.calls)
	require.NoError(t, syncer.ctxErr)
}

// TestToggle_Failure reports the pass error as detail.
func TestToggle_Failure(t *testing.T) {
	t.Parallel()

	syncer := &fakeSyncer{err: errTestSync}

	rec, body := serve(t, NewHandler(syncer), http.MethodPost, "/api/hooks/release-download-toggle")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, map[string]any{"detail": "upstream exploded"}, body)
}

// TestToggle_WrongMethod never starts a pass.
func TestToggle_WrongMethod(t *testing.T) {
	t.Parallel()

	syncer := new(fakeSyncer)

	rec, _ := serve(t, NewHandler(syncer), http.MethodGet, "/api/hooks/release-download-toggle")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Zero(t, syncer.calls)
}

// TestRoot greets on the exact root path only.
func TestRoot(t *testing.T) {
	t.Parallel()

	h := NewHandler(new(fakeSyncer))

	rec, body := serve(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, body["message"], "release mirror")

	rec, _ = serve(t, h, http.MethodGet, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestStatus reports the last result alongside the last error.
func TestStatus(t *testing.T) {
	t.Parallel()

	var (
		finished = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		failed   = finished.Add(time.Minute)
		syncer   = &fakeSyncer{
			status: mirror.Status{
				Result: &mirror.Result{
					Mapping: release.TagMapping{
						"latest": {Major: 2, Minor: 1, Full: "2.1.0"},
					},
					FinishedAt: finished,
				},
				Err: errTestSync,
				At:  failed,
			},
		}
	)

	rec, body := serve(t, NewHandler(syncer), http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["healthy"])
	require.Equal(t, "upstream exploded", body["error"])
	require.Equal(t, "2024-05-01T10:00:00Z", body["last_updated"])
	require.Equal(t, "2024-05-01T10:01:00Z", body["last_run"])
	require.Equal(t, map[string]any{"latest": "2.1.0"}, body["tracking_directories"])
}

// TestStatus_BeforeFirstPass answers with an empty, unhealthy status.
func TestStatus_BeforeFirstPass(t *testing.T) {
	t.Parallel()

	_, body := serve(t, NewHandler(new(fakeSyncer)), http.MethodGet, "/api/status")
	require.Equal(t, false, body["healthy"])
	require.NotContains(t, body, "last_run")
	require.Equal(t, map[string]any{}, body["tracking_directories"])
}
