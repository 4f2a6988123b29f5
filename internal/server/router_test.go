package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/dutywatch/internal/event"
	"github.com/loykin/dutywatch/internal/notify"
	"github.com/loykin/dutywatch/internal/process"
	"github.com/loykin/dutywatch/internal/supervisor"
)

type fixedStatus supervisor.Status

func (f fixedStatus) Status() supervisor.Status { return supervisor.Status(f) }

type routerEnv struct {
	h         http.Handler
	eventFile string
	queue     *notify.Queue
}

func setupRouter(t *testing.T, base string) routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	env := routerEnv{
		eventFile: filepath.Join(dir, "events", "watchdog_event.json"),
		queue:     notify.NewQueue(filepath.Join(dir, "pending_dm.json")),
	}
	st := fixedStatus{
		State:      "running",
		Worker:     process.Status{Name: "worker", Running: true, PID: 4242},
		LastReason: "crash",
		Restarts:   3,
	}
	env.h = NewRouter(RouterConfig{
		Status:    st,
		EventFile: env.eventFile,
		Queue:     env.queue,
		BasePath:  base,
	}).Handler()
	return env
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	env := setupRouter(t, "/api/")
	rec := doReq(t, env.h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st supervisor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, 4242, st.Worker.PID)
	assert.Equal(t, "crash", st.LastReason)
	assert.Equal(t, 3, st.Restarts)
}

func TestStatusWithoutSupervisor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRouter(RouterConfig{EventFile: filepath.Join(t.TempDir(), "e.json")}).Handler()
	rec := doReq(t, h, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostEventWritesMailbox(t *testing.T) {
	env := setupRouter(t, "/api")
	rec := doReq(t, env.h, http.MethodPost, "/api/events", event.Payload{Action: "restart", Reason: "hotfix"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	b, err := os.ReadFile(env.eventFile)
	require.NoError(t, err)
	var p event.Payload
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, event.Payload{Action: "restart", Reason: "hotfix"}, p)
}

func TestPostEventRejectsBadInput(t *testing.T) {
	env := setupRouter(t, "")
	cases := map[string]any{
		"bad json":       "{nope",
		"unknown action": event.Payload{Action: "reboot"},
		"multiline":      event.Payload{Action: "restart", Reason: "a\nb"},
		"too long":       event.Payload{Action: "restart", Reason: strings.Repeat("x", maxReasonLen+1)},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doReq(t, env.h, http.MethodPost, "/events", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NoFileExists(t, env.eventFile)
		})
	}
}

func TestQueueEndpoint(t *testing.T) {
	env := setupRouter(t, "/api")
	rec := doReq(t, env.h, http.MethodGet, "/api/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":0,"messages":[]}`, rec.Body.String())

	require.NoError(t, env.queue.Append("one"))
	require.NoError(t, env.queue.Append("two"))
	rec = doReq(t, env.h, http.MethodGet, "/api/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":2,"messages":["one","two"]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupRouter(t, "/api")
	rec := doReq(t, env.h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSanitizeBase(t *testing.T) {
	assert.Equal(t, "", sanitizeBase(""))
	assert.Equal(t, "", sanitizeBase("/"))
	assert.Equal(t, "/api", sanitizeBase("api"))
	assert.Equal(t, "/api", sanitizeBase(" /api/ "))
}

func TestIsSafeReason(t *testing.T) {
	assert.True(t, isSafeReason(""))
	assert.True(t, isSafeReason("hotfix 2025-03-01"))
	assert.False(t, isSafeReason("a\tb"))
	assert.False(t, isSafeReason(strings.Repeat("é", maxReasonLen+1)))
}
