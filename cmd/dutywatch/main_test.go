package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/dutywatch/internal/collector"
	"github.com/loykin/dutywatch/internal/config"
	"github.com/loykin/dutywatch/internal/event"
	"github.com/loykin/dutywatch/internal/reason"
)

func TestBuildRootHasCommands(t *testing.T) {
	root := buildRoot()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"supervise", "collect", "event", "reason", "selftest", "status"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("root"))
}

func TestEventCommandWritesMailbox(t *testing.T) {
	dir := t.TempDir()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"event", "--root", dir, "--reason", "hotfix"})
	require.NoError(t, root.Execute())

	b, err := os.ReadFile(filepath.Join(dir, "events", "watchdog_event.json"))
	require.NoError(t, err)
	var p event.Payload
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, event.Payload{Action: "restart", Reason: "hotfix"}, p)
	assert.Contains(t, out.String(), "restart requested")
}

func TestEventCommandRejectsUnknownAction(t *testing.T) {
	err := runEvent(context.Background(), &bytes.Buffer{}, &GlobalFlags{Root: t.TempDir()}, &EventFlags{Action: "reboot"})
	assert.ErrorIs(t, err, event.ErrUnknownAction)
}

func TestEventCommandViaAPI(t *testing.T) {
	var got event.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	err := runEvent(context.Background(), &bytes.Buffer{}, &GlobalFlags{},
		&EventFlags{Action: "restart", Reason: "deploy", APIUrl: srv.URL, APITimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.Reason)
}

func TestReasonCommand(t *testing.T) {
	dir := t.TempDir()
	g := &GlobalFlags{Root: dir}
	path := filepath.Join(dir, "logs", "restart_reason.txt")
	require.NoError(t, reason.Write(path, reason.EnvUpdate))

	var out bytes.Buffer
	require.NoError(t, runReason(&out, g, &ReasonFlags{}))
	assert.Equal(t, "env_update\n", out.String())
	assert.FileExists(t, path)

	out.Reset()
	require.NoError(t, runReason(&out, g, &ReasonFlags{Consume: true}))
	assert.Equal(t, "env_update\n", out.String())
	assert.NoFileExists(t, path)

	out.Reset()
	require.NoError(t, runReason(&out, g, &ReasonFlags{Consume: true}))
	assert.Equal(t, "initial\n", out.String())
}

func TestSelftestLinesAreClassified(t *testing.T) {
	dir := t.TempDir()
	g := &GlobalFlags{Root: dir}
	var out bytes.Buffer
	require.NoError(t, runSelftest(&out, g, &SelftestFlags{Wait: 0}, true))

	l, err := loadLayout(g)
	require.NoError(t, err)
	b, err := os.ReadFile(l.WorkerLog)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(b), "\n"))

	c := collector.New(collectorConfig(l, config.DefaultOptions()), nil)
	sum, err := c.Scan(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Critical)
	assert.Equal(t, 1, sum.Warning)
}

func TestApiURLFromListen(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8787/api", apiURLFromListen(":8787", "/api"))
	assert.Equal(t, "http://10.0.0.2:9000/x", apiURLFromListen("10.0.0.2:9000", "x/"))
	assert.Equal(t, "http://127.0.0.1:80", apiURLFromListen("0.0.0.0:80", ""))
	assert.Empty(t, apiURLFromListen("", "/api"))
	assert.Empty(t, apiURLFromListen("nonsense", "/api"))
}

func TestStatusRequiresAPI(t *testing.T) {
	err := runStatus(context.Background(), &bytes.Buffer{}, &GlobalFlags{Root: t.TempDir()}, &StatusFlags{APITimeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API configured")
}

func TestStatusPrintsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"running","worker":{"name":"worker","running":true,"pid":12},"last_reason":"crash"}`))
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	err := runStatus(context.Background(), &out, &GlobalFlags{}, &StatusFlags{APIUrl: srv.URL, APITimeout: time.Second})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"last_reason": "crash"`)
	assert.Contains(t, out.String(), `"pid": 12`)
}

func TestDaemonArgs(t *testing.T) {
	got := daemonArgs([]string{"supervise", "--daemonize", "--logfile", "/tmp/x.log", "--root", "/srv", "--logfile=/y"})
	assert.Equal(t, []string{"supervise", "--root", "/srv"}, got)
}
