package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestDefaultLayout(t *testing.T) {
	root := t.TempDir()
	l := DefaultLayout(root)

	assert.Equal(t, filepath.Join(root, "logs", "bot.log"), l.WorkerLog)
	assert.Equal(t, filepath.Join(root, "logs", "restart_reason.txt"), l.ReasonFile)
	assert.Equal(t, filepath.Join(root, "events", "watchdog_event.json"), l.EventFile)
	assert.Equal(t, filepath.Join(root, "pending_dm.json"), l.QueueFile)
	assert.Equal(t, filepath.Join(root, "collector_state.json"), l.WatermarkFile)
	assert.Equal(t, filepath.Join(root, ".env"), l.OptionsFile)
	assert.Equal(t, int64(500_000), l.LogCeiling)
	assert.Equal(t, 5*time.Second, l.PollInterval)
	assert.Equal(t, 5*time.Second, l.StopTimeout)
	assert.Equal(t, 41, l.Worker.ManualExit)
	assert.Equal(t, 60*time.Second, l.Collector.Interval)
	assert.Equal(t, 500, l.Collector.TailLines)
	assert.Equal(t, 3*time.Second, l.Collector.StopTimeout)
	assert.True(t, l.Collector.Enabled)
	assert.NoError(t, l.Validate())
}

func TestLoadLayoutFromTOML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dutywatch.toml")
	writeFile(t, p, `
poll_interval = "2s"
log_ceiling = 1024
extra_logs = ["logs/other.log"]

[worker]
exec = "/usr/bin/python3"
core_script = "modules/core.py"
commands_glob = "modules/commands/*.py"

[collector]
interval = "30s"
tail_lines = 100
critical_keys = ["panic"]

[history]
dsn = "sqlite://history.db"

[api]
listen = "127.0.0.1:8787"
`)
	l, err := LoadLayout(p)
	require.NoError(t, err)

	assert.Equal(t, dir, l.Root, "root defaults to the layout file's directory")
	assert.Equal(t, 2*time.Second, l.PollInterval)
	assert.Equal(t, int64(1024), l.LogCeiling)
	assert.Equal(t, []string{filepath.Join(dir, "logs", "other.log")}, l.ExtraLogs)
	assert.Equal(t, "/usr/bin/python3", l.Worker.Exec)
	assert.Equal(t, filepath.Join(dir, "modules", "core.py"), l.Worker.CoreScript)
	assert.Equal(t, filepath.Join(dir, "modules", "commands", "*.py"), l.Worker.CommandsGlob)
	assert.Equal(t, 30*time.Second, l.Collector.Interval)
	assert.Equal(t, 100, l.Collector.TailLines)
	assert.Equal(t, []string{"panic"}, l.Collector.CriticalKeys)
	assert.Equal(t, "sqlite://history.db", l.History.DSN)
	assert.Equal(t, "127.0.0.1:8787", l.API.Listen)
	assert.Equal(t, "/api", l.API.BasePath)
}

func TestLoadLayoutEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dutywatch.toml")
	writeFile(t, p, "poll_interval = \"2s\"\n")
	t.Setenv("DUTYWATCH_POLL_INTERVAL", "7s")
	t.Setenv("DUTYWATCH_API_LISTEN", ":9000")

	l, err := LoadLayout(p)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, l.PollInterval)
	assert.Equal(t, ":9000", l.API.Listen)
}

func TestLoadLayoutErrors(t *testing.T) {
	_, err := LoadLayout(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.toml")
	writeFile(t, p, "poll_interval = \"-1s\"\n[collector]\ntail_lines = 0\n")
	_, err = LoadLayout(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
	assert.Contains(t, err.Error(), "tail_lines")
}

func TestWorkerScriptSelection(t *testing.T) {
	root := t.TempDir()
	l := DefaultLayout(root)

	assert.Equal(t, filepath.Join(root, "EMS_Duty_NAS.py"), l.WorkerScript(Options{}), "falls back to the default name")

	older := filepath.Join(root, "EMS_Duty_NAS_251101.py")
	newer := filepath.Join(root, "EMS_Duty_NAS_251114.py")
	writeFile(t, older, "")
	writeFile(t, newer, "")
	now := time.Now()
	require.NoError(t, os.Chtimes(older, now, now))
	require.NoError(t, os.Chtimes(newer, now.Add(-time.Hour), now.Add(-time.Hour)))
	assert.Equal(t, older, l.WorkerScript(Options{}), "newest by modification time wins")

	assert.Equal(t, filepath.Join(root, "custom.py"), l.WorkerScript(Options{WorkerFile: "custom.py"}))
	assert.Equal(t, "/abs/bot.py", l.WorkerScript(Options{WorkerFile: "/abs/bot.py"}))
}

func TestLoadLayoutAtOverridesRoot(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	p := filepath.Join(dir, "dutywatch.toml")
	writeFile(t, p, "root = \"/somewhere/else\"\n")

	l, err := LoadLayoutAt(p, other)
	require.NoError(t, err)
	assert.Equal(t, other, l.Root)
	assert.Equal(t, filepath.Join(other, "logs", "bot.log"), l.WorkerLog)

	l, err = LoadLayoutAt("", other)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(other, "pending_dm.json"), l.QueueFile)
}
