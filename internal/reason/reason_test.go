package reason

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromExitCode(t *testing.T) {
	assert.Equal(t, Manual, FromExitCode(41, 0))
	assert.Equal(t, Manual, FromExitCode(7, 7))
	assert.Equal(t, Crash, FromExitCode(41, 7))
	for _, code := range []int{-1, 0, 1, 2, 40, 42, 137, 255} {
		assert.Equal(t, Crash, FromExitCode(code, ManualExitCode), "exit code %d", code)
	}
}

func TestCustomIsVerbatim(t *testing.T) {
	assert.False(t, Crash.IsCustom())
	assert.False(t, CommandsUpdate.IsCustom())
	assert.True(t, Custom(" hotfix ").IsCustom())
	assert.Equal(t, Reason(" hotfix "), Custom(" hotfix "))
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "crash", Crash.MetricLabel())
	assert.Equal(t, "custom", Custom("deploy 42").MetricLabel())
}

func TestCustomReasonRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restart_reason.txt")
	r := Custom("  deploy: hotfix 42 ")
	require.NoError(t, Write(path, r))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteThenConsume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "restart_reason.txt")
	require.NoError(t, Write(path, Crash))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "crash", string(b))

	assert.Equal(t, Crash, Consume(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "handoff file must be removed after consume")

	// second read falls back to initial
	assert.Equal(t, Initial, Consume(path))
}

func TestConsumeEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restart_reason.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	assert.Equal(t, Initial, Consume(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadMissing(t *testing.T) {
	r, err := Read(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, Reason(""), r)
}
