package event

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChannel(t *testing.T) (*Channel, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events", "watchdog_event.json")
	return NewChannel(path, nil), path
}

func TestPollRestartPayloadConsumesFile(t *testing.T) {
	ch, path := newChannel(t)
	require.NoError(t, Write(path, Payload{Action: ActionRestart, Reason: "hotfix"}))

	p, err := ch.Poll()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "hotfix", p.Reason)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "event file must be deleted once read")

	p, err = ch.Poll()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPollNoFile(t *testing.T) {
	ch, _ := newChannel(t)
	p, err := ch.Poll()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPollDiscardsGarbage(t *testing.T) {
	ch, path := newChannel(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	p, err := ch.Poll()
	require.NoError(t, err)
	assert.Nil(t, p)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPollDiscardsUnknownAction(t *testing.T) {
	ch, path := newChannel(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"stop","reason":"x"}`), 0o600))

	p, err := ch.Poll()
	require.NoError(t, err)
	assert.Nil(t, p)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPollDefaultsReason(t *testing.T) {
	ch, path := newChannel(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"restart"}`), 0o600))

	p, err := ch.Poll()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, DefaultReason, p.Reason)
}

func TestWriteRejectsUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ev.json")
	err := Write(path, Payload{Action: "reload"})
	require.ErrorIs(t, err, ErrUnknownAction)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
