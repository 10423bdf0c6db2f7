package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	state, err := OpenState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })
	return state
}

func TestStateConfigRoundTrip(t *testing.T) {
	state := newTestState(t)

	value, err := state.GetConfig("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, state.SetConfig("key", "value"))
	value, err = state.GetConfig("key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	require.NoError(t, state.SetConfig("key", "updated"))
	value, _ = state.GetConfig("key")
	assert.Equal(t, "updated", value)
}

func TestStateSessionParams(t *testing.T) {
	state := newTestState(t)

	assert.Equal(t, "", state.GetLastChannel())
	require.NoError(t, state.SetLastChannel("somechannel"))
	assert.Equal(t, "somechannel", state.GetLastChannel())

	require.NoError(t, state.SetLastNickname("somenick"))
	assert.Equal(t, "somenick", state.GetLastNickname())
}

func TestStateTokenCache(t *testing.T) {
	state := newTestState(t)

	assert.Equal(t, "", state.GetCachedToken())

	require.NoError(t, state.SetCachedToken("sometoken"))
	assert.Equal(t, "sometoken", state.GetCachedToken())

	require.NoError(t, state.ClearCachedToken())
	assert.Equal(t, "", state.GetCachedToken())
}

func TestStateFirstRun(t *testing.T) {
	state := newTestState(t)

	assert.True(t, state.GetFirstRun())
	require.NoError(t, state.SetFirstRunComplete())
	assert.False(t, state.GetFirstRun())
}

func TestStatePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	state, err := OpenState(path)
	require.NoError(t, err)
	require.NoError(t, state.SetLastChannel("somechannel"))
	require.NoError(t, state.Close())

	reopened, err := OpenState(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "somechannel", reopened.GetLastChannel())
}
