package controller

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-grbz/argusSyS/model"
)

func TestStateRoundTrip(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "state.json")
	st := model.PersistedState{
		IntervalMin:    30,
		SavedAt:        1700000000000,
		RateLimitUntil: 1700000100000,
		RateLimitCount: 2,
		MaxDownMbps:    500,
		MaxUpMbps:      50,
		History: []model.HistoryEntry{
			{ID: "a", TS: 1700000000000, RunResult: model.RunResult{
				Runner: model.RunnerOokla, DownMbps: model.Float(120),
			}},
		},
	}
	require.NoError(t, saveState(path, st))

	got, ok := loadState(path)
	require.True(t, ok)
	assert.Equal(st.IntervalMin, got.IntervalMin)
	assert.Equal(st.RateLimitUntil, got.RateLimitUntil)
	assert.Equal(st.RateLimitCount, got.RateLimitCount)
	require.Len(t, got.History, 1)
	assert.Equal("a", got.History[0].ID)
	require.NotNil(t, got.History[0].DownMbps)
	assert.Equal(120.0, *got.History[0].DownMbps)
}

func TestLoadStateMissingOrCorrupt(t *testing.T) {
	assert := assert.New(t)

	_, ok := loadState(filepath.Join(t.TempDir(), "absent.json"))
	assert.False(ok)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, ok = loadState(bad)
	assert.False(ok)

	_, ok = loadState("")
	assert.False(ok)
}

func TestSaveStateIsAtomic(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, saveState(path, model.PersistedState{IntervalMin: 5}))
	require.NoError(t, saveState(path, model.PersistedState{IntervalMin: 7}))

	got, ok := loadState(path)
	require.True(t, ok)
	assert.Equal(7, got.IntervalMin)

	_, err := os.Stat(path + ".tmp")
	assert.True(os.IsNotExist(err), "temp file must not linger")
}
