package runner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-grbz/argusSyS/model"
)

func TestNormalizeOoklaBandwidth(t *testing.T) {
	assert := assert.New(t)

	obj := map[string]any{
		"ping":     map[string]any{"latency": 12.3, "jitter": 1.1},
		"download": map[string]any{"bandwidth": 12500000.0}, // bytes/sec
		"upload":   map[string]any{"bandwidth": 2500000.0},
	}
	res := Normalize(model.RunnerOokla, obj)

	require.NotNil(t, res.PingMs)
	assert.Equal(12.3, *res.PingMs)
	require.NotNil(t, res.JitterMs)
	assert.Equal(1.1, *res.JitterMs)
	require.NotNil(t, res.DownMbps)
	assert.InDelta(100.0, *res.DownMbps, 0.001)
	require.NotNil(t, res.UpMbps)
	assert.InDelta(20.0, *res.UpMbps, 0.001)
}

func TestNormalizeOoklaFallbacks(t *testing.T) {
	assert := assert.New(t)

	// Flat latency plus explicit bits-per-second.
	res := Normalize(model.RunnerOokla, map[string]any{
		"latency":  9.0,
		"download": map[string]any{"bits_per_second": 100000000.0},
		"upload":   map[string]any{"bytes": 12500000.0, "elapsed_ms": 1000.0},
	})

	require.NotNil(t, res.PingMs)
	assert.Equal(9.0, *res.PingMs)
	require.NotNil(t, res.DownMbps)
	assert.InDelta(100.0, *res.DownMbps, 0.001)
	require.NotNil(t, res.UpMbps)
	assert.InDelta(100.0, *res.UpMbps, 0.001)
	assert.Nil(res.JitterMs)
}

func TestNormalizeSpeedtestCLI(t *testing.T) {
	assert := assert.New(t)

	res := Normalize(model.RunnerSpeedtestCLI, map[string]any{
		"ping":     20.5,
		"download": 812000000.0, // bits/sec
		"upload":   55300000.0,
	})

	require.NotNil(t, res.PingMs)
	assert.Equal(20.5, *res.PingMs)
	require.NotNil(t, res.DownMbps)
	assert.InDelta(812.0, *res.DownMbps, 0.001)
	require.NotNil(t, res.UpMbps)
	assert.InDelta(55.3, *res.UpMbps, 0.001)
	assert.Nil(res.JitterMs)
}

func TestNormalizeLibrespeed(t *testing.T) {
	assert := assert.New(t)

	res := Normalize(model.RunnerLibrespeed, map[string]any{
		"ping":     10.0,
		"jitter":   2.0,
		"download": 100.5,
		"upload":   20.25,
	})
	require.NotNil(t, res.DownMbps)
	assert.Equal(100.5, *res.DownMbps)
	require.NotNil(t, res.UpMbps)
	assert.Equal(20.25, *res.UpMbps)

	legacy := Normalize(model.RunnerLibrespeed, map[string]any{
		"latency": 9.0,
		"dl":      50.0,
		"ul":      10.0,
	})
	require.NotNil(t, legacy.PingMs)
	assert.Equal(9.0, *legacy.PingMs)
	require.NotNil(t, legacy.DownMbps)
	assert.Equal(50.0, *legacy.DownMbps)
	require.NotNil(t, legacy.UpMbps)
	assert.Equal(10.0, *legacy.UpMbps)
}

func TestNormalizeRejectsNonFinite(t *testing.T) {
	assert := assert.New(t)

	res := Normalize(model.RunnerLibrespeed, map[string]any{
		"ping":     math.NaN(),
		"download": math.Inf(1),
	})
	assert.Nil(res.PingMs)
	assert.Nil(res.DownMbps)
	assert.Nil(res.UpMbps)
}
