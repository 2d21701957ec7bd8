package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-grbz/argusSyS/model"
	"github.com/G-grbz/argusSyS/procrun"
)

func TestResolveNothingInstalled(t *testing.T) {
	assert := assert.New(t)

	ex := &procrun.FakeExecutor{}
	cands := ResolveAll(context.Background(), ex, Options{})
	assert.Empty(cands)
}

func TestResolveOverridePathWins(t *testing.T) {
	assert := assert.New(t)

	ex := &procrun.FakeExecutor{Paths: map[string]bool{"librespeed-cli": true}}
	cands := ResolveAll(context.Background(), ex, Options{OverridePath: "/opt/speedtest"})

	require.NotEmpty(t, cands)
	assert.Equal(model.RunnerOokla, cands[0].Kind)
	assert.Equal("/opt/speedtest", cands[0].Path)
	assert.Equal(model.RunnerLibrespeed, cands[1].Kind)
}

func TestResolveGenuineOoklaBinary(t *testing.T) {
	assert := assert.New(t)

	ex := &procrun.FakeExecutor{
		Paths: map[string]bool{"speedtest": true},
		Outputs: map[string]procrun.Result{
			"/usr/bin/speedtest --version": {Stdout: "Speedtest by Ookla 1.2.0.84\n"},
		},
	}
	cands := ResolveAll(context.Background(), ex, Options{})

	require.NotEmpty(t, cands)
	assert.Equal(model.RunnerOokla, cands[0].Kind)
	assert.Equal("/usr/bin/speedtest", cands[0].Path)
}

func TestResolvePythonMasquerade(t *testing.T) {
	assert := assert.New(t)

	// A "speedtest" on PATH that is really the Python speedtest-cli must
	// not be treated as the Ookla family.
	ex := &procrun.FakeExecutor{
		Paths: map[string]bool{"speedtest": true, "speedtest-cli": true},
		Outputs: map[string]procrun.Result{
			"/usr/bin/speedtest --version": {Stdout: "speedtest-cli 2.1.3\nPython 3.11.2\n"},
		},
	}
	cands := ResolveAll(context.Background(), ex, Options{})

	require.Len(t, cands, 1)
	assert.Equal(model.RunnerSpeedtestCLI, cands[0].Kind)
}

func TestResolveAlternatesOrder(t *testing.T) {
	assert := assert.New(t)

	ex := &procrun.FakeExecutor{
		Paths: map[string]bool{"speedtest-cli": true, "librespeed-cli": true},
	}
	cands := ResolveAll(context.Background(), ex, Options{Embedded: true})

	require.Len(t, cands, 3)
	assert.Equal(model.RunnerSpeedtestCLI, cands[0].Kind)
	assert.Equal(model.RunnerLibrespeed, cands[1].Kind)
	assert.Equal(model.RunnerEmbedded, cands[2].Kind)
}

func TestResolveBundledBinary(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	name := fmt.Sprintf("speedtest-%s-%s", runtime.GOOS, runtime.GOARCH)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	ex := &procrun.FakeExecutor{}
	cands := ResolveAll(context.Background(), ex, Options{BundledDir: dir})

	require.NotEmpty(t, cands)
	assert.Equal(model.RunnerOokla, cands[0].Kind)
	assert.Equal(path, cands[0].Path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(info.Mode().Perm()&0o111, "bundled binary should be chmod'ed executable")
}

func TestArgsPerFamily(t *testing.T) {
	assert := assert.New(t)

	assert.Contains(Args(model.RunnerOokla), "jsonl")
	assert.Contains(Args(model.RunnerSpeedtestCLI), "--json")
	assert.Contains(Args(model.RunnerLibrespeed), "--json")
	assert.Nil(Args(model.RunnerEmbedded))
}
