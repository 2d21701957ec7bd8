// Package runner discovers speed-test executables on the host and maps
// their heterogeneous output into the canonical result shape.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/G-grbz/argusSyS/model"
	"github.com/G-grbz/argusSyS/procrun"
)

// Candidate is one usable runner on this host.
type Candidate struct {
	Kind model.RunnerKind
	Path string
}

// Options controls resolution.
type Options struct {
	// OverridePath forces a specific executable as the primary runner.
	OverridePath string
	// BundledDir is searched for an architecture-matched bundled binary.
	BundledDir string
	// Embedded appends the built-in library runner as the last candidate.
	Embedded bool
}

const versionProbeTimeout = 5 * time.Second

// ResolveAll returns every usable runner in priority order: explicit
// override, bundled binary, system speedtest (Ookla), system
// speedtest-cli, system librespeed-cli, then the embedded runner when
// enabled. An empty slice means no runner is available; callers surface
// that only when a run is actually attempted.
func ResolveAll(ctx context.Context, ex procrun.Executor, opts Options) []Candidate {
	var out []Candidate

	seen := map[model.RunnerKind]bool{}
	add := func(c Candidate) {
		if seen[c.Kind] {
			return
		}
		seen[c.Kind] = true
		out = append(out, c)
		log.Debug().Str("component", "runner").
			Str("kind", string(c.Kind)).Str("path", c.Path).
			Msg("resolved candidate")
	}

	if opts.OverridePath != "" {
		add(Candidate{Kind: model.RunnerOokla, Path: opts.OverridePath})
	}

	if p, ok := bundledBinary(opts.BundledDir); ok {
		add(Candidate{Kind: model.RunnerOokla, Path: p})
	}

	if p, err := ex.LookPath("speedtest"); err == nil {
		// The Python speedtest-cli is commonly symlinked as plain
		// "speedtest"; a --version probe tells the families apart.
		if isPythonCLI(ctx, ex, p) {
			add(Candidate{Kind: model.RunnerSpeedtestCLI, Path: p})
		} else {
			add(Candidate{Kind: model.RunnerOokla, Path: p})
		}
	}

	if p, err := ex.LookPath("speedtest-cli"); err == nil {
		add(Candidate{Kind: model.RunnerSpeedtestCLI, Path: p})
	}

	if p, err := ex.LookPath("librespeed-cli"); err == nil {
		add(Candidate{Kind: model.RunnerLibrespeed, Path: p})
	}

	if opts.Embedded {
		add(Candidate{Kind: model.RunnerEmbedded})
	}

	return out
}

func isPythonCLI(ctx context.Context, ex procrun.Executor, path string) bool {
	res := ex.Run(ctx, procrun.Command{
		Name:    path,
		Args:    []string{"--version"},
		Timeout: versionProbeTimeout,
	})
	text := strings.ToLower(res.Stdout + " " + res.Stderr)
	return strings.Contains(text, "speedtest-cli") || strings.Contains(text, "python")
}

// bundledBinary looks for a shipped binary matching the host OS/CPU and
// makes it executable if it is not yet, best effort.
func bundledBinary(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	name := fmt.Sprintf("speedtest-%s-%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if info.Mode().Perm()&0o111 == 0 {
		if err := os.Chmod(path, 0o755); err != nil {
			log.Warn().Str("component", "runner").Err(err).Str("path", path).
				Msg("bundled binary not executable and chmod failed")
			return "", false
		}
	}
	return path, true
}

// Args returns the invocation arguments for each external runner family.
// The Ookla CLI is asked for newline-delimited JSON so progress events
// stream while the run is in flight.
func Args(kind model.RunnerKind) []string {
	switch kind {
	case model.RunnerOokla:
		return []string{"--accept-license", "--accept-gdpr", "-f", "jsonl"}
	case model.RunnerSpeedtestCLI:
		return []string{"--json", "--secure"}
	case model.RunnerLibrespeed:
		return []string{"--json"}
	default:
		return nil
	}
}
