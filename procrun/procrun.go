// Package procrun spawns external measurement tools and reports their
// outcome as data. Failures never surface as panics: a missing binary,
// a non-zero exit and a timeout kill are all distinguishable from the
// returned Result alone.
package procrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the structured exit state of one child process.
type Result struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	Killed     bool
	SpawnError bool
}

// Command describes a single external invocation.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
	// OnLine, when set, receives each stdout line as it arrives. Lines are
	// still accumulated into Result.Stdout.
	OnLine func(line string)
}

// Executor runs external commands. The fake implementation in fake.go is
// the test seam for everything above this package.
type Executor interface {
	Run(ctx context.Context, cmd Command) Result
	LookPath(file string) (string, error)
}

type RealExecutor struct{}

func (RealExecutor) LookPath(file string) (string, error) { return exec.LookPath(file) }

// Run spawns the command with stdin closed and waits for it to exit or for
// the timeout to elapse, whichever comes first. On timeout the process is
// force-killed and Killed is set; callers never see an error value.
func (RealExecutor) Run(ctx context.Context, c Command) Result {
	runCtx := ctx
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Str("component", "procrun").
		Str("cmd", c.Name).Strs("args", c.Args).Dur("timeout", c.Timeout).
		Msg("spawning")

	if c.OnLine == nil {
		cmd.Stdout = &stdout
		if err := cmd.Start(); err != nil {
			log.Debug().Str("component", "procrun").Err(err).Str("cmd", c.Name).Msg("spawn failed")
			return Result{ExitCode: 127, SpawnError: true, Stderr: err.Error()}
		}
		err := cmd.Wait()
		return finish(runCtx, err, stdout.String(), stderr.String())
	}

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: 127, SpawnError: true, Stderr: err.Error()}
	}
	if err := cmd.Start(); err != nil {
		log.Debug().Str("component", "procrun").Err(err).Str("cmd", c.Name).Msg("spawn failed")
		return Result{ExitCode: 127, SpawnError: true, Stderr: err.Error()}
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteByte('\n')
		c.OnLine(line)
	}

	err = cmd.Wait()
	return finish(runCtx, err, stdout.String(), stderr.String())
}

func finish(runCtx context.Context, err error, stdout, stderr string) Result {
	res := Result{Stdout: stdout, Stderr: stderr}

	if runCtx.Err() == context.DeadlineExceeded {
		res.Killed = true
	}

	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
		} else if !res.Killed {
			res.SpawnError = true
			res.ExitCode = 127
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		} else {
			res.ExitCode = -1
		}
	}
	if res.Killed && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res
}

// Tail returns the last n characters of s with surrounding whitespace
// trimmed, for error messages that quote process output.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
