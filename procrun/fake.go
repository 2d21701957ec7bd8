package procrun

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// FakeExecutor is a scripted Executor for tests. Results are looked up by
// the full "name arg arg..." key first, then by bare command name.
type FakeExecutor struct {
	mu      sync.Mutex
	Outputs map[string]Result
	// Lines are fed to Command.OnLine, in order, before the result is
	// returned.
	Lines  map[string][]string
	Paths  map[string]bool
	Delays map[string]time.Duration
	calls  []string
}

func (f *FakeExecutor) key(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

func (f *FakeExecutor) Run(ctx context.Context, c Command) Result {
	k := f.key(c.Name, c.Args)

	f.mu.Lock()
	f.calls = append(f.calls, k)
	delay := f.Delays[k]
	if delay == 0 {
		delay = f.Delays[c.Name]
	}
	res, ok := f.Outputs[k]
	if !ok {
		res, ok = f.Outputs[c.Name]
	}
	lines, haveLines := f.Lines[k]
	if !haveLines {
		lines = f.Lines[c.Name]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{ExitCode: -1, Killed: true}
		}
	}

	if c.OnLine != nil {
		for _, line := range lines {
			c.OnLine(line)
		}
	}

	if !ok {
		return Result{ExitCode: 127, SpawnError: true, Stderr: "no fake output configured"}
	}
	return res
}

func (f *FakeExecutor) LookPath(file string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Paths != nil && f.Paths[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found")
}

// Calls returns a copy of every invocation key recorded so far.
func (f *FakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts recorded invocations whose key starts with prefix.
func (f *FakeExecutor) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
