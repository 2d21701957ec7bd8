// Package controller owns the speed-test state machine: it schedules
// periodic runs, executes them single-flight through the process runner,
// interprets their output, applies the rate-limit policy and maintains the
// persisted 24-hour measurement history.
package controller

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/G-grbz/argusSyS/config"
	"github.com/G-grbz/argusSyS/model"
	"github.com/G-grbz/argusSyS/procrun"
	"github.com/G-grbz/argusSyS/ratelimit"
	"github.com/G-grbz/argusSyS/runner"
	"github.com/G-grbz/argusSyS/salvage"
)

const (
	historyWindow     = 24 * time.Hour
	historyMaxEntries = 5000
	maxIntervalMin    = 1440
)

const (
	noteRateLimitFallback = "rate-limited, fallback runner used"
	noteFallback          = "fallback used"
)

// EventFunc receives controller events for broadcast to dashboard
// clients: "progress" with a model.Progress, "complete" with a
// model.HistoryEntry, "error" with a string.
type EventFunc func(event string, payload any)

type failKind int

const (
	failSpawn failKind = iota
	failTimeout
	failRateLimit
	failExit
	failParse
)

type runError struct {
	kind failKind
	msg  string
}

// Controller is a single logical actor: every field below mu is touched
// only with mu held, and at most one run is in flight at any time.
type Controller struct {
	ex     procrun.Executor
	cfg    config.SpeedtestConfig
	logger zerolog.Logger

	embedded *runner.Embedded

	mu         sync.Mutex
	now        func() time.Time
	resolved   bool
	candidates []runner.Candidate

	running        bool
	intervalMin    int
	nextRunTS      int64
	rateLimitUntil int64
	rateLimitCount int
	maxDownMbps    float64
	maxUpMbps      float64
	history        []model.HistoryEntry
	last           *model.RunResult
	lastError      string
	progress       *model.Progress

	onEvent EventFunc
}

// New restores persisted state (best effort) and returns an idle
// controller. Runner resolution happens lazily on the first Tick or
// RunNow.
func New(ex procrun.Executor, cfg config.SpeedtestConfig) *Controller {
	c := &Controller{
		ex:          ex,
		cfg:         cfg,
		logger:      log.With().Str("component", "controller").Logger(),
		now:         time.Now,
		maxDownMbps: DefaultMaxDownMbps,
		maxUpMbps:   DefaultMaxUpMbps,
		intervalMin: clampInterval(cfg.IntervalMin),
	}

	if st, ok := loadState(cfg.StateFile); ok {
		c.intervalMin = clampInterval(st.IntervalMin)
		c.rateLimitUntil = st.RateLimitUntil
		c.rateLimitCount = st.RateLimitCount
		if st.MaxDownMbps > 0 {
			c.maxDownMbps = st.MaxDownMbps
		}
		if st.MaxUpMbps > 0 {
			c.maxUpMbps = st.MaxUpMbps
		}
		c.history = st.History
		c.pruneLocked()
	}

	if cfg.EmbeddedFallback {
		c.embedded = runner.NewEmbedded()
	}

	if c.intervalMin > 0 {
		c.nextRunTS = c.nowMS() + c.intervalMS()
	}

	return c
}

// SetOnEvent installs the broadcast hook. Must be called before the first
// run starts.
func (c *Controller) SetOnEvent(fn EventFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// Tick advances the schedule. It is called on a fixed cadence, is cheap
// while a run is in flight, and never blocks on process execution.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureResolvedLocked()

	if c.intervalMin == 0 || c.running {
		return
	}

	now := c.nowMS()
	if now < c.rateLimitUntil {
		if c.nextRunTS < c.rateLimitUntil {
			c.nextRunTS = c.rateLimitUntil
		}
		return
	}
	if c.nextRunTS == 0 {
		c.nextRunTS = now + c.intervalMS()
		return
	}
	if now >= c.nextRunTS {
		c.nextRunTS = now + c.intervalMS()
		c.startRunLocked()
	}
}

// RunNow triggers an immediate run unless one is already in flight or a
// rate-limit window is open; either way it returns the current snapshot.
func (c *Controller) RunNow() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureResolvedLocked()

	if c.running {
		return c.snapshotLocked()
	}

	now := c.nowMS()
	if now < c.rateLimitUntil {
		c.lastError = "rate limited, " + retryIn(c.rateLimitUntil-now)
		return c.snapshotLocked()
	}

	c.startRunLocked()
	return c.snapshotLocked()
}

// SetIntervalMin clamps to [0,1440], persists and reschedules from now.
func (c *Controller) SetIntervalMin(min int) model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.intervalMin = clampInterval(min)
	if c.intervalMin == 0 {
		c.nextRunTS = 0
	} else {
		c.nextRunTS = c.nowMS() + c.intervalMS()
		if c.nextRunTS < c.rateLimitUntil {
			c.nextRunTS = c.rateLimitUntil
		}
	}
	c.persistLocked()

	return c.snapshotLocked()
}

// Snapshot returns the read-only projection of current state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.Snapshot {
	c.pruneLocked()

	snap := model.Snapshot{
		Running:     c.running,
		IntervalMin: c.intervalMin,
		NextRunTS:   c.nextRunTS,
		Last:        c.last,
		LastError:   c.lastError,
		MaxDownMbps: c.maxDownMbps,
		MaxUpMbps:   c.maxUpMbps,
		History24h:  append(make([]model.HistoryEntry, 0, len(c.history)), c.history...),
	}
	if len(c.candidates) > 0 {
		snap.Runner = c.candidates[0].Kind
	}
	if c.running && c.progress != nil {
		p := *c.progress
		snap.Progress = &p
	}
	return snap
}

func (c *Controller) ensureResolvedLocked() {
	if c.resolved {
		return
	}
	c.resolved = true
	c.candidates = runner.ResolveAll(context.Background(), c.ex, runner.Options{
		OverridePath: c.cfg.OverridePath,
		BundledDir:   c.cfg.BundledDir,
		Embedded:     c.cfg.EmbeddedFallback,
	})
	if len(c.candidates) == 0 {
		c.logger.Warn().Msg("no speedtest runner available on this host")
		return
	}
	c.logger.Info().
		Str("runner", string(c.candidates[0].Kind)).
		Int("alternates", len(c.candidates)-1).
		Msg("runner resolved")
}

func (c *Controller) startRunLocked() {
	c.running = true
	c.lastError = ""
	c.progress = &model.Progress{Stage: model.StageStarting, TS: c.nowMS()}
	go c.doRun()
}

// doRun executes one measurement end to end. Every failure path resolves
// to controller state; nothing propagates to the scheduler.
func (c *Controller) doRun() {
	c.mu.Lock()
	cands := append([]runner.Candidate(nil), c.candidates...)
	timeout := time.Duration(c.cfg.TimeoutMS) * time.Millisecond
	c.mu.Unlock()

	if len(cands) == 0 {
		c.finishError("No speedtest runner found")
		return
	}

	primary := cands[0]
	res, runErr := c.execute(primary, timeout)
	if runErr == nil {
		c.finishSuccess(res, "", false)
		return
	}

	c.logger.Warn().Str("runner", string(primary.Kind)).Str("error", runErr.msg).Msg("run failed")

	switch runErr.kind {
	case failRateLimit:
		c.recordRateLimitHit()
		if fb, ok := fallbackFor(cands, primary.Kind); ok {
			c.setStage(model.StageRateLimited)
			if fres, ferr := c.execute(fb, timeout); ferr == nil {
				c.finishSuccess(fres, noteRateLimitFallback, true)
				return
			}
		}
		c.finishRateLimited()

	case failSpawn, failExit, failParse:
		if fb, ok := fallbackFor(cands, primary.Kind); ok {
			if fres, ferr := c.execute(fb, timeout); ferr == nil {
				c.finishSuccess(fres, noteFallback, false)
				return
			}
		}
		c.finishError(runErr.msg)

	default: // failTimeout, never retried within the same call
		c.finishError(runErr.msg)
	}
}

func (c *Controller) execute(cand runner.Candidate, timeout time.Duration) (model.RunResult, *runError) {
	if cand.Kind == model.RunnerEmbedded {
		return c.executeEmbedded(timeout)
	}

	var onLine func(string)
	if cand.Kind == model.RunnerOokla {
		onLine = func(line string) {
			if p, ok := runner.ParseProgressLine(line, c.nowMS()); ok {
				c.applyProgress(p)
			}
		}
	}

	pr := c.ex.Run(context.Background(), procrun.Command{
		Name:    cand.Path,
		Args:    runner.Args(cand.Kind),
		Timeout: timeout,
		OnLine:  onLine,
	})

	switch {
	case pr.SpawnError:
		return model.RunResult{}, &runError{failSpawn,
			fmt.Sprintf("cannot launch %s: %s", cand.Path, strings.TrimSpace(pr.Stderr))}
	case pr.Killed:
		return model.RunResult{}, &runError{failTimeout,
			fmt.Sprintf("%s timed out after %s", cand.Path, timeout)}
	case pr.ExitCode != 0:
		if ratelimit.IsRateLimited(pr.ExitCode, pr.Stdout, pr.Stderr) {
			return model.RunResult{}, &runError{failRateLimit,
				fmt.Sprintf("%s rate limited (exit %d)", cand.Path, pr.ExitCode)}
		}
		return model.RunResult{}, &runError{failExit,
			fmt.Sprintf("%s exited with code %d: %s",
				cand.Path, pr.ExitCode, procrun.Tail(pr.Stderr+pr.Stdout, 200))}
	}

	obj, err := salvage.Extract(pr.Stdout)
	if err != nil {
		return model.RunResult{}, &runError{failParse, "unreadable output: " + err.Error()}
	}
	return runner.Normalize(cand.Kind, obj), nil
}

func (c *Controller) executeEmbedded(timeout time.Duration) (model.RunResult, *runError) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := c.embedded.Run(ctx, c.applyProgress)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return model.RunResult{}, &runError{failTimeout,
				fmt.Sprintf("embedded runner timed out after %s", timeout)}
		}
		return model.RunResult{}, &runError{failExit, "embedded runner: " + err.Error()}
	}
	return res, nil
}

// applyProgress merges a partial update into the live progress slot,
// last-write-wins per field, and forwards it to the broadcast hook.
func (c *Controller) applyProgress(p model.Progress) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	if c.progress == nil {
		c.progress = &model.Progress{}
	}
	if p.Stage != "" {
		c.progress.Stage = p.Stage
	}
	c.progress.TS = p.TS
	if p.PingMs != nil {
		c.progress.PingMs = p.PingMs
	}
	if p.JitterMs != nil {
		c.progress.JitterMs = p.JitterMs
	}
	if p.DownMbps != nil {
		c.progress.DownMbps = p.DownMbps
	}
	if p.UpMbps != nil {
		c.progress.UpMbps = p.UpMbps
	}
	snap := *c.progress
	cb := c.onEvent
	c.mu.Unlock()

	if cb != nil {
		cb("progress", snap)
	}
}

func (c *Controller) setStage(stage model.Stage) {
	c.applyProgress(model.Progress{Stage: stage, TS: c.nowMS()})
}

func (c *Controller) finishSuccess(res model.RunResult, note string, wasRateLimited bool) {
	c.mu.Lock()

	// CLIs that report latency only through progress events still get a
	// complete final result.
	if c.progress != nil {
		if res.PingMs == nil {
			res.PingMs = c.progress.PingMs
		}
		if res.JitterMs == nil {
			res.JitterMs = c.progress.JitterMs
		}
		if res.DownMbps == nil {
			res.DownMbps = c.progress.DownMbps
		}
		if res.UpMbps == nil {
			res.UpMbps = c.progress.UpMbps
		}
	}
	res.Note = note

	if !wasRateLimited {
		c.rateLimitCount = 0
		c.rateLimitUntil = 0
	}

	if res.DownMbps != nil {
		if b := gaugeBucket(*res.DownMbps, DefaultMaxDownMbps); b > c.maxDownMbps {
			c.maxDownMbps = b
		}
	}
	if res.UpMbps != nil {
		if b := gaugeBucket(*res.UpMbps, DefaultMaxUpMbps); b > c.maxUpMbps {
			c.maxUpMbps = b
		}
	}

	entry := model.HistoryEntry{
		ID:        uuid.NewString(),
		TS:        c.nowMS(),
		RunResult: res,
	}
	c.history = append(c.history, entry)
	c.pruneLocked()

	c.last = &res
	c.lastError = ""
	c.running = false
	c.progress = nil
	c.persistLocked()

	cb := c.onEvent
	c.mu.Unlock()

	c.logger.Info().
		Str("runner", string(res.Runner)).Str("note", note).
		Msg("run complete")
	if cb != nil {
		cb("complete", entry)
	}
}

func (c *Controller) recordRateLimitHit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateLimitCount++
	wait := ratelimit.Backoff(c.rateLimitCount)
	c.rateLimitUntil = c.nowMS() + wait.Milliseconds()
	if c.nextRunTS != 0 && c.nextRunTS < c.rateLimitUntil {
		c.nextRunTS = c.rateLimitUntil
	}
	c.logger.Warn().
		Int("hits", c.rateLimitCount).Dur("backoff", wait).
		Msg("rate limit detected")
	c.persistLocked()
}

func (c *Controller) finishRateLimited() {
	c.mu.Lock()
	msg := "rate limited, " + retryIn(c.rateLimitUntil-c.nowMS())
	c.lastError = msg
	c.running = false
	c.progress = nil
	c.persistLocked()
	cb := c.onEvent
	c.mu.Unlock()

	if cb != nil {
		cb("error", msg)
	}
}

func (c *Controller) finishError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.running = false
	c.progress = nil
	c.persistLocked()
	cb := c.onEvent
	c.mu.Unlock()

	if cb != nil {
		cb("error", msg)
	}
}

// pruneLocked enforces the rolling 24h window and the hard entry cap.
func (c *Controller) pruneLocked() {
	cutoff := c.nowMS() - historyWindow.Milliseconds()
	kept := c.history[:0]
	for _, e := range c.history {
		if e.TS <= 0 || e.TS < cutoff {
			continue
		}
		kept = append(kept, e)
	}
	c.history = kept
	if len(c.history) > historyMaxEntries {
		c.history = c.history[len(c.history)-historyMaxEntries:]
	}
}

// persistLocked writes state to disk best effort; failures are logged and
// swallowed so a read-only disk never stops measuring.
func (c *Controller) persistLocked() {
	st := model.PersistedState{
		IntervalMin:    c.intervalMin,
		SavedAt:        c.nowMS(),
		RateLimitUntil: c.rateLimitUntil,
		RateLimitCount: c.rateLimitCount,
		MaxDownMbps:    c.maxDownMbps,
		MaxUpMbps:      c.maxUpMbps,
		History:        c.history,
	}
	if err := saveState(c.cfg.StateFile, st); err != nil {
		c.logger.Warn().Err(err).Msg("state persist failed")
	}
}

func (c *Controller) nowMS() int64 { return c.now().UnixMilli() }

func (c *Controller) intervalMS() int64 { return int64(c.intervalMin) * 60_000 }

func fallbackFor(cands []runner.Candidate, exclude model.RunnerKind) (runner.Candidate, bool) {
	for _, cand := range cands {
		if cand.Kind != exclude {
			return cand, true
		}
	}
	return runner.Candidate{}, false
}

func clampInterval(min int) int {
	if min < 0 {
		return 0
	}
	if min > maxIntervalMin {
		return maxIntervalMin
	}
	return min
}

func retryIn(remainMS int64) string {
	mins := int(math.Ceil(float64(remainMS) / 60_000))
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("retry in %dm", mins)
}
