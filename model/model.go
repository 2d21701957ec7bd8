package model

// RunnerKind identifies which speed-test executable family produced a result.
type RunnerKind string

const (
	RunnerNone         RunnerKind = ""
	RunnerOokla        RunnerKind = "ookla"
	RunnerSpeedtestCLI RunnerKind = "speedtest-cli"
	RunnerLibrespeed   RunnerKind = "librespeed-cli"
	RunnerEmbedded     RunnerKind = "embedded"
)

// Stage is the phase an in-flight run is currently in.
type Stage string

const (
	StageStarting    Stage = "starting"
	StagePing        Stage = "ping"
	StageDownload    Stage = "download"
	StageUpload      Stage = "upload"
	StageRateLimited Stage = "rate_limited"
	StageDone        Stage = "done"
	StageError       Stage = "error"
)

// RunResult is one completed measurement. Fields are pointers so that a
// metric the runner never reported serializes as null rather than zero.
type RunResult struct {
	Runner   RunnerKind `json:"runner"`
	PingMs   *float64   `json:"ping_ms"`
	JitterMs *float64   `json:"jitter_ms"`
	DownMbps *float64   `json:"down_mbps"`
	UpMbps   *float64   `json:"up_mbps"`
	Note     string     `json:"note,omitempty"`
}

// Progress is the live snapshot of an in-flight run. It only exists while
// the controller reports running=true and is updated value-by-value as
// partial data arrives, never rolled back.
type Progress struct {
	Stage    Stage    `json:"stage"`
	TS       int64    `json:"ts"`
	PingMs   *float64 `json:"ping_ms,omitempty"`
	JitterMs *float64 `json:"jitter_ms,omitempty"`
	DownMbps *float64 `json:"down_mbps,omitempty"`
	UpMbps   *float64 `json:"up_mbps,omitempty"`
}

// HistoryEntry is an append-only record of a completed run.
type HistoryEntry struct {
	ID string `json:"id"`
	TS int64  `json:"ts"`
	RunResult
}

// Snapshot is the read-only projection of controller state served to
// dashboard collaborators.
type Snapshot struct {
	Runner      RunnerKind     `json:"runner"`
	Running     bool           `json:"running"`
	IntervalMin int            `json:"interval_min"`
	NextRunTS   int64          `json:"next_run_ts"`
	Last        *RunResult     `json:"last"`
	LastError   string         `json:"last_error,omitempty"`
	Progress    *Progress      `json:"progress,omitempty"`
	MaxDownMbps float64        `json:"max_down_mbps"`
	MaxUpMbps   float64        `json:"max_up_mbps"`
	History24h  []HistoryEntry `json:"history_24h"`
}

// PersistedState is the single JSON document written to disk after every
// state-affecting transition. All timestamps are epoch milliseconds.
type PersistedState struct {
	IntervalMin    int            `json:"interval_min"`
	SavedAt        int64          `json:"saved_at"`
	RateLimitUntil int64          `json:"rate_limit_until"`
	RateLimitCount int            `json:"rate_limit_count"`
	MaxDownMbps    float64        `json:"max_down_mbps"`
	MaxUpMbps      float64        `json:"max_up_mbps"`
	History        []HistoryEntry `json:"history"`
}

// Float returns a pointer to v, for building results in place.
func Float(v float64) *float64 { return &v }
