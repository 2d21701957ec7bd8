// Package ratelimit classifies upstream rate-limiting and computes the
// backoff window that gates further runs against the primary runner.
package ratelimit

import (
	"strings"
	"time"
)

// OoklaLimitExitCode is the exit code the Ookla CLI uses when the
// account/IP has hit its daily result limit.
const OoklaLimitExitCode = 173

var phrases = []string{
	"limit reached",
	"too many requests",
	"429",
	"rate limit",
}

// steps escalates with consecutive hits and caps at the last entry.
var steps = []time.Duration{
	30 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	6 * time.Hour,
}

// IsRateLimited reports whether a failed run looks like upstream
// rate-limiting, by exit code or by phrasing in either output stream.
func IsRateLimited(exitCode int, stdout, stderr string) bool {
	if exitCode == OoklaLimitExitCode {
		return true
	}
	text := strings.ToLower(stdout + "\n" + stderr)
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Backoff returns the wait for the given consecutive hit count (1-based).
func Backoff(hits int) time.Duration {
	if hits < 1 {
		hits = 1
	}
	if hits > len(steps) {
		hits = len(steps)
	}
	return steps[hits-1]
}
