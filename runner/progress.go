package runner

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/G-grbz/argusSyS/model"
)

var (
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	downlineRe = regexp.MustCompile(`(?i)download:\s*([0-9.]+)\s*mbps`)
	uplineRe   = regexp.MustCompile(`(?i)upload:\s*([0-9.]+)\s*mbps`)
	latencyRe  = regexp.MustCompile(`(?i)(?:idle\s+)?latency:\s*([0-9.]+)\s*ms`)
	jitterRe   = regexp.MustCompile(`(?i)jitter:?\s*([0-9.]+)\s*ms`)
)

// ParseProgressLine interprets one stdout line from a streaming Ookla run
// as a partial progress update. Lines may be newline-delimited JSON events
// or human-readable progress text, possibly wrapped in ANSI color codes.
// ok is false for lines carrying no usable data.
func ParseProgressLine(line string, nowMS int64) (p model.Progress, ok bool) {
	line = strings.TrimSpace(ansiRe.ReplaceAllString(line, ""))
	if line == "" {
		return model.Progress{}, false
	}
	p.TS = nowMS

	if strings.HasPrefix(line, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			return parseEvent(obj, p)
		}
	}

	if m := downlineRe.FindStringSubmatch(line); m != nil {
		p.Stage = model.StageDownload
		p.DownMbps = parseFloat(m[1])
		ok = true
	}
	if m := uplineRe.FindStringSubmatch(line); m != nil {
		p.Stage = model.StageUpload
		p.UpMbps = parseFloat(m[1])
		ok = true
	}
	if m := latencyRe.FindStringSubmatch(line); m != nil {
		if p.Stage == "" {
			p.Stage = model.StagePing
		}
		p.PingMs = parseFloat(m[1])
		ok = true
	}
	if m := jitterRe.FindStringSubmatch(line); m != nil {
		if p.Stage == "" {
			p.Stage = model.StagePing
		}
		p.JitterMs = parseFloat(m[1])
		ok = true
	}
	return p, ok
}

func parseEvent(obj map[string]any, p model.Progress) (model.Progress, bool) {
	typ, _ := obj["type"].(string)
	switch typ {
	case "testStart":
		p.Stage = model.StageStarting
		return p, true
	case "ping":
		p.Stage = model.StagePing
		p.PingMs = firstNum(nested(obj, "ping", "latency"), flat(obj, "latency"))
		p.JitterMs = nested(obj, "ping", "jitter")
		return p, true
	case "download":
		p.Stage = model.StageDownload
		p.DownMbps = ooklaMbps(obj, "download")
		return p, true
	case "upload":
		p.Stage = model.StageUpload
		p.UpMbps = ooklaMbps(obj, "upload")
		return p, true
	case "result":
		p.Stage = model.StageDone
		res := Normalize(model.RunnerOokla, obj)
		p.PingMs = res.PingMs
		p.JitterMs = res.JitterMs
		p.DownMbps = res.DownMbps
		p.UpMbps = res.UpMbps
		return p, true
	default:
		return p, false
	}
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return model.Float(f)
}
