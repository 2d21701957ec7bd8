package runner

import (
	"math"

	"github.com/G-grbz/argusSyS/model"
)

// Normalize maps one runner family's raw JSON object into the canonical
// RunResult shape. Unknown or non-finite values stay nil.
func Normalize(kind model.RunnerKind, obj map[string]any) model.RunResult {
	res := model.RunResult{Runner: kind}

	switch kind {
	case model.RunnerOokla:
		res.PingMs = firstNum(
			nested(obj, "ping", "latency"),
			flat(obj, "latency"),
			flat(obj, "ping"),
		)
		res.JitterMs = firstNum(
			nested(obj, "ping", "jitter"),
			flat(obj, "jitter"),
		)
		res.DownMbps = ooklaMbps(obj, "download")
		res.UpMbps = ooklaMbps(obj, "upload")

	case model.RunnerSpeedtestCLI:
		res.PingMs = flat(obj, "ping")
		res.DownMbps = scale(flat(obj, "download"), 1.0/1e6)
		res.UpMbps = scale(flat(obj, "upload"), 1.0/1e6)

	case model.RunnerLibrespeed, model.RunnerEmbedded:
		res.PingMs = firstNum(flat(obj, "ping"), flat(obj, "latency"))
		res.JitterMs = flat(obj, "jitter")
		res.DownMbps = firstNum(flat(obj, "download"), flat(obj, "dl"))
		res.UpMbps = firstNum(flat(obj, "upload"), flat(obj, "ul"))
	}

	return res
}

// ooklaMbps converts the Ookla CLI's download/upload section to Mbps:
// bandwidth is bytes per second; older builds expose bits per second or a
// bytes/elapsed pair instead.
func ooklaMbps(obj map[string]any, section string) *float64 {
	sec, ok := obj[section].(map[string]any)
	if !ok {
		// Some variants report a flat Mbps number under the section name.
		return flat(obj, section)
	}
	if v := flat(sec, "bandwidth"); v != nil {
		return model.Float(*v * 8 / 1e6)
	}
	if v := firstNum(flat(sec, "bits_per_second"), flat(sec, "bps")); v != nil {
		return model.Float(*v / 1e6)
	}
	bytes := flat(sec, "bytes")
	elapsed := firstNum(flat(sec, "elapsed_ms"), flat(sec, "elapsed"))
	if bytes != nil && elapsed != nil && *elapsed > 0 {
		return model.Float(*bytes * 8 * 1000 / *elapsed / 1e6)
	}
	return nil
}

func flat(obj map[string]any, key string) *float64 {
	return asNum(obj[key])
}

func nested(obj map[string]any, outer, inner string) *float64 {
	sec, ok := obj[outer].(map[string]any)
	if !ok {
		return nil
	}
	return asNum(sec[inner])
}

func asNum(v any) *float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return model.Float(f)
}

func firstNum(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return model.Float(*v * factor)
}
