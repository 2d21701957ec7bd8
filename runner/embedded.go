package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	st "github.com/showwin/speedtest-go/speedtest"

	"github.com/G-grbz/argusSyS/model"
)

// Embedded measures with the speedtest-go library instead of an external
// process. It is the terminal fallback of the resolution chain and only
// participates when enabled in config.
type Embedded struct {
	client *st.Speedtest
}

func NewEmbedded() *Embedded {
	return &Embedded{client: st.New()}
}

// Run performs ping, download and upload against the closest server,
// reporting stage transitions through onProgress.
func (e *Embedded) Run(ctx context.Context, onProgress func(model.Progress)) (model.RunResult, error) {
	if onProgress == nil {
		onProgress = func(model.Progress) {}
	}
	stage := func(s model.Stage) model.Progress {
		return model.Progress{Stage: s, TS: time.Now().UnixMilli()}
	}

	onProgress(stage(model.StageStarting))

	if _, err := e.client.FetchUserInfoContext(ctx); err != nil {
		return model.RunResult{}, errors.Wrap(err, "fetch user info")
	}
	servers, err := e.client.FetchServerListContext(ctx)
	if err != nil {
		return model.RunResult{}, errors.Wrap(err, "fetch server list")
	}
	if len(servers) == 0 {
		return model.RunResult{}, errors.New("no servers available")
	}
	target := servers[0]

	onProgress(stage(model.StagePing))
	if err := target.PingTestContext(ctx, nil); err != nil {
		return model.RunResult{}, errors.Wrap(err, "ping test")
	}
	ping := stage(model.StagePing)
	ping.PingMs = model.Float(target.Latency.Seconds() * 1000)
	ping.JitterMs = model.Float(target.Jitter.Seconds() * 1000)
	onProgress(ping)

	onProgress(stage(model.StageDownload))
	if err := target.DownloadTestContext(ctx); err != nil {
		return model.RunResult{}, errors.Wrap(err, "download test")
	}
	down := stage(model.StageDownload)
	down.DownMbps = model.Float(target.DLSpeed.Mbps())
	onProgress(down)

	onProgress(stage(model.StageUpload))
	if err := target.UploadTestContext(ctx); err != nil {
		return model.RunResult{}, errors.Wrap(err, "upload test")
	}
	up := stage(model.StageUpload)
	up.UpMbps = model.Float(target.ULSpeed.Mbps())
	onProgress(up)

	return model.RunResult{
		Runner:   model.RunnerEmbedded,
		PingMs:   model.Float(target.Latency.Seconds() * 1000),
		JitterMs: model.Float(target.Jitter.Seconds() * 1000),
		DownMbps: model.Float(target.DLSpeed.Mbps()),
		UpMbps:   model.Float(target.ULSpeed.Mbps()),
	}, nil
}
