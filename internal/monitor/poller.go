package monitor

import (
	"context"
	"time"

	"secops-console/internal/metrics"

	"go.uber.org/zap"
)

// Poll intervals of the monitoring pages.
const (
	TrafficInterval  = 3 * time.Second
	LogsInterval     = 5 * time.Second
	LogStatsInterval = 10 * time.Minute
)

// Poller runs Fetch immediately and then every Interval until its context ends. A tick
// that fires while Fetch is still running is dropped, so fetches never overlap.
type Poller struct {
	Name     string
	Interval time.Duration
	Fetch    func(ctx context.Context) error
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// Run blocks until ctx is done. In-flight fetches see ctx cancellation.
func (p *Poller) Run(ctx context.Context) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("poller", p.Name))

	p.once(ctx, log)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.once(ctx, log)
		}
	}
}

func (p *Poller) once(ctx context.Context, log *zap.Logger) {
	start := time.Now()
	err := p.Fetch(ctx)
	p.Metrics.ObservePoll(p.Name, time.Since(start), err)
	if err != nil && ctx.Err() == nil {
		log.Debug("poll failed", zap.Error(err))
	}
}
