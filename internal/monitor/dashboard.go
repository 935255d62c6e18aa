package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"secops-console/internal/metrics"
	"secops-console/internal/state"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LogFeedLimit is how many log rows the feed keeps.
const LogFeedLimit = 50

// Connection is a panel's link state with the dashboard API.
type Connection string

const (
	ConnUnknown      Connection = "unknown"
	ConnConnected    Connection = "connected"
	ConnDisconnected Connection = "disconnected"
)

// TrafficPanel backs the main page's traffic chart.
type TrafficPanel struct {
	Status               Connection     `json:"status"`
	History              []TrafficPoint `json:"history"`
	LastBytesPerSecond   float64        `json:"last_bytes_per_second"`
	LastBytesLabel       string         `json:"last_bytes_label"`
	LastPacketsPerSecond float64        `json:"last_packets_per_second"`
	Stats                TrafficStats   `json:"stats,omitempty"`
}

// ThreatPanel backs the threat pie chart and the ten-minute log bars.
type ThreatPanel struct {
	Status        Connection    `json:"status"`
	Slices        []ThreatSlice `json:"slices"`
	Buckets       []LogBucket   `json:"buckets"`
	TotalThreats  int           `json:"total_threats"`
	TopThreatType string        `json:"top_threat_type"`
	MostFrequent  string        `json:"most_frequent"`
	DetectedTypes int           `json:"detected_types"`
}

// LogPanel backs the log feed.
type LogPanel struct {
	Status   Connection `json:"status"`
	Entries  []LogEntry `json:"entries"`
	Count24h int        `json:"count_24h"`
}

// Snapshot is everything the monitoring pages render.
type Snapshot struct {
	Traffic   TrafficPanel `json:"traffic"`
	Threats   ThreatPanel  `json:"threats"`
	Logs      LogPanel     `json:"logs"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DashboardOptions configures a Dashboard. Zero intervals select the page defaults.
type DashboardOptions struct {
	TrafficInterval  time.Duration
	LogsInterval     time.Duration
	LogStatsInterval time.Duration
	Location         *time.Location
	Now              func() time.Time
	Log              *zap.Logger
	Metrics          *metrics.Metrics
	// OnNewThreats is called when total_threats grows between two log-stats polls.
	OnNewThreats func(delta int, stats LogStats)
}

// Dashboard polls the dashboard API and holds the latest Snapshot. It is shared by all
// sessions; subscribers see every update.
type Dashboard struct {
	client *Client
	opts   DashboardOptions
	snap   *state.Store[Snapshot]

	mu        sync.Mutex
	lastTotal int
	haveTotal bool
	started   bool

	wg sync.WaitGroup
}

func NewDashboard(client *Client, opts DashboardOptions) *Dashboard {
	if opts.TrafficInterval <= 0 {
		opts.TrafficInterval = TrafficInterval
	}
	if opts.LogsInterval <= 0 {
		opts.LogsInterval = LogsInterval
	}
	if opts.LogStatsInterval <= 0 {
		opts.LogStatsInterval = LogStatsInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	d := &Dashboard{client: client, opts: opts}
	d.snap = state.NewStore(d.initial())
	return d
}

func (d *Dashboard) initial() Snapshot {
	now := d.opts.Now().In(d.opts.Location)
	return Snapshot{
		Traffic: TrafficPanel{Status: ConnUnknown, History: []TrafficPoint{}, LastBytesLabel: FormatBytes(0)},
		Threats: ThreatPanel{
			Status:       ConnUnknown,
			Slices:       DefaultThreatSlices(),
			Buckets:      LogBuckets(now, 0),
			MostFrequent: "-",
		},
		Logs: LogPanel{Status: ConnUnknown, Entries: []LogEntry{}},
	}
}

// Snapshot returns the latest state.
func (d *Dashboard) Snapshot() Snapshot { return d.snap.Get() }

// Subscribe registers fn for every snapshot update.
func (d *Dashboard) Subscribe(fn func(Snapshot)) func() {
	return d.snap.Subscribe(func(next, _ Snapshot) { fn(next) })
}

// Start launches the three pollers. They stop when ctx is done; Wait blocks until then.
// Calling Start more than once has no effect.
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	pollers := []*Poller{
		{Name: "traffic", Interval: d.opts.TrafficInterval, Fetch: d.PollTraffic},
		{Name: "logs", Interval: d.opts.LogsInterval, Fetch: d.PollLogs},
		{Name: "logs_stats", Interval: d.opts.LogStatsInterval, Fetch: d.PollLogStats},
	}
	for _, p := range pollers {
		p.Log = d.opts.Log
		p.Metrics = d.opts.Metrics
		d.wg.Add(1)
		go func(p *Poller) {
			defer d.wg.Done()
			p.Run(ctx)
		}(p)
	}
}

// Wait blocks until every poller started by Start has returned.
func (d *Dashboard) Wait() { d.wg.Wait() }

// Refresh resets every panel to its initial state and fetches all endpoints once.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.snap.Set(func(Snapshot) Snapshot { return d.initial() })
	var g errgroup.Group
	g.Go(func() error { return d.PollTraffic(ctx) })
	g.Go(func() error { return d.PollLogStats(ctx) })
	g.Go(func() error { return d.PollLogs(ctx) })
	return g.Wait()
}

// PollTraffic fetches traffic stats and traffic-over-time together. The panel counts as
// connected if either call succeeds; a failed series clears the history.
func (d *Dashboard) PollTraffic(ctx context.Context) error {
	var (
		g                errgroup.Group
		stats            TrafficStats
		series           TrafficOverTime
		statsErr, serErr error
	)
	g.Go(func() error {
		stats, statsErr = d.client.TrafficStats(ctx)
		return nil
	})
	g.Go(func() error {
		series, serErr = d.client.TrafficOverTime(ctx)
		return nil
	})
	_ = g.Wait()

	d.snap.Set(func(s Snapshot) Snapshot {
		tp := s.Traffic
		if serErr == nil {
			tp.History = AppendHistory(tp.History, TrafficPoints(series, d.opts.Location), HistoryWindow)
			tp.LastBytesPerSecond, tp.LastPacketsPerSecond = LastRates(series)
		} else {
			tp.History = []TrafficPoint{}
			tp.LastBytesPerSecond, tp.LastPacketsPerSecond = 0, 0
		}
		tp.LastBytesLabel = FormatBytes(tp.LastBytesPerSecond)
		if statsErr == nil {
			tp.Stats = stats
		}
		tp.Status = ConnDisconnected
		if serErr == nil || statsErr == nil {
			tp.Status = ConnConnected
		}
		s.Traffic = tp
		s.UpdatedAt = d.opts.Now()
		return s
	})

	if serErr != nil && statsErr != nil {
		return fmt.Errorf("traffic: %w", serErr)
	}
	return nil
}

// PollLogStats fetches the threat summary. On failure the slices and bars drop to zero.
func (d *Dashboard) PollLogStats(ctx context.Context) error {
	stats, err := d.client.LogStats(ctx)
	now := d.opts.Now()

	d.snap.Set(func(s Snapshot) Snapshot {
		tp := s.Threats
		if err != nil {
			tp.Status = ConnDisconnected
			tp.Slices = ZeroSlices(tp.Slices)
			tp.Buckets = LogBuckets(now.In(d.opts.Location), 0)
		} else {
			tp.Status = ConnConnected
			tp.Slices = MergeDistribution(tp.Slices, stats.Distribution)
			tp.Buckets = LogBuckets(now.In(d.opts.Location), stats.ThreatTypeCount)
			tp.TotalThreats = stats.TotalThreats
			tp.TopThreatType = stats.TopThreatType
		}
		tp.MostFrequent = MostFrequentThreat(tp.Slices)
		tp.DetectedTypes = DetectedThreatTypes(tp.Slices)
		s.Threats = tp
		s.UpdatedAt = now
		return s
	})
	if err != nil {
		return fmt.Errorf("logs stats: %w", err)
	}

	d.mu.Lock()
	delta := stats.TotalThreats - d.lastTotal
	first := !d.haveTotal
	d.lastTotal, d.haveTotal = stats.TotalThreats, true
	d.mu.Unlock()

	if !first && delta > 0 && d.opts.OnNewThreats != nil {
		d.opts.OnNewThreats(delta, stats)
	}
	return nil
}

// PollLogs fetches the log feed and the 24-hour count.
func (d *Dashboard) PollLogs(ctx context.Context) error {
	var (
		g               errgroup.Group
		entries         []LogEntry
		count           int
		logsErr, cntErr error
	)
	g.Go(func() error {
		entries, logsErr = d.client.Logs(ctx, LogFeedLimit)
		return nil
	})
	g.Go(func() error {
		count, cntErr = d.client.LogCount24h(ctx)
		return nil
	})
	_ = g.Wait()

	d.snap.Set(func(s Snapshot) Snapshot {
		lp := s.Logs
		if logsErr == nil {
			if entries == nil {
				entries = []LogEntry{}
			}
			lp.Entries = entries
		}
		if cntErr == nil {
			lp.Count24h = count
		}
		lp.Status = ConnDisconnected
		if logsErr == nil || cntErr == nil {
			lp.Status = ConnConnected
		}
		s.Logs = lp
		s.UpdatedAt = d.opts.Now()
		return s
	})
	if logsErr != nil && cntErr != nil {
		return fmt.Errorf("logs: %w", logsErr)
	}
	return nil
}

// Briefing summarises the snapshot in a few plain lines.
func (d *Dashboard) Briefing() string {
	s := d.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "traffic: %s, last %s/s, %.0f packets/s\n", s.Traffic.Status, s.Traffic.LastBytesLabel, s.Traffic.LastPacketsPerSecond)
	fmt.Fprintf(&b, "threats: %s, total %d, most frequent %s, %d types detected\n",
		s.Threats.Status, s.Threats.TotalThreats, s.Threats.MostFrequent, s.Threats.DetectedTypes)
	fmt.Fprintf(&b, "logs: %s, %d in the last 24h", s.Logs.Status, s.Logs.Count24h)
	return b.String()
}
