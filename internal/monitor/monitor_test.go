package monitor

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDashboard serves canned responses for every dashboard path.
type fakeDashboard struct {
	mu       sync.Mutex
	stats    LogStats
	fail     map[string]bool
	hits     map[string]int
	release  chan struct{}
	inflight atomic.Int32
}

func newFakeDashboard() *fakeDashboard {
	return &fakeDashboard{
		stats: LogStats{
			TotalThreats:    12,
			TopThreatType:   "WMI 공격",
			Distribution:    []ThreatCount{{Type: "WMI 공격", Count: 7}, {Type: "DCOM 공격", Count: 5}},
			ThreatTypeCount: 2,
		},
		fail: map[string]bool{},
		hits: map[string]int{},
	}
}

func (f *fakeDashboard) setTotal(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.TotalThreats = n
}

func (f *fakeDashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	failing := f.fail[r.URL.Path]
	stats := f.stats
	release := f.release
	f.mu.Unlock()

	if release != nil {
		f.inflight.Add(1)
		<-release
	}
	if failing {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case PathTrafficStats:
		_ = json.NewEncoder(w).Encode(map[string]any{"total_packets": 100})
	case PathTrafficOverTime:
		_ = json.NewEncoder(w).Encode(TrafficOverTime{
			Timestamps:       []string{"2025-03-09T10:00:00Z", "2025-03-09T10:00:01Z"},
			BytesPerSecond:   []float64{1024, 1536},
			PacketsPerSecond: []float64{10},
		})
	case PathLogStats:
		_ = json.NewEncoder(w).Encode(stats)
	case PathLogs:
		_ = json.NewEncoder(w).Encode([]LogEntry{{Time: "2025-03-09T10:00:00Z", Status: "blocked", IP: "10.0.0.1"}})
	case PathLogCount24h:
		_ = json.NewEncoder(w).Encode(map[string]int{"count": 321})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDashboard) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// ── transforms ─────────────────────────────────────────────────────────────

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{0.5, "0.5 B"},
		{512, "512.0 B"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
		{5.5 * (1 << 30), "5.5 GB"},
		{3 * (1 << 50), "3072.0 TB"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatBytes(tc.in), "FormatBytes(%v)", tc.in)
	}
}

func TestAppendHistory_KeepsWindow(t *testing.T) {
	var hist []TrafficPoint
	for i := 0; i < 4; i++ {
		batch := []TrafficPoint{{Time: "a", BytesPerSecond: float64(3 * i)}, {Time: "b", BytesPerSecond: float64(3*i + 1)}, {Time: "c", BytesPerSecond: float64(3*i + 2)}}
		hist = AppendHistory(hist, batch, HistoryWindow)
	}
	require.Len(t, hist, HistoryWindow)
	assert.Equal(t, 3.0, hist[0].BytesPerSecond)
	assert.Equal(t, 11.0, hist[8].BytesPerSecond)
}

func TestTrafficPoints(t *testing.T) {
	pts := TrafficPoints(TrafficOverTime{
		Timestamps:       []string{"2025-03-09T10:00:05Z", "garbage"},
		BytesPerSecond:   []float64{1},
		PacketsPerSecond: []float64{2, 3},
	}, time.UTC)
	assert.Equal(t, []TrafficPoint{
		{Time: "10:00:05", BytesPerSecond: 1, PacketsPerSecond: 2},
		{Time: "garbage", BytesPerSecond: 0, PacketsPerSecond: 3},
	}, pts)

	b, p := LastRates(TrafficOverTime{})
	assert.Zero(t, b)
	assert.Zero(t, p)
}

func TestMergeDistribution(t *testing.T) {
	prev := DefaultThreatSlices()
	prev[0].Value = 99 // stale value must reset

	got := MergeDistribution(prev, []ThreatCount{
		{Type: "WMI 공격", Count: 3},
		{Type: "새로운 공격", Count: 8},
	})
	require.Len(t, got, len(DefaultThreatTypes)+1)
	assert.Equal(t, ThreatSlice{Name: "새로운 공격", Value: 8}, got[0])
	assert.Equal(t, ThreatSlice{Name: "WMI 공격", Value: 3}, got[1])
	for _, s := range got[2:] {
		assert.Zero(t, s.Value, s.Name)
	}
	assert.Equal(t, "새로운 공격", MostFrequentThreat(got))
	assert.Equal(t, 2, DetectedThreatTypes(got))

	assert.Equal(t, "-", MostFrequentThreat(DefaultThreatSlices()))
	assert.Equal(t, 0, DetectedThreatTypes(nil))
}

func TestLogBuckets(t *testing.T) {
	now := time.Date(2025, 3, 9, 10, 37, 0, 0, time.UTC)
	got := LogBuckets(now, 4)
	// 10:37 minus 50..0 minutes: 09:47, 09:57, 10:07, 10:17, 10:27, 10:37.
	want := []LogBucket{
		{"09:40", 4}, {"09:50", 4}, {"10:00", 4}, {"10:10", 4}, {"10:20", 4}, {"10:30", 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}
}

// ── client ─────────────────────────────────────────────────────────────────

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("", 0)
	assert.False(t, c.Configured())
	_, err := c.LogStats(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_StatusError(t *testing.T) {
	fake := newFakeDashboard()
	fake.fail[PathLogStats] = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := NewClient(srv.URL+"/", time.Second).LogStats(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
}

func TestClient_SingleFlight(t *testing.T) {
	fake := newFakeDashboard()
	fake.release = make(chan struct{})
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := NewClient(srv.URL, 5*time.Second)

	var wg sync.WaitGroup
	results := make([]LogStats, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.LogStats(context.Background())
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	require.Eventually(t, func() bool { return fake.inflight.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fake.release)
	wg.Wait()

	assert.Equal(t, 1, fake.hitCount(PathLogStats), "overlapping calls share one request")
	for _, r := range results {
		assert.Equal(t, 12, r.TotalThreats)
	}
}

// ── dashboard ──────────────────────────────────────────────────────────────

func TestDashboard_PollsFillSnapshot(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	d := NewDashboard(NewClient(srv.URL, time.Second), DashboardOptions{Location: time.UTC})
	require.NoError(t, d.Refresh(context.Background()))

	s := d.Snapshot()
	assert.Equal(t, ConnConnected, s.Traffic.Status)
	assert.Len(t, s.Traffic.History, 2)
	assert.Equal(t, 1536.0, s.Traffic.LastBytesPerSecond)
	assert.Equal(t, "1.5 KB", s.Traffic.LastBytesLabel)
	assert.Equal(t, 0.0, s.Traffic.LastPacketsPerSecond, "missing packet value defaults to zero")

	assert.Equal(t, ConnConnected, s.Threats.Status)
	assert.Equal(t, "WMI 공격", s.Threats.MostFrequent)
	assert.Equal(t, 2, s.Threats.DetectedTypes)
	assert.Equal(t, 12, s.Threats.TotalThreats)
	require.Len(t, s.Threats.Buckets, BucketCount)
	assert.Equal(t, 2, s.Threats.Buckets[0].Value)

	assert.Equal(t, ConnConnected, s.Logs.Status)
	assert.Equal(t, 321, s.Logs.Count24h)
	assert.Len(t, s.Logs.Entries, 1)

	assert.Contains(t, d.Briefing(), "total 12")
}

func TestDashboard_FailuresMarkDisconnected(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	d := NewDashboard(NewClient(srv.URL, time.Second), DashboardOptions{Location: time.UTC})
	require.NoError(t, d.Refresh(context.Background()))

	fake.mu.Lock()
	fake.fail[PathLogStats] = true
	fake.fail[PathTrafficOverTime] = true
	fake.mu.Unlock()

	assert.Error(t, d.PollLogStats(context.Background()))
	assert.NoError(t, d.PollTraffic(context.Background()), "stats still answer")

	s := d.Snapshot()
	assert.Equal(t, ConnDisconnected, s.Threats.Status)
	assert.Equal(t, 0, s.Threats.DetectedTypes)
	assert.Equal(t, "-", s.Threats.MostFrequent)
	assert.Equal(t, ConnConnected, s.Traffic.Status)
	assert.Empty(t, s.Traffic.History)
}

func TestDashboard_NotConfiguredIsDisconnected(t *testing.T) {
	d := NewDashboard(NewClient("", 0), DashboardOptions{})
	assert.ErrorIs(t, d.Refresh(context.Background()), ErrNotConfigured)
	s := d.Snapshot()
	assert.Equal(t, ConnDisconnected, s.Traffic.Status)
	assert.Equal(t, ConnDisconnected, s.Threats.Status)
	assert.Equal(t, ConnDisconnected, s.Logs.Status)
}

func TestDashboard_NewThreatsCallback(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var deltas []int
	d := NewDashboard(NewClient(srv.URL, time.Second), DashboardOptions{
		OnNewThreats: func(delta int, _ LogStats) { deltas = append(deltas, delta) },
	})
	ctx := context.Background()

	require.NoError(t, d.PollLogStats(ctx)) // baseline
	fake.setTotal(15)
	require.NoError(t, d.PollLogStats(ctx))
	fake.setTotal(15)
	require.NoError(t, d.PollLogStats(ctx))
	fake.setTotal(10)
	require.NoError(t, d.PollLogStats(ctx))

	assert.Equal(t, []int{3}, deltas)
}

func TestDashboard_StartStopsOnCancel(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	d := NewDashboard(NewClient(srv.URL, time.Second), DashboardOptions{
		TrafficInterval:  5 * time.Millisecond,
		LogsInterval:     5 * time.Millisecond,
		LogStatsInterval: 5 * time.Millisecond,
	})
	var updates atomic.Int32
	unsub := d.Subscribe(func(Snapshot) { updates.Add(1) })
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	d.Start(ctx)
	require.Eventually(t, func() bool { return fake.hitCount(PathTrafficOverTime) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()
	assert.Greater(t, updates.Load(), int32(3))
}

// ── poller ─────────────────────────────────────────────────────────────────

func TestPoller_NeverOverlaps(t *testing.T) {
	var running, maxRunning, calls atomic.Int32
	p := &Poller{
		Name:     "slow",
		Interval: time.Millisecond,
		Fetch: func(ctx context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			if n > maxRunning.Load() {
				maxRunning.Store(n)
			}
			calls.Add(1)
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Millisecond):
			}
			return nil
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

// ── synthetic ──────────────────────────────────────────────────────────────

func TestSyntheticFeed(t *testing.T) {
	f := NewSyntheticFeed(0, rand.New(rand.NewPCG(1, 2)))
	cards := f.Cards()
	require.Len(t, cards, len(TrafficCards))
	for _, c := range cards {
		require.Len(t, c.Points, SyntheticPoints)
		assert.Equal(t, "0s", c.Points[0].Label)
		assert.Equal(t, "55s", c.Points[11].Label)
		for _, p := range c.Points {
			assert.GreaterOrEqual(t, p.Value, 0)
			assert.Less(t, p.Value, 1000)
		}
	}

	next := f.Advance()
	for i := range next {
		assert.Equal(t, cards[i].Points[1].Value, next[i].Points[0].Value, "window slides by one")
		assert.Equal(t, next[i].Points[SyntheticPoints-1].Value, next[i].Last)
		assert.Equal(t, cards[i].Points[0].Label, next[i].Points[0].Label, "labels stay fixed")
	}
}

func TestSyntheticFeed_RunStopsOnCancel(t *testing.T) {
	f := NewSyntheticFeed(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var emits int
	err := f.Run(ctx, time.Millisecond, func(cards []Card) error {
		emits++
		if emits == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, emits, 3)
}
