// Package monitor feeds the monitoring pages: a client for the dashboard REST endpoints,
// cancellable pollers, the chart transforms applied to their responses, and synthetic
// series for pages without a backend.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Dashboard endpoint paths, relative to the configured base URL.
const (
	PathTrafficStats    = "/api/dashboard/traffic/stats"
	PathTrafficOverTime = "/api/dashboard/traffic/traffic-over-time"
	PathLogStats        = "/api/dashboard/logs/stats"
	PathLogs            = "/api/dashboard/logs"
	PathLogCount24h     = "/api/dashboard/logs/count-24h"
)

// ErrNotConfigured is returned by every call when no base URL is set.
var ErrNotConfigured = errors.New("dashboard API URL is not configured")

// StatusError reports a non-2xx dashboard response.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dashboard %s: unexpected status %d", e.Path, e.Status)
}

// TrafficStats is the aggregate traffic counters. The dashboard's field set varies between
// deployments, so it is kept as a generic object.
type TrafficStats map[string]any

// TrafficOverTime is the parallel-array series from traffic-over-time.
type TrafficOverTime struct {
	Timestamps       []string  `json:"timestamps"`
	BytesPerSecond   []float64 `json:"bytes_per_second"`
	PacketsPerSecond []float64 `json:"packets_per_second"`
}

// ThreatCount is one entry of the threat distribution.
type ThreatCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// LogStats is the log-derived threat summary.
type LogStats struct {
	TotalThreats    int           `json:"total_threats"`
	TopThreatType   string        `json:"top_threat_type"`
	Distribution    []ThreatCount `json:"distribution"`
	ThreatTypeCount int           `json:"threat_type_count"`
}

// LogEntry is one row of the log feed.
type LogEntry struct {
	Time    string `json:"time"`
	Status  string `json:"status"`
	Result  string `json:"result"`
	IP      string `json:"ip"`
	Process string `json:"process"`
	Host    string `json:"host"`
}

type logCount struct {
	Count int `json:"count"`
}

// Client calls the dashboard API. Concurrent identical requests share one round trip.
type Client struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
}

// NewClient returns a client for baseURL. An empty baseURL yields a client whose calls all
// fail with ErrNotConfigured.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c.baseURL != "" }

func (c *Client) TrafficStats(ctx context.Context) (TrafficStats, error) {
	var out TrafficStats
	return out, c.get(ctx, PathTrafficStats, nil, &out)
}

func (c *Client) TrafficOverTime(ctx context.Context) (TrafficOverTime, error) {
	var out TrafficOverTime
	return out, c.get(ctx, PathTrafficOverTime, nil, &out)
}

func (c *Client) LogStats(ctx context.Context) (LogStats, error) {
	var out LogStats
	return out, c.get(ctx, PathLogStats, nil, &out)
}

// Logs returns the most recent log rows, at most limit when limit > 0.
func (c *Client) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []LogEntry
	return out, c.get(ctx, PathLogs, q, &out)
}

func (c *Client) LogCount24h(ctx context.Context) (int, error) {
	var out logCount
	err := c.get(ctx, PathLogCount24h, nil, &out)
	return out.Count, err
}

// get fetches path and decodes the JSON body into out. Calls for the same URL that overlap
// share a single request and its body.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	v, err, _ := c.group.Do(u, func() (any, error) {
		return c.fetch(ctx, path, u)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v.([]byte), out); err != nil {
		return fmt.Errorf("dashboard %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, path, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dashboard %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Path: path, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("dashboard %s: read body: %w", path, err)
	}
	return body, nil
}
