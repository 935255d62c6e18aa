package monitor

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryWindow is the number of traffic points kept for the main-page chart.
const HistoryWindow = 9

// TrafficPoint is one chart sample.
type TrafficPoint struct {
	Time             string  `json:"time"`
	BytesPerSecond   float64 `json:"bytes_per_second"`
	PacketsPerSecond float64 `json:"packets_per_second"`
}

// TrafficPoints converts the parallel-array series into chart points labelled HH:MM:SS
// in loc. Missing values default to zero; unparseable timestamps keep their raw text.
func TrafficPoints(o TrafficOverTime, loc *time.Location) []TrafficPoint {
	if loc == nil {
		loc = time.Local
	}
	out := make([]TrafficPoint, 0, len(o.Timestamps))
	for i, ts := range o.Timestamps {
		label := ts
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			label = t.In(loc).Format("15:04:05")
		}
		out = append(out, TrafficPoint{
			Time:             label,
			BytesPerSecond:   at(o.BytesPerSecond, i),
			PacketsPerSecond: at(o.PacketsPerSecond, i),
		})
	}
	return out
}

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

// AppendHistory appends next to prev and keeps the last window points.
func AppendHistory(prev, next []TrafficPoint, window int) []TrafficPoint {
	combined := make([]TrafficPoint, 0, len(prev)+len(next))
	combined = append(combined, prev...)
	combined = append(combined, next...)
	if len(combined) > window {
		combined = combined[len(combined)-window:]
	}
	return combined
}

// LastRates returns the most recent bytes/s and packets/s of the series, or zeros.
func LastRates(o TrafficOverTime) (bytes, packets float64) {
	last := len(o.Timestamps) - 1
	if last < 0 {
		return 0, 0
	}
	return at(o.BytesPerSecond, last), at(o.PacketsPerSecond, last)
}

// ThreatSlice is one pie-chart slice.
type ThreatSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DefaultThreatTypes are the slices always shown, even at zero.
var DefaultThreatTypes = []string{
	"DCOM 공격",
	"DLL 하이재킹",
	"WMI 공격",
	"방어 회피",
	"원격 서비스 공격 (일반)",
	"원격 서비스 공격 (WinRM)",
	"원격 서비스 악용",
	"지속성 (계정 생성)",
	"스케줄 작업 공격",
}

// DefaultThreatSlices returns every default type at zero.
func DefaultThreatSlices() []ThreatSlice {
	out := make([]ThreatSlice, len(DefaultThreatTypes))
	for i, name := range DefaultThreatTypes {
		out[i] = ThreatSlice{Name: name}
	}
	return out
}

// MergeDistribution resets every known slice to zero, applies the counts in dist (adding
// types not seen before), and sorts by value descending. Ties keep their prior order.
func MergeDistribution(prev []ThreatSlice, dist []ThreatCount) []ThreatSlice {
	index := make(map[string]int, len(prev)+len(dist))
	out := make([]ThreatSlice, 0, len(prev)+len(dist))
	for _, s := range prev {
		if _, dup := index[s.Name]; dup {
			continue
		}
		index[s.Name] = len(out)
		out = append(out, ThreatSlice{Name: s.Name})
	}
	for _, d := range dist {
		if i, ok := index[d.Type]; ok {
			out[i].Value = d.Count
			continue
		}
		index[d.Type] = len(out)
		out = append(out, ThreatSlice{Name: d.Type, Value: d.Count})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// ZeroSlices returns slices with every value reset to zero.
func ZeroSlices(in []ThreatSlice) []ThreatSlice {
	out := make([]ThreatSlice, len(in))
	for i, s := range in {
		out[i] = ThreatSlice{Name: s.Name}
	}
	return out
}

// MostFrequentThreat names the largest slice, or "-" when nothing was detected.
func MostFrequentThreat(slices []ThreatSlice) string {
	best := -1
	for i, s := range slices {
		if s.Value > 0 && (best < 0 || s.Value > slices[best].Value) {
			best = i
		}
	}
	if best < 0 {
		return "-"
	}
	return slices[best].Name
}

// DetectedThreatTypes counts slices with a non-zero value.
func DetectedThreatTypes(slices []ThreatSlice) int {
	n := 0
	for _, s := range slices {
		if s.Value > 0 {
			n++
		}
	}
	return n
}

// LogBucket is one bar of the ten-minute log chart.
type LogBucket struct {
	Time  string `json:"time"`
	Value int    `json:"value"`
}

// BucketCount and BucketWidth shape the log chart: six ten-minute bars ending at now.
const (
	BucketCount = 6
	BucketWidth = 10 * time.Minute
)

// LogBuckets builds the bars ending at now, each labelled HH:MM with minutes floored to
// the bucket width and carrying value.
func LogBuckets(now time.Time, value int) []LogBucket {
	out := make([]LogBucket, BucketCount)
	for i := range out {
		t := now.Add(-time.Duration(BucketCount-1-i) * BucketWidth)
		out[i] = LogBucket{Time: bucketLabel(t), Value: value}
	}
	return out
}

func bucketLabel(t time.Time) string {
	m := (t.Minute() / 10) * 10
	return twoDigits(t.Hour()) + ":" + twoDigits(m)
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n in the largest binary unit, one decimal place: 1536 → "1.5 KB".
// Zero and negative inputs render as "0 B".
func FormatBytes(n float64) string {
	if n <= 0 || math.IsNaN(n) {
		return "0 B"
	}
	i := int(math.Floor(math.Log(n) / math.Log(1024)))
	if i < 0 {
		i = 0
	}
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	v := decimal.NewFromFloat(n).Div(decimal.NewFromInt(1024).Pow(decimal.NewFromInt(int64(i))))
	return v.StringFixed(1) + " " + byteUnits[i]
}
