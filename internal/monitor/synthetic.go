package monitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Synthetic card defaults.
const (
	SyntheticPoints   = 12
	SyntheticInterval = 2 * time.Second
	syntheticMax      = 1000
	syntheticStep     = 5 * time.Second
)

// Point is one synthetic sample.
type Point struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Card is a synthetic indicator card: a title, a unit, and a fixed-size window of points.
type Card struct {
	Title  string  `json:"title"`
	Unit   string  `json:"unit"`
	Points []Point `json:"points"`
	Last   int     `json:"last"`
}

// TrafficCards are the indicator cards of the network traffic page.
var TrafficCards = []struct{ Title, Unit string }{
	{"Flow Byts/s (초당 트래픽)", "Gbps"},
	{"Flow Pkts/s (초당 패킷 수)", "Pkts/s"},
	{"Top Dst Port (목적지 포트)", ""},
	{"RST Flag Cnt (연결 초기화)", "개"},
}

// SyntheticFeed generates random series for pages that have no backend. Each Advance
// drops the oldest value of every card and appends a new one; labels stay fixed.
type SyntheticFeed struct {
	mu    sync.Mutex
	rng   *rand.Rand
	cards []Card
}

// NewSyntheticFeed seeds a feed with the traffic cards, each holding points values.
func NewSyntheticFeed(points int, rng *rand.Rand) *SyntheticFeed {
	if points <= 0 {
		points = SyntheticPoints
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	f := &SyntheticFeed{rng: rng}
	for _, tc := range TrafficCards {
		c := Card{Title: tc.Title, Unit: tc.Unit, Points: make([]Point, points)}
		for i := range c.Points {
			c.Points[i] = Point{
				Label: fmt.Sprintf("%ds", int(time.Duration(i)*syntheticStep/time.Second)),
				Value: rng.IntN(syntheticMax),
			}
		}
		c.Last = c.Points[points-1].Value
		f.cards = append(f.cards, c)
	}
	return f
}

// Cards returns a deep copy of the current cards.
func (f *SyntheticFeed) Cards() []Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyLocked()
}

func (f *SyntheticFeed) copyLocked() []Card {
	out := make([]Card, len(f.cards))
	for i, c := range f.cards {
		c.Points = append([]Point(nil), c.Points...)
		out[i] = c
	}
	return out
}

// Advance slides every card's window by one fresh value and returns the new cards.
func (f *SyntheticFeed) Advance() []Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cards {
		pts := f.cards[i].Points
		for j := 0; j < len(pts)-1; j++ {
			pts[j].Value = pts[j+1].Value
		}
		pts[len(pts)-1].Value = f.rng.IntN(syntheticMax)
		f.cards[i].Last = pts[len(pts)-1].Value
	}
	return f.copyLocked()
}

// Run emits the current cards, then advances and emits every interval until ctx is done
// or emit fails.
func (f *SyntheticFeed) Run(ctx context.Context, interval time.Duration, emit func([]Card) error) error {
	if interval <= 0 {
		interval = SyntheticInterval
	}
	if err := emit(f.Cards()); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := emit(f.Advance()); err != nil {
				return err
			}
		}
	}
}
