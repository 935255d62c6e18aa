package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxNotifications bounds the feed; the oldest entries drop first.
const maxNotifications = 50

// Notification is one entry in the alert feed.
type Notification struct {
	ID   string    `json:"id"`
	Icon string    `json:"icon"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Feed is the notification panel's alert list plus its summary line.
type Feed struct {
	Items        []Notification `json:"items"`
	SummaryTitle string         `json:"summary_title"`
	Summary      string         `json:"summary"`
}

const (
	summaryTitle   = "LLM 요약본"
	defaultSummary = "특정 IP에서 비정상적 요청이 탐지되었습니다. 웹 서버 CPU 및 네트워크 모니터링을 권장합니다."
)

func seedNotifications(now time.Time) []Notification {
	return []Notification{
		{ID: uuid.NewString(), Icon: "🚨", Text: "트래픽 이상 감지 알림", At: now},
		{ID: uuid.NewString(), Icon: "🆕", Text: "New user registered", At: now},
		{ID: uuid.NewString(), Icon: "🐞", Text: "Bug detected", At: now},
	}
}

// notificationFeed is the mutable feed behind Panel.Feed.
type notificationFeed struct {
	mu      sync.Mutex
	items   []Notification
	summary string
}

func newNotificationFeed(now time.Time) *notificationFeed {
	return &notificationFeed{items: seedNotifications(now), summary: defaultSummary}
}

func (f *notificationFeed) add(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - maxNotifications; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

func (f *notificationFeed) setSummary(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = s
}

func (f *notificationFeed) snapshot() Feed {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]Notification, len(f.items))
	copy(items, f.items)
	return Feed{Items: items, SummaryTitle: summaryTitle, Summary: f.summary}
}
