// Package chat implements the notification/chat side panel of a console session: the
// alert feed, an append-only assistant chat log with delayed replies, and the two-step
// clear-history exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"secops-console/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default choreography delays.
const (
	DefaultReplyDelay = 500 * time.Millisecond
	defaultPurgeEvery = 5 * time.Minute
)

// DefaultSeedDelays are the delays, after a confirmed clear, at which the openers reappear.
var DefaultSeedDelays = []time.Duration{1000 * time.Millisecond, 1500 * time.Millisecond}

var (
	ErrEmptyMessage = errors.New("message text is required")
	ErrTokenInvalid = errors.New("token not found or expired")
	ErrClosed       = errors.New("chat panel is closed")
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat log entry.
type Message struct {
	ID   string    `json:"id"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// openers seed an empty log.
var openers = []string{
	"안녕하세요! 보안 관제 어시스턴트입니다.",
	"탐지된 위협이나 모니터링 지표에 대해 물어보세요.",
}

// Responder produces the assistant's reply to a user message.
type Responder interface {
	Reply(ctx context.Context, history []Message, text string) (string, error)
}

// CannedResponder acknowledges every message without calling out.
type CannedResponder struct{}

func (CannedResponder) Reply(_ context.Context, _ []Message, text string) (string, error) {
	return fmt.Sprintf("요청하신 내용을 확인했습니다: %q", text), nil
}

// EventKind classifies a panel change.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventCleared EventKind = "cleared"
)

// Event is delivered to Subscribe listeners after each log change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message *Message  `json:"message,omitempty"`
}

// Options configures a Panel. Zero values select the defaults.
type Options struct {
	Responder    Responder
	ReplyDelay   time.Duration
	SeedDelays   []time.Duration
	PendingTTL   time.Duration
	ReplyTimeout time.Duration
	Log          *zap.Logger
	Now          func() time.Time
}

// Panel is one session's chat panel. All timers it starts are bound to its lifetime and
// stopped by Close.
type Panel struct {
	log          *state.Store[[]Message]
	feed         *notificationFeed
	pending      *pendingStore
	responder    Responder
	replyDelay   time.Duration
	seedDelays   []time.Duration
	replyTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	// generation advances on every confirmed clear; replies scheduled before it are dropped.
	mu         sync.Mutex
	generation uint64
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPanel builds a panel with the openers and the seeded alert feed.
func NewPanel(opts Options) *Panel {
	if opts.Responder == nil {
		opts.Responder = CannedResponder{}
	}
	if opts.ReplyDelay <= 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	if len(opts.SeedDelays) == 0 {
		opts.SeedDelays = DefaultSeedDelays
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = PendingTTL
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Panel{
		feed:         newNotificationFeed(opts.Now()),
		pending:      newPendingStore(opts.PendingTTL),
		responder:    opts.Responder,
		replyDelay:   opts.ReplyDelay,
		seedDelays:   opts.SeedDelays,
		replyTimeout: opts.ReplyTimeout,
		logger:       opts.Log,
		now:          opts.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	p.pending.now = opts.Now

	seed := make([]Message, 0, len(openers))
	for _, text := range openers {
		seed = append(seed, p.newMessage(RoleAssistant, text))
	}
	p.log = state.NewStore(seed)
	p.pending.startPurge(ctx, &p.wg, defaultPurgeEvery)
	return p
}

func (p *Panel) newMessage(role Role, text string) Message {
	return Message{ID: uuid.NewString(), Role: role, Text: text, At: p.now()}
}

// Messages returns a copy of the chat log.
func (p *Panel) Messages() []Message {
	cur := p.log.Get()
	out := make([]Message, len(cur))
	copy(out, cur)
	return out
}

// Subscribe registers fn for log changes and returns its unsubscribe func.
func (p *Panel) Subscribe(fn func(Event)) func() {
	return p.log.Subscribe(func(next, prev []Message) {
		if len(next) < len(prev) {
			fn(Event{Kind: EventCleared})
			prev = nil
		}
		for i := len(prev); i < len(next); i++ {
			m := next[i]
			fn(Event{Kind: EventMessage, Message: &m})
		}
	})
}

// Feed returns the notification feed.
func (p *Panel) Feed() Feed { return p.feed.snapshot() }

// Notify appends an alert to the feed.
func (p *Panel) Notify(icon, text string) Notification {
	n := Notification{ID: uuid.NewString(), Icon: icon, Text: text, At: p.now()}
	p.feed.add(n)
	return n
}

// SetSummary replaces the feed's summary line.
func (p *Panel) SetSummary(s string) { p.feed.setSummary(s) }

func (p *Panel) appendMessage(m Message) {
	p.log.Set(func(cur []Message) []Message {
		next := make([]Message, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, m)
	})
}

// Send appends a user message and schedules the assistant's reply after the reply delay.
func (p *Panel) Send(text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Message{}, ErrClosed
	}
	gen := p.generation
	p.mu.Unlock()

	msg := p.newMessage(RoleUser, text)
	history := p.Messages()
	p.appendMessage(msg)

	p.after(p.replyDelay, func() {
		ctx, cancel := context.WithTimeout(p.ctx, p.replyTimeout)
		defer cancel()
		reply, err := p.responder.Reply(ctx, history, text)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn("chat reply failed", zap.Error(err))
			reply = "응답을 생성하지 못했습니다. 잠시 후 다시 시도해 주세요."
		}
		p.appendIfCurrent(gen, p.newMessage(RoleAssistant, reply))
	})
	return msg, nil
}

func (p *Panel) appendIfCurrent(gen uint64, m Message) {
	p.mu.Lock()
	stale := p.closed || p.generation != gen
	p.mu.Unlock()
	if stale {
		return
	}
	p.appendMessage(m)
}

// RequestClear starts the clear-history exchange and returns the confirmation token.
func (p *Panel) RequestClear() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	token := uuid.NewString()
	p.pending.put(token, pendingClear{Generation: p.generation, CreatedAt: p.now()})
	return token, nil
}

// ResolveClear completes the exchange for token. On confirm the log is wiped and the
// openers are re-seeded after the seed delays; on cancel nothing changes. The token is
// consumed either way.
func (p *Panel) ResolveClear(token string, confirm bool) error {
	if _, ok := p.pending.take(token); !ok {
		return ErrTokenInvalid
	}
	if !confirm {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.generation++
	gen := p.generation
	p.mu.Unlock()

	p.log.Set(func([]Message) []Message { return []Message{} })
	for i, d := range p.seedDelays {
		if i >= len(openers) {
			break
		}
		text := openers[i]
		p.after(d, func() { p.appendIfCurrent(gen, p.newMessage(RoleAssistant, text)) })
	}
	return nil
}

// after runs fn once d has elapsed, unless the panel closes first.
func (p *Panel) after(d time.Duration, fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-p.ctx.Done():
		case <-t.C:
			fn()
		}
	}()
}

// Close cancels every pending timer and waits for them to exit.
func (p *Panel) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
