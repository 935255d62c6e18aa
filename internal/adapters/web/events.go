package web

import (
	"net/http"
	"net/url"
	"time"

	"secops-console/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Websocket timing.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 512
	wsBuffer     = 64
)

// sameOriginOr accepts websocket upgrades from the serving host or any configured origin.
func sameOriginOr(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// sessionEvents handles GET /api/session/events. It upgrades to a websocket and pushes
// every state, favorites, toast and chat event of the tab until either side closes.
// The client sends nothing but control frames.
func (h *Handler) sessionEvents(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	log := h.log.With(zap.String("tab_id", s.TabID))
	log.Debug("event stream connected")

	events := make(chan session.Event, wsBuffer)
	unsub := s.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
			log.Warn("event stream lagging, dropping event", zap.String("type", string(ev.Type)))
		}
	})
	defer unsub()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(wsReadLimit)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return ws.WriteJSON(v)
	}
	if err := send(session.Event{Type: session.EventState, Data: s.App.Get()}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Debug("event stream disconnected")
			return
		case ev := <-events:
			if err := send(ev); err != nil {
				log.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
