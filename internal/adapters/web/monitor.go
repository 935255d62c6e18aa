package web

import (
	"context"
	"net/http"
	"time"

	"secops-console/internal/monitor"

	"go.uber.org/zap"
)

const refreshTimeout = 10 * time.Second

// monitorSnapshot handles GET /api/monitor/snapshot.
func (h *Handler) monitorSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.dashboard.Snapshot())
}

// monitorRefresh handles POST /api/monitor/refresh. Upstream failures are reflected in
// the panels' connection status, not in the response code.
func (h *Handler) monitorRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	if err := h.dashboard.Refresh(ctx); err != nil {
		h.log.Warn("dashboard refresh incomplete", zap.Error(err))
	}
	writeJSON(w, h.dashboard.Snapshot())
}

// monitorStream handles GET /api/monitor/stream: the current snapshot, then one
// "snapshot" event per poll.
func (h *Handler) monitorStream(w http.ResponseWriter, r *http.Request) {
	f, ok := startSSE(w, r)
	if !ok {
		return
	}
	updates := make(chan monitor.Snapshot, 1)
	unsub := h.dashboard.Subscribe(func(s monitor.Snapshot) {
		// Keep only the newest snapshot for a slow reader.
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer unsub()

	if err := sendSSE(w, f, "snapshot", h.dashboard.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-updates:
			if err := sendSSE(w, f, "snapshot", s); err != nil {
				return
			}
		}
	}
}

// cardsStream handles GET /api/monitor/cards: synthetic indicator cards for the traffic
// page, regenerated on every tick for as long as the page is open.
func (h *Handler) cardsStream(w http.ResponseWriter, r *http.Request) {
	f, ok := startSSE(w, r)
	if !ok {
		return
	}
	feed := monitor.NewSyntheticFeed(monitor.SyntheticPoints, nil)
	_ = feed.Run(r.Context(), h.cardInterval, func(cards []monitor.Card) error {
		return sendSSE(w, f, "cards", cards)
	})
}

// clockStream handles GET /api/monitor/clock: the top-bar clock, once a second.
func (h *Handler) clockStream(w http.ResponseWriter, r *http.Request) {
	f, ok := startSSE(w, r)
	if !ok {
		return
	}
	_ = h.clock.Run(r.Context(), func(now string) error {
		return sendSSE(w, f, "clock", now)
	})
}
