package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"secops-console/internal/chat"

	"go.uber.org/zap"
)

// sseKeepAlive is how often idle streams send a comment line.
const sseKeepAlive = 15 * time.Second

// sendSSE writes one SSE event and flushes. data is JSON-marshalled.
func sendSSE(w http.ResponseWriter, f http.Flusher, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// startSSE sets the stream headers. It reports false, after writing a 500, when the
// writer cannot flush.
func startSSE(w http.ResponseWriter, r *http.Request) (http.Flusher, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, "streaming not supported", "INTERNAL_ERROR", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return f, true
}

type chatHistoryResponse struct {
	Messages []chat.Message `json:"messages"`
}

// chatHistory handles GET /api/chat.
func (h *Handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, chatHistoryResponse{Messages: sessionFromContext(r.Context()).Chat.Messages()})
}

type chatMessageRequest struct {
	Text string `json:"text"`
}

// chatMessage handles POST /api/chat. The reply arrives later on the stream.
func (h *Handler) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := sessionFromContext(r.Context()).SendChat(req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	case errors.Is(err, chat.ErrClosed):
		writeError(w, r, err.Error(), "GONE", http.StatusGone)
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, m)
}

// chatStream handles GET /api/chat/stream. It sends the current log as "history", then
// every panel change as "message" or "cleared" until the client goes away.
func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	f, ok := startSSE(w, r)
	if !ok {
		return
	}

	events := make(chan chat.Event, 32)
	unsub := s.Chat.Subscribe(func(ev chat.Event) {
		select {
		case events <- ev:
		default:
			h.log.Warn("chat stream lagging, dropping event", zap.String("tab_id", s.TabID))
		}
	})
	defer unsub()

	if err := sendSSE(w, f, "history", s.Chat.Messages()); err != nil {
		return
	}
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := sendSSE(w, f, string(ev.Kind), ev); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			f.Flush()
		}
	}
}

type clearResponse struct {
	Token string `json:"token"`
}

// chatClear handles POST /api/chat/clear. It only opens the confirmation; nothing is
// removed until /api/chat/confirm.
func (h *Handler) chatClear(w http.ResponseWriter, r *http.Request) {
	token, err := sessionFromContext(r.Context()).Chat.RequestClear()
	if err != nil {
		writeError(w, r, err.Error(), "GONE", http.StatusGone)
		return
	}
	writeJSON(w, clearResponse{Token: token})
}

type chatConfirmRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"` // "confirm" or "cancel"
}

type chatConfirmResponse struct {
	Cleared bool `json:"cleared"`
}

// chatConfirm handles POST /api/chat/confirm.
func (h *Handler) chatConfirm(w http.ResponseWriter, r *http.Request) {
	var req chatConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action != "confirm" && req.Action != "cancel" {
		writeError(w, r, `action must be "confirm" or "cancel"`, "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	confirm := req.Action == "confirm"
	err := sessionFromContext(r.Context()).Chat.ResolveClear(req.Token, confirm)
	switch {
	case errors.Is(err, chat.ErrTokenInvalid):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
		return
	case err != nil:
		writeError(w, r, err.Error(), "GONE", http.StatusGone)
		return
	}
	writeJSON(w, chatConfirmResponse{Cleared: confirm})
}

// chatFeed handles GET /api/chat/feed.
func (h *Handler) chatFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sessionFromContext(r.Context()).Chat.Feed())
}
