package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"secops-console/internal/app"

	"go.uber.org/zap"
)

type errorResponse struct {
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type validationDetail struct {
	Msg string `json:"msg"`
}

type validationResponse struct {
	Detail    []validationDetail `json:"detail"`
	RequestID string             `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeJSONStatus(w, status, errorResponse{
		Detail:    message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var kindStatus = map[app.ErrorKind]struct {
	status int
	code   string
}{
	app.KindBadRequest:   {http.StatusBadRequest, "BAD_REQUEST"},
	app.KindUnauthorized: {http.StatusUnauthorized, "UNAUTHORIZED"},
	app.KindForbidden:    {http.StatusForbidden, "FORBIDDEN"},
	app.KindConflict:     {http.StatusConflict, "CONFLICT"},
	app.KindNotFound:     {http.StatusNotFound, "NOT_FOUND"},
}

// writeAppError maps an account service error onto its HTTP status. Field validation
// failures are reported as a 422 list of messages; anything unclassified is a 500.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *app.ValidationError
	if errors.As(err, &valErr) {
		resp := validationResponse{RequestID: requestIDFromContext(r.Context())}
		for _, m := range valErr.Messages {
			resp.Detail = append(resp.Detail, validationDetail{Msg: m})
		}
		writeJSONStatus(w, http.StatusUnprocessableEntity, resp)
		return
	}
	var appErr *app.Error
	if errors.As(err, &appErr) {
		if ks, ok := kindStatus[appErr.Kind]; ok {
			if appErr.Kind == app.KindUnauthorized {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			writeError(w, r, appErr.Detail, ks.code, ks.status)
			return
		}
	}
	h.internalError(w, r, err)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed",
		zap.String("path", r.URL.Path), zap.String("request_id", requestIDFromContext(r.Context())), zap.Error(err))
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
