package web

import (
	"context"
	"net/http"
	"strings"

	"secops-console/internal/app"
	"secops-console/internal/auth"
)

type empKey struct{}

// empFromContext returns the employee number RequireAuth resolved, or "".
func empFromContext(ctx context.Context) string {
	v, _ := ctx.Value(empKey{}).(string)
	return v
}

const msgCredentialsFailed = "Could not validate credentials"

// RequireAuth validates the Authorization bearer token and injects its subject into
// the request context. Returns 401 if the token is absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			unauthorized(w, r)
			return
		}
		emp, err := h.tokens.Subject(raw)
		if err != nil {
			unauthorized(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), empKey{}, emp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, msgCredentialsFailed, "UNAUTHORIZED", http.StatusUnauthorized)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// signup handles POST /auth/signup.
func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req app.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, user)
}

// login handles POST /auth/login and returns a bearer token.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req app.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.AuthenticateUser(r.Context(), req)
	if err != nil {
		h.metrics.LoginAttempt("rejected")
		h.writeAppError(w, r, err)
		return
	}
	signed, err := h.tokens.Issue(user.EmpNumber)
	if err != nil {
		h.metrics.LoginAttempt("error")
		h.internalError(w, r, err)
		return
	}
	h.metrics.LoginAttempt("ok")
	writeJSON(w, tokenResponse{AccessToken: signed, TokenType: auth.TokenType})
}

// mypage handles GET /auth/mypage.
func (h *Handler) mypage(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetProfile(r.Context(), empFromContext(r.Context()))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, user)
}

// changePassword handles PUT /auth/change-password.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req app.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.ChangePassword(r.Context(), empFromContext(r.Context()), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, user)
}

// verifyPassword handles POST /auth/verify-password, which gates the profile page.
func (h *Handler) verifyPassword(w http.ResponseWriter, r *http.Request) {
	var req app.PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.VerifyPassword(r.Context(), empFromContext(r.Context()), req.Password); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, messageResponse{Message: "비밀번호 확인 성공"})
}

// logout handles POST /auth/logout. Tokens are stateless; the client discards its copy.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// withdraw handles DELETE /auth/withdrawal.
func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req app.PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Withdraw(r.Context(), empFromContext(r.Context()), req.Password); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
