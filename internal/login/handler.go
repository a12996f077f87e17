package login

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// maxFormBytes bounds login form bodies.
const maxFormBytes = 64 << 10

// LoginPage is where failures are reported with an error query parameter.
const LoginPage = "/login"

// Handler exposes the login endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the login routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/csrf", h.CSRF)
	mux.HandleFunc("GET /api/v1/login/options", h.Options)
	mux.HandleFunc("POST /api/v1/login/start", h.StartSSO)
	mux.HandleFunc("GET /api/v1/login/return/{provider}", h.SSOReturn)
	mux.HandleFunc("POST /api/v1/login", h.LocalLogin)
	mux.HandleFunc("POST /api/v1/logout", h.Logout)
}

func (h *Handler) client(r *http.Request) Client {
	c := Client{RemoteAddr: r.RemoteAddr}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		c.RemoteAddr = host
	}
	if ck, err := r.Cookie(h.svc.Sessions.CookieName()); err == nil {
		c.SessionID = ck.Value
	}
	return c
}

// CSRFResponse carries a token for the next state changing request.
type CSRFResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) CSRF(w http.ResponseWriter, r *http.Request) {
	token, exp, err := h.svc.IssueCSRF(r.Context(), h.client(r))
	if err != nil {
		h.logger.Errorw("issue csrf token failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	h.writeJSON(w, http.StatusOK, CSRFResponse{Token: token, ExpiresAt: exp})
}

func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Options())
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Debugw("invalid login form", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *Handler) StartSSO(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	out, err := h.svc.StartSSO(r.Context(), h.client(r),
		r.PostFormValue("sso_type"), r.PostFormValue("csrf"), r.PostFormValue("return_url"))
	h.finish(w, r, out, err)
}

func (h *Handler) SSOReturn(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.HandleReturn(r.Context(), h.client(r), r.PathValue("provider"), r.URL.Query())
	h.finish(w, r, out, err)
}

func (h *Handler) LocalLogin(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	out, err := h.svc.LocalLogin(r.Context(), h.client(r),
		r.PostFormValue("email"), r.PostFormValue("password"),
		r.PostFormValue("csrf"), r.PostFormValue("return_url"))
	h.finish(w, r, out, err)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	out, err := h.svc.Logout(r.Context(), h.client(r), r.PostFormValue("csrf"))
	h.finish(w, r, out, err)
}

// finish writes the redirect for out, or reports err.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, out *Outcome, err error) {
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			http.Redirect(w, r, FailureRedirect(f.Message), http.StatusFound)
			return
		}
		h.logger.Errorw("login request failed", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if out.Cookie != nil {
		http.SetCookie(w, out.Cookie)
	}
	if out.ClearCookie {
		http.SetCookie(w, h.svc.Sessions.ClearCookie())
	}
	http.Redirect(w, r, out.Redirect, http.StatusFound)
}

// FailureRedirect is the login page url reporting msg.
func FailureRedirect(msg string) string {
	return LoginPage + "?" + url.Values{"error": {msg}}.Encode()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
