package server

import (
	"errors"
	"net/http"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/auth"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
)

// AdminCookie carries the session token.
const AdminCookie = "admin_auth"

// LoginRequest represents the login request body
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginHandler checks the admin password and opens a cookie session.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	session, err := h.auth.Login(r.Context(), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			logger.Warn("[Login] 密码验证失败", logger.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": err.Error()})
			return
		}
		logger.Error("[Login] 创建会话失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Server error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	logger.Info("[Login] 登录成功", logger.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// LogoutHandler revokes the session and clears the cookie.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(AdminCookie); err == nil {
		if err := h.auth.Logout(r.Context(), c.Value); err != nil {
			logger.Warn("failed to revoke session", logger.ErrorField(err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// VerifyHandler reports whether the caller holds a live session.
func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	ok, err := h.authenticated(r)
	if err != nil {
		logger.Error("session lookup failed", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": ok})
}

func (h *APIHandler) authenticated(r *http.Request) (bool, error) {
	c, err := r.Cookie(AdminCookie)
	if err != nil {
		return false, nil
	}
	return h.auth.Verify(r.Context(), c.Value)
}

// AdminMiddleware rejects requests without a live admin session.
func (h *APIHandler) AdminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := h.authenticated(r)
		if err != nil {
			writeError(w, r, "verify session", err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	}
}
