package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"telegram-inbox/internal/infra/logger"
)

const (
	sessionCookieName = "inbox_session"
	sessionMaxAge     = 3600 // 1 час в секундах
)

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// authMiddleware: ?token= обменивается на cookie-сессию с редиректом на
// тот же путь без токена; дальше запросы проходят по cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" {
			sessionID, valid := s.auth.ValidateToken(token)
			if !valid {
				logger.Warn("Invalid auth token attempt", zap.String("remote", r.RemoteAddr))
				s.renderUnauthorized(w, r)
				return
			}
			s.setSessionCookie(w, sessionID)
			target := *r.URL
			q := target.Query()
			q.Del("token")
			target.RawQuery = q.Encode()
			http.Redirect(w, r, target.String(), http.StatusSeeOther)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !s.auth.ValidateSession(cookie.Value) {
			s.renderUnauthorized(w, r)
			return
		}
		s.setSessionCookie(w, cookie.Value)
		next.ServeHTTP(w, r)
	})
}

// renderUnauthorized: JSON для API, короткая страница для браузера.
func (s *Server) renderUnauthorized(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Unauthorized access: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
		writeJSON(w, http.StatusUnauthorized, apiError{Kind: "Unauthorized", Message: "dashboard session is missing or expired"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	writeResponse(w, []byte(unauthorizedPage))
}

// loggingMiddleware пишет метод, путь, статус и длительность запроса.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
