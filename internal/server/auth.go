package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const tokenCookieName = "lf_token"

func (s *Server) validToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}

// authMiddleware accepts the dashboard token as a ?token= query parameter,
// which it trades for a cookie, or as that cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if queryToken := r.URL.Query().Get("token"); queryToken != "" {
			if !s.validToken(queryToken) {
				s.logger.Debug("rejected dashboard token", zap.String("path", r.URL.Path))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     tokenCookieName,
				Value:    s.token,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(24 * time.Hour / time.Second),
				SameSite: http.SameSiteLaxMode,
			})

			// Redirect to same path without token param
			newURL := *r.URL
			q := newURL.Query()
			q.Del("token")
			newURL.RawQuery = q.Encode()
			http.Redirect(w, r, newURL.String(), http.StatusFound)
			return
		}

		cookie, err := r.Cookie(tokenCookieName)
		if err != nil || !s.validToken(cookie.Value) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
