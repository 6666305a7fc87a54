package server

import (
	"context"
	"log"
	"net/http"
	"runtime/debug"

	"moodle-assistant/internal/auth"
)

type ctxKey struct{}

func sessionFrom(ctx context.Context) (auth.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(auth.Session)
	return s, ok
}

func (ws *WebServer) currentSession(r *http.Request) (auth.Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return auth.Session{}, false
	}
	s, err := ws.sessions.Get(c.Value)
	if err != nil {
		return auth.Session{}, false
	}
	return s, true
}

func (ws *WebServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := ws.currentSession(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Não autenticado. Por favor, faça login.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("💥 panic in %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeError(w, http.StatusInternalServerError, "Erro interno do servidor.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
