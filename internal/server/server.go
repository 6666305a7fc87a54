package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"moodle-assistant/internal/auth"
	"moodle-assistant/internal/chat"
	"moodle-assistant/internal/moodle"
	"moodle-assistant/internal/storage"
)

const sessionCookie = "moodle_assistant_sid"

type Moodle interface {
	Authenticate(ctx context.Context, username, password string) (*moodle.AuthResult, error)
	UserCourses(ctx context.Context, token string, userID int64) ([]moodle.Course, error)
	CourseContents(ctx context.Context, token string, courseID int64) ([]moodle.Section, error)
}

type Asker interface {
	Ask(ctx context.Context, q chat.Question) (string, error)
}

type HistoryReader interface {
	Log(ctx context.Context, key storage.Key) storage.Log
	LegacyDigest(ctx context.Context, key storage.Key, maxEntries int) string
}

type Options struct {
	Port          int
	PublicDir     string
	CookieSecure  bool
	DigestEntries int
}

// WebServer serves the JSON API and the single-page front end.
type WebServer struct {
	opts     Options
	moodle   Moodle
	chat     Asker
	history  HistoryReader
	sessions *auth.Service
	router   *mux.Router
	server   *http.Server
}

func NewWebServer(opts Options, m Moodle, asker Asker, h HistoryReader, sessions *auth.Service) *WebServer {
	if opts.DigestEntries <= 0 {
		opts.DigestEntries = 5
	}
	ws := &WebServer{
		opts:     opts,
		moodle:   m,
		chat:     asker,
		history:  h,
		sessions: sessions,
	}
	ws.router = ws.routes()
	return ws
}

func (ws *WebServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverPanics)

	r.HandleFunc("/api/health", ws.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/login", ws.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", ws.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/session-status", ws.handleSessionStatus).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(ws.requireAuth)
	api.HandleFunc("/my-courses", ws.handleMyCourses).Methods(http.MethodGet)
	api.HandleFunc("/course-summary/{courseid}", ws.handleCourseSummary).Methods(http.MethodGet)
	api.HandleFunc("/agent/chat", ws.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/history/{courseid}", ws.handleHistory).Methods(http.MethodGet)

	r.PathPrefix("/").HandlerFunc(ws.handleStatic).Methods(http.MethodGet)
	return r
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

func (ws *WebServer) Start() error {
	ws.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", ws.opts.Port),
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // agent calls may take up to a minute
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("🌐 Starting web server on http://localhost:%d", ws.opts.Port)
	return ws.server.ListenAndServe()
}

func (ws *WebServer) Stop() error {
	if ws.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ws.server.Shutdown(ctx)
}
