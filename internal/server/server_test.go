package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moodle-assistant/internal/auth"
	"moodle-assistant/internal/chat"
	"moodle-assistant/internal/history"
	"moodle-assistant/internal/moodle"
	"moodle-assistant/internal/storage"
)

type fakeMoodle struct{}

func (fakeMoodle) Authenticate(_ context.Context, username, password string) (*moodle.AuthResult, error) {
	if password != "secret" {
		return nil, &moodle.APIError{Function: "login", ErrorCode: "invalidlogin", Message: "Invalid login"}
	}
	return &moodle.AuthResult{Token: "user-token", User: moodle.UserInfo{ID: 7, Username: username, Fullname: "Prof"}}, nil
}

func (fakeMoodle) UserCourses(context.Context, string, int64) ([]moodle.Course, error) {
	return []moodle.Course{{ID: 3, ShortName: "MAT", FullName: "Matemática"}}, nil
}

func (fakeMoodle) CourseContents(_ context.Context, _ string, courseID int64) ([]moodle.Section, error) {
	if courseID == 500 {
		return nil, errors.New("moodle down")
	}
	return []moodle.Section{{ID: 1, Name: "Geral", Modules: []moodle.Module{}}}, nil
}

type fakeAsker struct {
	got []chat.Question
	err error
}

func (f *fakeAsker) Ask(_ context.Context, q chat.Question) (string, error) {
	f.got = append(f.got, q)
	if f.err != nil {
		return "", f.err
	}
	return "resposta", nil
}

type fixture struct {
	srv     *WebServer
	asker   *fakeAsker
	history *history.Manager
	cookie  *http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sessions, err := auth.NewWithRepo(nil, time.Hour)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	public := t.TempDir()
	if err := os.WriteFile(filepath.Join(public, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	h, err := history.NewManager(st, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	asker := &fakeAsker{}
	return &fixture{
		srv:     NewWebServer(Options{PublicDir: public}, fakeMoodle{}, asker, h, sessions),
		asker:   asker,
		history: h,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.cookie != nil {
		req.AddCookie(f.cookie)
	}
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/login", `{"username":"prof","password":"secret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			f.cookie = c
		}
	}
	if f.cookie == nil {
		t.Fatalf("no session cookie set")
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestLoginAndSessionStatus(t *testing.T) {
	f := newFixture(t)

	if got := decode(t, f.do(t, http.MethodGet, "/api/session-status", "")); got["loggedIn"] != false {
		t.Fatalf("want logged out, got %v", got)
	}
	if rr := f.do(t, http.MethodPost, "/api/login", `{"username":"prof"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing password: want 400, got %d", rr.Code)
	}
	rr := f.do(t, http.MethodPost, "/api/login", `{"username":"prof","password":"nope"}`)
	if rr.Code != http.StatusUnauthorized || decode(t, rr)["error"] != "Invalid login" {
		t.Fatalf("bad credentials: %d %s", rr.Code, rr.Body.String())
	}

	f.login(t)
	if got := decode(t, f.do(t, http.MethodGet, "/api/session-status", "")); got["loggedIn"] != true {
		t.Fatalf("want logged in, got %v", got)
	}

	if rr := f.do(t, http.MethodPost, "/api/logout", ""); rr.Code != http.StatusOK {
		t.Fatalf("logout: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/my-courses", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("after logout: want 401, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/my-courses"},
		{http.MethodGet, "/api/course-summary/3"},
		{http.MethodPost, "/api/agent/chat"},
		{http.MethodGet, "/api/history/3"},
	} {
		if rr := f.do(t, tc.method, tc.path, ""); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: want 401, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestCourseRoutes(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	if rr := f.do(t, http.MethodGet, "/api/my-courses", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Matemática") {
		t.Fatalf("my-courses: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodGet, "/api/course-summary/abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid id: want 400, got %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/course-summary/3", ""); rr.Code != http.StatusOK {
		t.Fatalf("course-summary: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/course-summary/500", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("moodle failure: want 500, got %d", rr.Code)
	}
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	if rr := f.do(t, http.MethodPost, "/api/agent/chat", `{"question":"Q","courseName":"MAT"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing course id: want 400, got %d", rr.Code)
	}

	rr := f.do(t, http.MethodPost, "/api/agent/chat", `{"question":"Q","courseId":"3","courseName":"MAT"}`)
	if rr.Code != http.StatusOK || decode(t, rr)["answer"] != "resposta" {
		t.Fatalf("chat: %d %s", rr.Code, rr.Body.String())
	}
	got := f.asker.got[0]
	if got.UserID != 7 || got.UserToken != "user-token" || got.CourseID != 3 || got.Text != "Q" {
		t.Fatalf("unexpected question: %+v", got)
	}

	f.asker.err = errors.New("agent down")
	rr = f.do(t, http.MethodPost, "/api/agent/chat", `{"question":"Q","courseId":3,"courseName":"MAT"}`)
	if rr.Code != http.StatusInternalServerError || decode(t, rr)["error"] != chat.GenericFailureMessage {
		t.Fatalf("agent failure: %d %s", rr.Code, rr.Body.String())
	}
}

func TestHistoryRoute(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rr := f.do(t, http.MethodGet, "/api/history/3?format=text", "")
	if rr.Code != http.StatusOK || rr.Body.String() != history.NoHistoryText {
		t.Fatalf("empty digest: %d %q", rr.Code, rr.Body.String())
	}

	key := storage.Key{UserID: 7, CourseID: 3}
	if err := f.history.AppendInteraction(context.Background(), key, "Q1", "A1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	rr = f.do(t, http.MethodGet, "/api/history/3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("history: %d", rr.Code)
	}
	entries, ok := decode(t, rr)["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("unexpected entries: %s", rr.Body.String())
	}
}

func TestStaticFallback(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/cursos/3", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "app") {
		t.Fatalf("spa fallback: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodGet, "/api/unknown", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown api route: want 404, got %d", rr.Code)
	}
}

func TestFlexibleID(t *testing.T) {
	var req chatRequest
	for _, body := range []string{`{"courseId":12}`, `{"courseId":"12"}`} {
		if err := json.Unmarshal([]byte(body), &req); err != nil || req.CourseID != 12 {
			t.Fatalf("%s: %v %d", body, err, req.CourseID)
		}
	}
	if err := json.Unmarshal([]byte(`{"courseId":"abc"}`), &req); err == nil {
		t.Fatalf("non-numeric id must fail")
	}
}
