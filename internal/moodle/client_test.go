package moodle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeMoodle answers web service calls by wsfunction name.
func fakeMoodle(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()
		switch r.URL.Path {
		case loginPath:
			if q.Get("username") == "prof" && q.Get("password") == "secret" && q.Get("service") == DefaultService {
				_, _ = w.Write([]byte(`{"token":"user-token"}`))
				return
			}
			_, _ = w.Write([]byte(`{"error":"Invalid login, please try again","errorcode":"invalidlogin"}`))
		case restPath:
			if q.Get("moodlewsrestformat") != "json" {
				t.Errorf("missing json format param")
			}
			body, ok := responses[q.Get("wsfunction")+"@"+q.Get("wstoken")]
			if !ok {
				body, ok = responses[q.Get("wsfunction")]
			}
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Authenticate(t *testing.T) {
	srv := fakeMoodle(t, map[string]string{
		"core_webservice_get_site_info@user-token": `{"userid":12,"username":"prof","fullname":"Ana Prof","userissiteadmin":true}`,
	})
	c := NewClient(Options{BaseURL: srv.URL + restPath, AdminToken: "admin"})

	res, err := c.Authenticate(context.Background(), "prof", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.Token != "user-token" || res.User.ID != 12 || res.User.Fullname != "Ana Prof" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.User.Roles) != 1 || res.User.Roles[0] != "admin" {
		t.Fatalf("want admin role, got %v", res.User.Roles)
	}

	_, err = c.Authenticate(context.Background(), "prof", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != "invalidlogin" {
		t.Fatalf("want invalidlogin APIError, got %v", err)
	}
}

func TestClient_ErrorPayload(t *testing.T) {
	srv := fakeMoodle(t, map[string]string{
		"core_course_get_contents": `{"exception":"moodle_exception","errorcode":"invalidtoken","message":"Invalid token"}`,
	})
	c := NewClient(Options{BaseURL: srv.URL})

	_, err := c.CourseContents(context.Background(), "t", 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.Function != "core_course_get_contents" || apiErr.Message != "Invalid token" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClient_UserCoursesNonArrayIsEmpty(t *testing.T) {
	srv := fakeMoodle(t, map[string]string{
		"core_enrol_get_users_courses@admin": `{}`,
	})
	c := NewClient(Options{BaseURL: srv.URL, AdminToken: "admin"})

	courses, err := c.UserCourses(context.Background(), "", 12)
	if err != nil {
		t.Fatalf("user courses: %v", err)
	}
	if courses == nil || len(courses) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", courses)
	}
}

func TestClient_CourseContentsNormalizesModules(t *testing.T) {
	srv := fakeMoodle(t, map[string]string{
		"core_course_get_contents": `[{"id":1,"name":"Geral","summary":"<p>Bem-vindos</p>"},{"id":2,"name":"Tema 1","modules":[{"id":5,"name":"Quiz","modname":"quiz"}]}]`,
	})
	c := NewClient(Options{BaseURL: srv.URL})

	sections, err := c.CourseContents(context.Background(), "t", 8)
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if len(sections) != 2 || sections[0].Modules == nil || len(sections[1].Modules) != 1 {
		t.Fatalf("unexpected sections: %+v", sections)
	}
}

func TestFormatCourseContext(t *testing.T) {
	hiddenFlag := 0
	sections := []Section{
		{ID: 1, Name: "Geral", Summary: "<p>Bem-vindos &amp; boa sorte</p>", Modules: []Module{
			{Name: "Fórum", ModName: "forum", Description: "<b>Avisos</b> da disciplina"},
			{Name: "Rascunho", ModName: "page", Visible: &hiddenFlag},
		}},
		{ID: 2, Name: "Oculta", Visible: &hiddenFlag},
	}

	out := FormatCourseContext("Matemática", sections)
	for _, want := range []string{"Disciplina: Matemática", "## Geral", "Bem-vindos & boa sorte", "- [forum] Fórum: Avisos da disciplina"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"Rascunho", "Oculta", "<p>"} {
		if strings.Contains(out, unwanted) {
			t.Fatalf("unexpected %q in:\n%s", unwanted, out)
		}
	}
}

func TestClient_TransportErrorsHideCredentials(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	c := NewClient(Options{BaseURL: base, AdminToken: "ADMINTOKEN", Timeout: time.Second})
	ctx := context.Background()

	_, err := c.Authenticate(ctx, "prof", "HUNTER2")
	if err == nil {
		t.Fatalf("expected error against a closed server")
	}
	if strings.Contains(err.Error(), "HUNTER2") || strings.Contains(err.Error(), "password") {
		t.Fatalf("login error leaks the password: %v", err)
	}
	if !strings.Contains(err.Error(), loginPath) {
		t.Fatalf("error should still name the endpoint: %v", err)
	}

	_, err = c.CourseContents(ctx, "USERTOKEN", 3)
	if err == nil {
		t.Fatalf("expected error against a closed server")
	}
	if strings.Contains(err.Error(), "USERTOKEN") || strings.Contains(err.Error(), "wstoken") {
		t.Fatalf("web service error leaks the token: %v", err)
	}

	_, err = c.SiteInfo(ctx, "")
	if err == nil || strings.Contains(err.Error(), "ADMINTOKEN") {
		t.Fatalf("admin token must not appear in errors: %v", err)
	}
}
