package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moodle-assistant/internal/agent"
	"moodle-assistant/internal/coursecache"
	"moodle-assistant/internal/history"
	"moodle-assistant/internal/moodle"
	"moodle-assistant/internal/storage"
)

type fakeInvoker struct {
	requests []agent.Request
	answer   func(req agent.Request) (agent.Response, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, req agent.Request) (agent.Response, error) {
	f.requests = append(f.requests, req)
	return f.answer(req)
}

type fakeMoodle struct {
	calls int
	err   error
}

func (f *fakeMoodle) CourseContents(context.Context, string, int64) ([]moodle.Section, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []moodle.Section{{ID: 1, Name: "Introdução", Modules: []moodle.Module{{Name: "Leitura", ModName: "page"}}}}, nil
}

func newTestHistory(t *testing.T) *history.Manager {
	t.Helper()
	st, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	m, err := history.NewManager(st, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return m
}

func echoAgent() *fakeInvoker {
	return &fakeInvoker{answer: func(req agent.Request) (agent.Response, error) {
		return agent.Response{Output: "R:" + req.Input}, nil
	}}
}

func TestAsk_SecondQuestionCarriesFirstTurn(t *testing.T) {
	h := newTestHistory(t)
	inv := echoAgent()
	svc := NewService(h, inv, nil, nil, 5)
	ctx := context.Background()
	q := Question{UserID: 1, UserToken: "tok", CourseID: 9, CourseName: "Química"}

	q.Text = "Q1"
	if _, err := svc.Ask(ctx, q); err != nil {
		t.Fatalf("ask Q1: %v", err)
	}
	q.Text = "Q2"
	answer, err := svc.Ask(ctx, q)
	if err != nil || answer != "R:Q2" {
		t.Fatalf("ask Q2: %q %v", answer, err)
	}

	second := inv.requests[1]
	want := []agent.Message{{Type: agent.TypeHuman, Content: "Q1"}, {Type: agent.TypeAI, Content: "R:Q1"}}
	if len(second.ChatHistory) != 2 || second.ChatHistory[0] != want[0] || second.ChatHistory[1] != want[1] {
		t.Fatalf("unexpected history: %+v", second.ChatHistory)
	}
	if second.MoodleUserToken != "tok" || second.MoodleCourseID != 9 {
		t.Fatalf("unexpected request: %+v", second)
	}

	log := h.Log(ctx, storage.Key{UserID: 1, CourseID: 9})
	if len(log) != 2 || log[1].Question != "Q2" || log[1].Answer != "R:Q2" {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestAsk_AgentFailureIsNotRecorded(t *testing.T) {
	h := newTestHistory(t)
	inv := &fakeInvoker{answer: func(agent.Request) (agent.Response, error) {
		return agent.Response{}, &agent.StatusError{Code: 500, Message: "boom"}
	}}
	svc := NewService(h, inv, nil, nil, 5)

	_, err := svc.Ask(context.Background(), Question{UserID: 1, CourseID: 2, CourseName: "x", Text: "Q"})
	if !errors.Is(err, ErrAgentFailed) {
		t.Fatalf("want ErrAgentFailed, got %v", err)
	}
	var statusErr *agent.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("cause must stay inspectable, got %v", err)
	}
	if got := h.Log(context.Background(), storage.Key{UserID: 1, CourseID: 2}); len(got) != 0 {
		t.Fatalf("failed turn must not be recorded: %+v", got)
	}
}

func TestAsk_CourseContextIsCached(t *testing.T) {
	inv := echoAgent()
	mdl := &fakeMoodle{}
	svc := NewService(newTestHistory(t), inv, mdl, coursecache.New(time.Minute), 5)
	q := Question{UserID: 1, CourseID: 4, CourseName: "Biologia", Text: "Q"}

	for i := 0; i < 3; i++ {
		if _, err := svc.Ask(context.Background(), q); err != nil {
			t.Fatalf("ask: %v", err)
		}
	}
	if mdl.calls != 1 {
		t.Fatalf("course contents fetched %d times, want 1", mdl.calls)
	}
	if !strings.Contains(inv.requests[2].CourseContext, "Introdução") {
		t.Fatalf("course context missing: %q", inv.requests[2].CourseContext)
	}
}

func TestAsk_CourseContextFailureDoesNotBlock(t *testing.T) {
	inv := echoAgent()
	svc := NewService(newTestHistory(t), inv, &fakeMoodle{err: errors.New("moodle down")}, coursecache.New(time.Minute), 5)

	answer, err := svc.Ask(context.Background(), Question{UserID: 1, CourseID: 4, CourseName: "x", Text: "Q"})
	if err != nil || answer != "R:Q" {
		t.Fatalf("ask: %q %v", answer, err)
	}
	if inv.requests[0].CourseContext != "" {
		t.Fatalf("expected empty course context")
	}
}

type ctxSummarizer struct{}

func (ctxSummarizer) Summarize(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "resumo real", nil
}

func TestAsk_RecordsTurnAfterClientDisconnect(t *testing.T) {
	st, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	h, err := history.NewManager(st, ctxSummarizer{},
		history.WithPolicy(history.Policy{SummaryTrigger: 2, BatchSize: 2, HardCap: 5}))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	svc := NewService(h, echoAgent(), nil, nil, 5)
	q := Question{UserID: 4, UserToken: "tok", CourseID: 8, CourseName: "Física", Text: "primeira"}

	if _, err := svc.Ask(context.Background(), q); err != nil {
		t.Fatalf("first ask: %v", err)
	}

	// the agent answers, then the client goes away
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Text = "segunda"
	answer, err := svc.Ask(ctx, q)
	if err != nil || answer != "R:segunda" {
		t.Fatalf("ask with cancelled ctx: %q, %v", answer, err)
	}

	stored, err := st.Load(context.Background(), storage.Key{UserID: 4, CourseID: 8})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	summaries := stored.Summaries()
	if len(summaries) != 1 || summaries[0].SummarizedCount != 2 {
		t.Fatalf("want both turns folded into one summary, got %+v", stored)
	}
	if summaries[0].Summary != "resumo real" {
		t.Fatalf("summary must not fall back to the placeholder, got %q", summaries[0].Summary)
	}
}
