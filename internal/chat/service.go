package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"moodle-assistant/internal/agent"
	"moodle-assistant/internal/coursecache"
	"moodle-assistant/internal/history"
	"moodle-assistant/internal/llm"
	"moodle-assistant/internal/moodle"
	"moodle-assistant/internal/storage"
)

// ErrAgentFailed wraps every agent failure; callers show GenericFailureMessage.
var ErrAgentFailed = errors.New("agent call failed")

const GenericFailureMessage = "Ocorreu um erro ao processar a sua pergunta com o assistente."

// recordTimeout bounds recording a turn, including a summarizer call.
const recordTimeout = 2 * time.Minute

type History interface {
	AgentMessages(ctx context.Context, key storage.Key, maxInteractions int) []llm.Message
	AppendInteraction(ctx context.Context, key storage.Key, question, answer string) error
}

type CourseContents interface {
	CourseContents(ctx context.Context, token string, courseID int64) ([]moodle.Section, error)
}

type Question struct {
	UserID     int64
	UserToken  string
	CourseID   int64
	CourseName string
	Text       string
}

// Service relays a question to the agent with the user's recent turns and the
// course contents, then records the turn.
type Service struct {
	history History
	agent   agent.Invoker
	moodle  CourseContents
	cache   *coursecache.Cache
	window  int
}

// NewService builds the relay. contents and cache may be nil; the question is
// then sent without course context.
func NewService(h History, invoker agent.Invoker, contents CourseContents, cache *coursecache.Cache, window int) *Service {
	if window <= 0 {
		window = history.DefaultAgentWindow
	}
	return &Service{history: h, agent: invoker, moodle: contents, cache: cache, window: window}
}

func (s *Service) Ask(ctx context.Context, q Question) (string, error) {
	key := storage.Key{UserID: q.UserID, CourseID: q.CourseID}
	messages := s.history.AgentMessages(ctx, key, s.window)
	log.Printf("💬 question about %q (course %d) from user %d with %d history messages", q.CourseName, q.CourseID, q.UserID, len(messages))

	req := agent.BuildRequest(q.Text, messages, agent.Context{
		CourseID:   q.CourseID,
		CourseName: q.CourseName,
		CourseText: s.courseContext(ctx, q),
		UserToken:  q.UserToken,
	})

	resp, err := s.agent.Invoke(ctx, req)
	if err != nil {
		logAgentFailure(key, err)
		return "", fmt.Errorf("%w: %w", ErrAgentFailed, err)
	}

	// the answer exists now; a client disconnect must not drop the turn or
	// abort the summary it may trigger
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.history.AppendInteraction(recordCtx, key, q.Text, resp.Output); err != nil {
		// the user still gets the answer; the turn is lost from history
		log.Printf("⚠️ answer for %s not recorded: %v", key, err)
	}
	return resp.Output, nil
}

func (s *Service) courseContext(ctx context.Context, q Question) string {
	if s.moodle == nil || s.cache == nil {
		return ""
	}
	text, err := s.cache.GetOrLoad(ctx, q.CourseID, func(ctx context.Context, courseID int64) (string, error) {
		sections, err := s.moodle.CourseContents(ctx, q.UserToken, courseID)
		if err != nil {
			return "", err
		}
		return moodle.FormatCourseContext(q.CourseName, sections), nil
	})
	if err != nil {
		log.Printf("⚠️ continuing without course context: %v", err)
		return ""
	}
	return text
}

func logAgentFailure(key storage.Key, err error) {
	var statusErr *agent.StatusError
	switch {
	case errors.As(err, &statusErr):
		log.Printf("❌ agent answered %d for %s: %s", statusErr.Code, key, statusErr.Message)
	case errors.Is(err, agent.ErrUnavailable):
		log.Printf("❌ agent unreachable for %s: %v", key, err)
	case errors.Is(err, agent.ErrMalformedResponse):
		log.Printf("❌ agent response without output for %s: %v", key, err)
	default:
		log.Printf("❌ agent call failed for %s: %v", key, err)
	}
}
