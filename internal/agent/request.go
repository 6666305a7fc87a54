package agent

import "moodle-assistant/internal/llm"

const (
	TypeHuman = "human"
	TypeAI    = "ai"
)

// Message is one chat_history item in the agent's wire format.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Request is the payload sent to the agent for one question.
type Request struct {
	Input           string    `json:"input"`
	ChatHistory     []Message `json:"chat_history"`
	MoodleCourseID  int64     `json:"moodle_course_id"`
	MoodleUserToken string    `json:"moodle_user_token"`
	CourseName      string    `json:"course_name,omitempty"`
	CourseContext   string    `json:"course_context,omitempty"`
}

type Response struct {
	Output string `json:"output"`
}

// Context is what the caller knows about the question besides its text.
type Context struct {
	CourseID   int64
	CourseName string
	CourseText string
	UserToken  string
}

// BuildRequest maps history messages onto the agent vocabulary. The history
// slice is always present in the payload, even when empty.
func BuildRequest(question string, history []llm.Message, c Context) Request {
	chat := make([]Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case llm.RoleUser:
			chat = append(chat, Message{Type: TypeHuman, Content: m.Content})
		case llm.RoleAssistant:
			chat = append(chat, Message{Type: TypeAI, Content: m.Content})
		}
	}
	return Request{
		Input:           question,
		ChatHistory:     chat,
		MoodleCourseID:  c.CourseID,
		MoodleUserToken: c.UserToken,
		CourseName:      c.CourseName,
		CourseContext:   c.CourseText,
	}
}
