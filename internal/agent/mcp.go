package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// InvokeTool is the tool name the agent exposes over MCP.
const InvokeTool = "invoke"

// MCPInvoker calls the agent as an MCP tool. The session is opened lazily and
// reopened after a failed call.
type MCPInvoker struct {
	client    *mcp.Client
	transport func() mcp.Transport

	mu      sync.Mutex
	session *mcp.ClientSession
}

func NewMCPInvoker(transport func() mcp.Transport) *MCPInvoker {
	return &MCPInvoker{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "moodle-assistant",
			Version: "1.0.0",
		}, nil),
		transport: transport,
	}
}

// NewCommandInvoker starts the agent as a subprocess speaking MCP over stdio.
func NewCommandInvoker(name string, args ...string) *MCPInvoker {
	return NewMCPInvoker(func() mcp.Transport {
		cmd := exec.Command(name, args...)
		cmd.Env = os.Environ()
		return mcp.NewCommandTransport(cmd)
	})
}

func (m *MCPInvoker) connect(ctx context.Context) (*mcp.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session, nil
	}
	log.Printf("🔗 connecting to agent MCP server")
	session, err := m.client.Connect(ctx, m.transport())
	if err != nil {
		return nil, err
	}
	m.session = session
	log.Printf("✅ connected to agent MCP server")
	return session, nil
}

func (m *MCPInvoker) reset(session *mcp.ClientSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == session {
		_ = m.session.Close()
		m.session = nil
	}
}

func (m *MCPInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	session, err := m.connect(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}

	args, err := toArguments(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode agent request: %w", err)
	}

	log.Printf("🤖 calling agent tool %q (course %d, %d history messages)", InvokeTool, req.MoodleCourseID, len(req.ChatHistory))
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      InvokeTool,
		Arguments: args,
	})
	if err != nil {
		m.reset(session)
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var text strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return Response{}, &StatusError{Code: 500, Message: text.String()}
	}
	return parseToolOutput(text.String())
}

// parseToolOutput accepts {"output": "..."} or plain text.
func parseToolOutput(text string) (Response, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		return decodeResponse([]byte(trimmed))
	}
	if trimmed == "" {
		return Response{}, ErrMalformedResponse
	}
	return Response{Output: text}, nil
}

func toArguments(req Request) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func (m *MCPInvoker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
