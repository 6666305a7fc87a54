package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"moodle-assistant/internal/history"
	"moodle-assistant/internal/storage"
)

const (
	RecentTool = "history_recent"
	DigestTool = "history_digest"
)

type Reader interface {
	RecentInteractions(ctx context.Context, key storage.Key, limit int) []storage.Entry
	LegacyDigest(ctx context.Context, key storage.Key, maxEntries int) string
}

type HistoryParams struct {
	UserID   int64 `json:"user_id" mcp:"Moodle id of the user"`
	CourseID int64 `json:"course_id" mcp:"Moodle id of the course"`
	Limit    int   `json:"limit,omitempty" mcp:"maximum number of entries (default 5)"`
}

// HistoryTools exposes read-only history views to MCP clients such as the agent.
type HistoryTools struct {
	reader       Reader
	defaultLimit int
}

func NewHistoryTools(reader Reader, defaultLimit int) *HistoryTools {
	if defaultLimit <= 0 {
		defaultLimit = history.DefaultAgentWindow
	}
	return &HistoryTools{reader: reader, defaultLimit: defaultLimit}
}

// NewServer builds an MCP server with the history tools registered.
func NewServer(tools *HistoryTools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "moodle-history-mcp-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        RecentTool,
		Description: "Returns the most recent question/answer interactions of a user in a course, oldest first, as JSON",
	}, tools.Recent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        DigestTool,
		Description: "Returns a plain-text digest of the conversation history of a user in a course, newest first, including summaries",
	}, tools.Digest)

	log.Printf("📋 Registered 2 history MCP tools")
	return server
}

func toolError(msg string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "❌ " + msg}},
	}
}

func (h *HistoryTools) params(p HistoryParams) (storage.Key, int, error) {
	if p.UserID <= 0 || p.CourseID <= 0 {
		return storage.Key{}, 0, fmt.Errorf("user_id and course_id are required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}
	return storage.Key{UserID: p.UserID, CourseID: p.CourseID}, limit, nil
}

func (h *HistoryTools) Recent(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[HistoryParams]) (*mcp.CallToolResultFor[any], error) {
	key, limit, err := h.params(params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	log.Printf("📜 MCP: recent history for %s (limit %d)", key, limit)

	entries := h.reader.RecentInteractions(ctx, key, limit)
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		Meta: map[string]interface{}{
			"user_id":   key.UserID,
			"course_id": key.CourseID,
			"count":     len(entries),
		},
	}, nil
}

func (h *HistoryTools) Digest(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[HistoryParams]) (*mcp.CallToolResultFor[any], error) {
	key, limit, err := h.params(params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	log.Printf("📜 MCP: history digest for %s (limit %d)", key, limit)
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: h.reader.LegacyDigest(ctx, key, limit)}},
	}, nil
}
