package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"

	"moodle-assistant/internal/history"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

const (
	AgentTransportHTTP = "http"
	AgentTransportMCP  = "mcp"

	HistoryBackendFile   = "file"
	HistoryBackendSQLite = "sqlite"

	MCPTransportStdio = "stdio"
	MCPTransportSSE   = "sse"
)

type Config struct {
	// HTTP
	Port         int    `env:"PORT" envDefault:"3000"`
	PublicDir    string `env:"PUBLIC_DIR" envDefault:"public"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	// Moodle web services
	MoodleURL         string        `env:"MOODLE_URL,required"`
	MoodleToken       string        `env:"MOODLE_TOKEN"`
	MoodleService     string        `env:"MOODLE_SERVICE" envDefault:"moodle_mobile_app"`
	MoodleInsecureTLS bool          `env:"MOODLE_INSECURE_TLS" envDefault:"false"`
	MoodleTimeout     time.Duration `env:"MOODLE_TIMEOUT" envDefault:"30s"`

	// Conversational agent
	AgentTransport  string        `env:"AGENT_TRANSPORT" envDefault:"http"`
	AgentURL        string        `env:"AGENT_URL" envDefault:"http://localhost:3010/invoke"`
	AgentTimeout    time.Duration `env:"AGENT_TIMEOUT" envDefault:"60s"`
	AgentMCPCommand []string      `env:"AGENT_MCP_COMMAND" envSeparator:" "`

	// Conversation history
	HistoryBackend        string `env:"HISTORY_BACKEND" envDefault:"file"`
	HistoryDir            string `env:"HISTORY_DIR" envDefault:"data/conversations"`
	HistoryDBPath         string `env:"HISTORY_DB_PATH" envDefault:"data/history.db"`
	HistorySummaryTrigger int    `env:"HISTORY_SUMMARY_TRIGGER" envDefault:"40"`
	HistoryBatchSize      int    `env:"HISTORY_BATCH_SIZE" envDefault:"30"`
	HistoryHardCap        int    `env:"HISTORY_HARD_CAP" envDefault:"50"`
	HistoryAgentWindow    int    `env:"HISTORY_AGENT_WINDOW" envDefault:"5"`
	HistoryDigestEntries  int    `env:"HISTORY_DIGEST_ENTRIES" envDefault:"5"`

	// Caches and sessions
	CourseCacheTTL  time.Duration `env:"COURSE_CACHE_TTL" envDefault:"15m"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionFilePath string        `env:"SESSION_FILE_PATH"`

	// LLM settings (history summaries)
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Scheduled maintenance and reports
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64  `env:"ADMIN_CHAT_ID"`
	ReportCron       string `env:"REPORT_CRON" envDefault:"0 21 * * *"`
	CachePurgeCron   string `env:"CACHE_PURGE_CRON" envDefault:"@every 15m"`

	// MCP history server
	MCPTransport string `env:"MCP_TRANSPORT" envDefault:"stdio"`
	MCPHTTPPort  int    `env:"MCP_HTTP_PORT" envDefault:"8082"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Parse reads the environment and validates the result.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MoodleURL == "" {
		return fmt.Errorf("MOODLE_URL must not be empty")
	}
	if err := c.HistoryPolicy().Validate(); err != nil {
		return fmt.Errorf("HISTORY_SUMMARY_TRIGGER/HISTORY_BATCH_SIZE/HISTORY_HARD_CAP: %w", err)
	}
	switch c.AgentTransport {
	case AgentTransportHTTP:
	case AgentTransportMCP:
		if len(c.AgentMCPCommand) == 0 {
			return fmt.Errorf("AGENT_MCP_COMMAND is required when AGENT_TRANSPORT=mcp")
		}
	default:
		return fmt.Errorf("unknown AGENT_TRANSPORT: %s", c.AgentTransport)
	}
	switch c.HistoryBackend {
	case HistoryBackendFile, HistoryBackendSQLite:
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND: %s", c.HistoryBackend)
	}
	switch c.MCPTransport {
	case MCPTransportStdio, MCPTransportSSE:
	default:
		return fmt.Errorf("unknown MCP_TRANSPORT: %s", c.MCPTransport)
	}
	return nil
}

// HistoryPolicy returns the compaction thresholds.
func (c *Config) HistoryPolicy() history.Policy {
	return history.Policy{
		SummaryTrigger: c.HistorySummaryTrigger,
		BatchSize:      c.HistoryBatchSize,
		HardCap:        c.HistoryHardCap,
	}
}

// HTTPAddr returns the listen address of the web server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
