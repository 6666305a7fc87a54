package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moodle-assistant/internal/agent"
	"moodle-assistant/internal/analytics"
	"moodle-assistant/internal/auth"
	"moodle-assistant/internal/chat"
	"moodle-assistant/internal/config"
	"moodle-assistant/internal/coursecache"
	"moodle-assistant/internal/history"
	"moodle-assistant/internal/llm"
	"moodle-assistant/internal/moodle"
	"moodle-assistant/internal/scheduler"
	"moodle-assistant/internal/server"
	"moodle-assistant/internal/storage"
	"moodle-assistant/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	store, err := storage.Open(cfg.HistoryBackend, cfg.HistoryDir, cfg.HistoryDBPath)
	if err != nil {
		log.Fatalf("failed to open history store: %v", err)
	}
	defer func() {
		if err := storage.CloseStore(store); err != nil {
			log.Printf("failed to close history store: %v", err)
		}
	}()

	factory := &llm.Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
	llmClient, err := factory.CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	historyMgr, err := history.NewManager(store, llm.NewSummarizer(llmClient), history.WithPolicy(cfg.HistoryPolicy()))
	if err != nil {
		log.Fatalf("failed to init history: %v", err)
	}

	moodleClient := moodle.NewClient(moodle.Options{
		BaseURL:     cfg.MoodleURL,
		AdminToken:  cfg.MoodleToken,
		Service:     cfg.MoodleService,
		InsecureTLS: cfg.MoodleInsecureTLS,
		Timeout:     cfg.MoodleTimeout,
	})
	courseCache := coursecache.New(cfg.CourseCacheTTL)

	invoker := newInvoker(cfg)
	chatSvc := chat.NewService(historyMgr, invoker, moodleClient, courseCache, cfg.HistoryAgentWindow)

	var sessionRepo auth.Repository
	if cfg.SessionFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.SessionFilePath)
		if err != nil {
			log.Printf("failed to init session repo, sessions stay in memory: %v", err)
		} else {
			sessionRepo = repo
		}
	}
	sessions, err := auth.NewWithRepo(sessionRepo, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	web := server.NewWebServer(server.Options{
		Port:          cfg.Port,
		PublicDir:     cfg.PublicDir,
		CookieSecure:  cfg.CookieSecure,
		DigestEntries: cfg.HistoryDigestEntries,
	}, moodleClient, chatSvc, historyMgr, sessions)

	sched := scheduler.New()
	if err := sched.AddJob("purge", cfg.CachePurgeCron, func(context.Context) error {
		courses := courseCache.Purge()
		expired := sessions.PurgeExpired()
		if courses > 0 || expired > 0 {
			log.Printf("🧹 purged %d course contexts and %d sessions", courses, expired)
		}
		return nil
	}); err != nil {
		log.Fatalf("failed to schedule purge: %v", err)
	}
	report := newReporter(cfg, store)
	if err := sched.AddJob("daily-report", cfg.ReportCron, report); err != nil {
		log.Fatalf("failed to schedule daily report: %v", err)
	}
	sched.Start()

	go func() {
		if err := web.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ web server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("🔌 shutting down...")
	if err := web.Stop(); err != nil {
		log.Printf("❌ web server shutdown error: %v", err)
	}
	sched.Stop()
	if c, ok := invoker.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Printf("failed to close agent session: %v", err)
		}
	}
}

func newInvoker(cfg *config.Config) agent.Invoker {
	if cfg.AgentTransport == config.AgentTransportMCP {
		log.Printf("🔗 agent over MCP: %v", cfg.AgentMCPCommand)
		return agent.NewCommandInvoker(cfg.AgentMCPCommand[0], cfg.AgentMCPCommand[1:]...)
	}
	log.Printf("🔗 agent over HTTP: %s", cfg.AgentURL)
	return agent.NewHTTPInvoker(cfg.AgentURL, cfg.AgentTimeout)
}

// newReporter builds the daily report job. Without Telegram credentials the
// report only goes to the log.
func newReporter(cfg *config.Config, store storage.Store) func(context.Context) error {
	var notifier *telegram.Notifier
	if cfg.TelegramBotToken != "" && cfg.AdminChatID != 0 {
		n, err := telegram.NewNotifier(cfg.TelegramBotToken, cfg.AdminChatID)
		if err != nil {
			log.Printf("failed to init telegram notifier: %v", err)
		} else {
			notifier = n
		}
	}

	return func(ctx context.Context) error {
		stats, err := analytics.Collect(ctx, store, time.Now().UTC())
		if err != nil {
			return err
		}
		summary := stats.GenerateReportSummary()
		if notifier == nil {
			log.Printf("📊 %s", summary)
			return nil
		}
		return notifier.Notify(ctx, summary)
	}
}
