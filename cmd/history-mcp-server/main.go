package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"moodle-assistant/internal/config"
	"moodle-assistant/internal/history"
	"moodle-assistant/internal/mcpserver"
	"moodle-assistant/internal/storage"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
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

	// read-only: nothing is appended here, so no summarizer is needed
	mgr, err := history.NewManager(store, nil, history.WithPolicy(cfg.HistoryPolicy()))
	if err != nil {
		log.Fatalf("failed to init history: %v", err)
	}
	server := mcpserver.NewServer(mcpserver.NewHistoryTools(mgr, cfg.HistoryDigestEntries), version)

	switch cfg.MCPTransport {
	case config.MCPTransportSSE:
		serveSSE(server, cfg.MCPHTTPPort)
	default:
		log.Printf("🚀 History MCP server ready on stdio")
		if err := server.Run(context.Background(), mcp.NewStdioTransport()); err != nil {
			log.Printf("❌ MCP server stopped: %v", err)
		}
	}
}

func serveSSE(server *mcp.Server, port int) {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server }))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("History MCP server is running"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🌐 History SSE MCP server listening on http://localhost:%d/mcp", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("🔌 History MCP server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}
}
