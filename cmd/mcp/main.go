package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/ymatsuda/docsearch/internal/adapters/mcp"
	"github.com/ymatsuda/docsearch/internal/bootstrap"
	"github.com/ymatsuda/docsearch/internal/config"
	"github.com/ymatsuda/docsearch/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	// stdout carries the MCP protocol; logs must go to stderr
	logger := logging.NewJSONLoggerTo(os.Stderr, "docsearch-mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.Searcher, app.Defaults, logger)
	if err := server.Serve(ctx); err != nil {
		logger.Error("mcp_server_stopped", "error", err)
		os.Exit(1)
	}
}
