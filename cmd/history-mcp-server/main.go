package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mafia-dossier/internal/config"
	"mafia-dossier/internal/llm"
	"mafia-dossier/internal/query"
	"mafia-dossier/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg := config.New()
	ctx := context.Background()

	log.Printf("🚀 Starting Player History MCP Server (store=%s)", cfg.StoreDriver)

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.StoreDriver,
		FilePath:    cfg.StoreFilePath,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatalf("❌ Failed to open record store: %v", err)
	}
	defer store.Close()

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		log.Printf("⚠️ LLM client unavailable, summarize_player will fail: %v", err)
		llmClient = nil
	}
	engine := query.NewEngine(store, llmClient, query.Options{
		SystemPrompt: query.LoadSystemPrompt(cfg.SummaryPromptPath),
		TimeLayout:   cfg.DatetimeFormat,
		Location:     cfg.Location(),
		Timeout:      cfg.SummaryTimeout,
	})

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mafia-dossier-history-mcp",
		Version: "1.0.0",
	}, nil)

	historyServer := NewHistoryMCPServer(store, engine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_player_history",
		Description: "Lists every recorded game of a Mafia player with per-role and per-format statistics",
	}, historyServer.ListPlayerHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_player",
		Description: "Returns an AI-written portrait of a Mafia player based on their recorded games",
	}, historyServer.SummarizePlayer)

	log.Printf("📋 Registered %d tools: list_player_history, summarize_player", 2)
	log.Printf("🔗 Starting server on stdin/stdout...")

	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
