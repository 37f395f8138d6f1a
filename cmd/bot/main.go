package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mafia-dossier/internal/auth"
	"mafia-dossier/internal/config"
	"mafia-dossier/internal/llm"
	"mafia-dossier/internal/query"
	"mafia-dossier/internal/scheduler"
	"mafia-dossier/internal/session"
	"mafia-dossier/internal/storage"
	"mafia-dossier/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if cfg.TelegramBotToken == "" {
		log.Fatalf("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.StoreDriver,
		FilePath:    cfg.StoreFilePath,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatalf("failed to open record store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("failed to close record store: %v", err)
		}
	}()

	// A missing LLM only disables /summary; listings keep working.
	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		log.Printf("Warning: failed to create llm client, summaries are disabled: %v", err)
		llmClient = nil
	}

	engine := query.NewEngine(store, llmClient, query.Options{
		SystemPrompt: query.LoadSystemPrompt(cfg.SummaryPromptPath),
		TimeLayout:   cfg.DatetimeFormat,
		Location:     cfg.Location(),
		Timeout:      cfg.SummaryTimeout,
	})

	var sessionRepo session.Repository
	if cfg.SessionFilePath != "" {
		repo, err := session.NewFileRepository(cfg.SessionFilePath)
		if err != nil {
			log.Printf("failed to init session repo: %v", err)
		} else {
			sessionRepo = repo
		}
	}
	manager := session.NewManager(store, engine, session.Options{
		TTL:  cfg.ConversationTimeout,
		Repo: sessionRepo,
	})
	if n, err := manager.Recover(); err != nil {
		log.Printf("failed to recover sessions: %v", err)
	} else if n > 0 {
		log.Printf("discarded %d session(s) interrupted by restart", n)
	}

	janitor := scheduler.New(cfg.JanitorSchedule)
	janitor.SetSweepFunction(manager.Sweep)
	if err := janitor.Start(); err != nil {
		log.Fatalf("failed to start janitor: %v", err)
	}
	defer janitor.Stop()

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			log.Printf("failed to init allowlist repo: %v", err)
		} else {
			allowRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.Users, cfg.Admins)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	bot, err := telegram.New(cfg.TelegramBotToken, authSvc, manager, store, telegram.Options{
		Location:   cfg.Location(),
		TimeLayout: cfg.DatetimeFormat,
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	bot.Start(ctx)
	log.Println("bot stopped")
}
