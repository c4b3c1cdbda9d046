package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/nextai-chat/config"
	"github.com/yourusername/nextai-chat/internal/delivery/telegram"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
	"github.com/yourusername/nextai-chat/internal/infrastructure/gemini"
	"github.com/yourusername/nextai-chat/internal/infrastructure/parser"
	"github.com/yourusername/nextai-chat/internal/infrastructure/storage"
	"github.com/yourusername/nextai-chat/internal/logging"
	"github.com/yourusername/nextai-chat/internal/usecase"
)

// purgeInterval how often expired quota entries are removed from SQLite
const purgeInterval = time.Hour

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	durable, closeStore, err := openDurableStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// sessions end with the process
	transient := storage.NewMemoryStateStore()

	users := usecase.NewUserDirectory(durable, time.Now)
	seeded, err := users.EnsureDefaultUser(ctx, cfg.DefaultUsername, cfg.DefaultPassword)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	if seeded {
		logger.Info("default user created", "username", cfg.DefaultUsername)
	}

	userParser := parser.NewExcelUserParser(logger)
	if cfg.UsersXLSXPath != "" {
		records, err := userParser.ParseUsers(ctx, cfg.UsersXLSXPath)
		if err != nil {
			return fmt.Errorf("failed to read users file: %w", err)
		}
		added, err := users.ImportUsers(ctx, records)
		if err != nil {
			return fmt.Errorf("failed to import users: %w", err)
		}
		logger.Info("users imported", "file", cfg.UsersXLSXPath, "rows", len(records), "added", added)
	}

	ai, closeAI, err := newAIRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAI()

	quotaCfg := usecase.QuotaConfig{
		MaxChatsPerDay:      cfg.MaxChatsPerDay,
		MaxQuestionsPerChat: cfg.MaxQuestionsPerChat,
		CooldownPeriod:      cfg.CooldownPeriod,
	}

	newApp := func(chatID int64) (*usecase.ChatApp, error) {
		prefix := fmt.Sprintf("tg:%d:", chatID)
		chatDurable := storage.NewScopedStateStore(durable, prefix)
		chatTransient := storage.NewScopedStateStore(transient, prefix)
		chatLogger := logger.With("chat_id", chatID)

		auth := usecase.NewAuthUseCase(users, chatDurable, chatTransient, chatLogger)
		tracker := usecase.NewContextTracker(time.Now, nil)
		quota := usecase.NewQuotaUseCase(chatDurable, quotaCfg, time.Now, chatLogger)
		return usecase.NewChatApp(auth, tracker, quota, ai, chatDurable, usecase.ChatAppConfig{}, time.Now, chatLogger), nil
	}

	handler, err := telegram.NewBotHandler(cfg.TelegramToken, newApp, users, userParser, cfg.DefaultUsername, logger)
	if err != nil {
		return err
	}

	return handler.Start(ctx)
}

// openDurableStore SQLite store, or an in-memory one for config.MemoryDBPath
func openDurableStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.StateStore, func(), error) {
	if cfg.StateDBPath == config.MemoryDBPath {
		logger.Warn("state is kept in memory and lost on restart")
		return storage.NewMemoryStateStore(), func() {}, nil
	}

	store, err := storage.NewSQLiteStateStore(cfg.StateDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state store: %w", err)
	}
	logger.Info("state store opened", "path", cfg.StateDBPath)

	go purgeExpired(ctx, store, logger)

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close state store", "error", err)
		}
	}, nil
}

func purgeExpired(ctx context.Context, store *storage.SQLiteStateStore, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired state failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired state purged", "rows", n)
			}
		}
	}
}

// newAIRepository Gemini client, or a placeholder without an API key
func newAIRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.AIRepository, func(), error) {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is empty, replies are placeholders")
		return gemini.Placeholder{}, func() {}, nil
	}

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close gemini client", "error", err)
		}
	}, nil
}
