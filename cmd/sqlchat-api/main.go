package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/api"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/assistant"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/auth"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/chat"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/completion"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/config"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector/engines"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/export"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
	schemaredis "github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema/redis"
	s3store "github.com/lileihappy123/AzureSQLChatGPTDemo/internal/storage/s3"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/tokenizer"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
	transcriptsqlite "github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript/sqlite"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlchat-api")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("api server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	connectors := engines.NewRegistry(connector.Options{OpTimeout: cfg.Connector.OpTimeout})
	readiness := []api.ReadinessCheck{api.CheckCompletionConfig(cfg)}

	var cacheBackend schema.Backend = schema.NewMemoryBackend()
	if cfg.SchemaCache.Backend == config.BackendRedis {
		redisBackend, err := schemaredis.New(startCtx, schemaredis.Config{
			Addr:      cfg.SchemaCache.RedisAddr,
			Password:  cfg.SchemaCache.RedisPassword,
			DB:        cfg.SchemaCache.RedisDB,
			TTL:       cfg.SchemaCache.TTL,
			KeyPrefix: cfg.SchemaCache.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("initialize schema cache: %w", err)
		}
		defer func() { _ = redisBackend.Close() }()
		cacheBackend = redisBackend
	}
	schemas := schema.NewCache(connectors, cacheBackend, logger)

	var transcripts transcript.Store = transcript.NewMemoryStore()
	if cfg.Transcript.Backend == config.BackendSQLite {
		sqliteStore, err := transcriptsqlite.Open(startCtx, cfg.Transcript.SQLitePath)
		if err != nil {
			return fmt.Errorf("initialize transcript store: %w", err)
		}
		defer func() { _ = sqliteStore.Close() }()
		transcripts = sqliteStore
		readiness = append(readiness, sqliteStore.HealthCheck)
	}
	transcripts = transcript.Observe(transcripts, func(msg transcript.Message) {
		logger.Debug("message updated",
			zap.String("chat_id", msg.ChatID),
			zap.String("message_id", msg.ID),
			zap.Int("content_bytes", len(msg.Content)),
			zap.Bool("is_generated", msg.IsGenerated),
		)
	})

	assistants := assistant.Builtin(cfg.Chat.DefaultAssistant)
	if cfg.Assistants.CatalogPath != "" {
		items, err := assistant.LoadFile(cfg.Assistants.CatalogPath)
		if err != nil {
			return err
		}
		if err := assistants.Add(items...); err != nil {
			return fmt.Errorf("load assistant catalog: %w", err)
		}
	}

	var counter tokenizer.Counter
	tiktoken, err := tokenizer.NewTiktoken(cfg.AI.Encoding)
	if err != nil {
		logger.Warn("falling back to approximate token counts", zap.Error(err))
		counter = tokenizer.Approximate{}
	} else {
		counter = tiktoken
	}

	completer, err := chat.NewClient(chat.ClientConfig{
		Endpoint:       cfg.Chat.CompletionURL,
		APIKey:         cfg.Chat.APIKey,
		RequestTimeout: cfg.Chat.RequestTimeout,
		IdleTimeout:    cfg.Chat.StreamIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("initialize completion client: %w", err)
	}
	orchestrator := chat.NewOrchestrator(chat.Dependencies{
		Schemas:    schemas,
		Assistants: assistants,
		Builder:    prompt.NewBuilder(cfg.Chat.MaxTokens, counter),
		Completer:  completer,
		Store:      transcripts,
		Logger:     logger,
		NewID:      uuid.NewString,
	})

	deps := api.Dependencies{
		Logger:            logger,
		DependencyTimeout: time.Second,
		Connectors:        connectors,
		Schemas:           schemas,
		Orchestrator:      orchestrator,
		Transcripts:       transcripts,
		Assistants:        assistants,
	}

	if cfg.AI.APIKey != "" {
		service, err := completion.New(completion.Config{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("initialize completion service: %w", err)
		}
		deps.Completion = service
	} else {
		logger.Warn("SQLCHAT_AI_API_KEY is not set; /api/chat is disabled")
	}

	if cfg.Export.Enabled {
		objectStore, err := s3store.New(startCtx, s3store.Config{
			Endpoint:         cfg.Export.Endpoint,
			Region:           cfg.Export.Region,
			Bucket:           cfg.Export.Bucket,
			AccessKeyID:      cfg.Export.AccessKeyID,
			SecretAccessKey:  cfg.Export.SecretAccessKey,
			UseSSL:           cfg.Export.UseSSL,
			Prefix:           cfg.Export.Prefix,
			AutoCreateBucket: cfg.Export.AutoCreateBucket,
		})
		if err != nil {
			return fmt.Errorf("initialize export store: %w", err)
		}
		deps.Exports = export.NewService(objectStore, logger)
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return fmt.Errorf("parse static auth keys: %w", err)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server", zap.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}
