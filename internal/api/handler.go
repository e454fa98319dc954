package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/assistant"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/chat"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/config"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/export"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/storage"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

type ReadinessCheck func(ctx context.Context) error

type ConnectorResolver interface {
	For(conn connector.Connection) (connector.Connector, error)
}

type SchemaCache interface {
	GetOrFetch(ctx context.Context, conn connector.Connection, databaseName string) ([]schema.TableStructure, error)
	Invalidate(ctx context.Context, conn connector.Connection, databaseName string) error
}

type CompletionStreamer interface {
	Stream(ctx context.Context, turns []prompt.Turn, onChunk func([]byte) error) error
}

type ChatOrchestrator interface {
	Send(ctx context.Context, turn chat.Turn) (transcript.Message, error)
	State(chatID string) chat.Status
}

type AssistantCatalog interface {
	List() []assistant.Assistant
}

type Exporter interface {
	Run(ctx context.Context, executor export.Executor, databaseName, statement string) (export.Export, error)
	Open(ctx context.Context, key string) (io.ReadCloser, storage.Object, error)
	Remove(ctx context.Context, key string) error
}

type Dependencies struct {
	Logger            *zap.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Connectors        ConnectorResolver
	Schemas           SchemaCache
	Completion        CompletionStreamer
	Orchestrator      ChatOrchestrator
	Transcripts       transcript.Store
	Assistants        AssistantCatalog
	Exports           Exporter
}

var protectedRoutes = []string{
	"POST /api/connection/test",
	"POST /api/connection/databases",
	"POST /api/connection/tables",
	"POST /api/connection/schema",
	"POST /api/connection/execute",
	"POST /api/connection/export",
	"GET /api/exports/{key...}",
	"DELETE /api/exports/{key...}",
	"GET /api/chats/{chat}/messages",
	"POST /api/chats/{chat}/messages",
	"DELETE /api/chats/{chat}/messages",
	"GET /api/chats/{chat}/state",
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /api/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /api/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		handleCompletion(deps, w, r)
	})
	mux.HandleFunc("GET /api/assistants", func(w http.ResponseWriter, r *http.Request) {
		handleListAssistants(deps, w, r)
	})

	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/connection/test", func(w http.ResponseWriter, r *http.Request) {
		handleTestConnection(deps, w, r)
	})
	protected.HandleFunc("POST /api/connection/databases", func(w http.ResponseWriter, r *http.Request) {
		handleListDatabases(deps, w, r)
	})
	protected.HandleFunc("POST /api/connection/tables", func(w http.ResponseWriter, r *http.Request) {
		handleListTables(deps, w, r)
	})
	protected.HandleFunc("POST /api/connection/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("POST /api/connection/execute", func(w http.ResponseWriter, r *http.Request) {
		handleExecute(deps, w, r)
	})
	protected.HandleFunc("POST /api/connection/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})
	protected.HandleFunc("GET /api/exports/{key...}", func(w http.ResponseWriter, r *http.Request) {
		handleDownloadExport(deps, w, r)
	})
	protected.HandleFunc("DELETE /api/exports/{key...}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteExport(deps, w, r)
	})
	protected.HandleFunc("GET /api/chats/{chat}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleListMessages(deps, w, r)
	})
	protected.HandleFunc("POST /api/chats/{chat}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleSendMessage(deps, w, r)
	})
	protected.HandleFunc("DELETE /api/chats/{chat}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteMessages(deps, w, r)
	})
	protected.HandleFunc("GET /api/chats/{chat}/state", func(w http.ResponseWriter, r *http.Request) {
		handleChatState(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			observability.LoggerOrNop(deps.Logger).Error("auth required but auth middleware missing")
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, route := range protectedRoutes {
		mux.Handle(route, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCompletionConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Chat.CompletionURL == "" {
			return errors.New("completion url is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
