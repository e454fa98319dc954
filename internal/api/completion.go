package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/completion"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
)

type completionRequest struct {
	Messages []prompt.Turn `json:"messages"`
}

// handleCompletion streams generated text as raw UTF-8 chunks. Errors before
// the first chunk use the {error:{message}} contract; after that the
// connection is aborted so the client sees an abnormal end of stream.
func handleCompletion(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Completion == nil {
		writeCompletionError(w, http.StatusServiceUnavailable, "completion is not configured")
		return
	}

	var req completionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeCompletionError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := completion.Validate(req.Messages); err != nil {
		writeCompletionError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	err := deps.Completion.Stream(r.Context(), req.Messages, func(chunk []byte) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err == nil {
		if !started {
			w.WriteHeader(http.StatusOK)
		}
		return
	}

	logger := observability.LoggerOrNop(deps.Logger)
	if !started {
		status := http.StatusBadGateway
		if errors.Is(err, completion.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		logger.Warn("completion failed", zap.String("trace_id", observability.TraceIDFromContext(r.Context())), zap.Error(err))
		writeCompletionError(w, status, err.Error())
		return
	}
	logger.Warn("completion stream aborted", zap.String("trace_id", observability.TraceIDFromContext(r.Context())), zap.Error(err))
	panic(http.ErrAbortHandler)
}

func writeCompletionError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": message}})
}
