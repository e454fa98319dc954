package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

const chatBody = `{"messages":[{"role":"system","content":"schema"},{"role":"user","content":"count users"}]}`

func TestCompletionStreamsChunks(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"SELECT ", "COUNT(*) ", "FROM users;"}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Completion: streamer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(chatBody)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "SELECT COUNT(*) FROM users;" {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if !rr.Flushed {
		t.Fatal("expected flushed response")
	}
	if len(streamer.turns) != 2 || streamer.turns[1].Role != transcript.RoleUser {
		t.Fatalf("turns = %#v", streamer.turns)
	}
}

func TestCompletionValidation(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Completion: &fakeStreamer{}})
	for _, payload := range []string{`{"messages":[]}`, `{"messages":[{"role":"tool","content":"x"}]}`, `{`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("payload %s: status = %d", payload, rr.Code)
		}
		errBody, ok := decodeBody(t, rr)["error"].(map[string]any)
		if !ok || errBody["message"] == "" {
			t.Fatalf("payload %s: body = %s", payload, rr.Body.String())
		}
	}
}

func TestCompletionDisabled(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(chatBody)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCompletionFailureBeforeFirstChunk(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Completion: &fakeStreamer{err: errors.New("upstream 429: rate limited")}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(chatBody)))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	errBody := decodeBody(t, rr)["error"].(map[string]any)
	if !strings.Contains(errBody["message"].(string), "rate limited") {
		t.Fatalf("error = %v", errBody)
	}
}

func TestCompletionFailureAfterFirstChunkAbortsStream(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"Par"}, err: errors.New("upstream reset")}
	server := httptest.NewServer(NewHandler(loadConfig(t, nil), Dependencies{
		Completion: streamer,
		Logger:     zaptest.NewLogger(t),
	}))
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/chat", "application/json", strings.NewReader(chatBody))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatal("expected abnormal end of stream")
	}
	if string(raw) != "Par" {
		t.Fatalf("partial body = %q", raw)
	}
}
