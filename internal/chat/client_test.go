package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

func TestClientCompleteStreamsBody(t *testing.T) {
	var got completionRequest
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "SELECT ")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, "1;")
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, APIKey: "secret", RequestTimeout: time.Second, IdleTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	body, err := client.Complete(context.Background(), []prompt.Turn{
		{Role: transcript.RoleSystem, Content: "schema"},
		{Role: transcript.RoleUser, Content: "count rows"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(raw) != "SELECT 1;" {
		t.Fatalf("body = %q", raw)
	}
	if gotKey != "secret" {
		t.Fatalf("X-API-Key = %q", gotKey)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != transcript.RoleUser || got.Messages[1].Content != "count rows" {
		t.Fatalf("request messages = %#v", got.Messages)
	}
}

func TestClientCompleteNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"model overloaded"}}`)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Complete() error = %v, want ErrTransport", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Complete() error = %T", err)
	}
	if transportErr.StatusCode != http.StatusInternalServerError || transportErr.Message != "model overloaded" {
		t.Fatalf("TransportError = %#v", transportErr)
	}
}

func TestClientCompleteEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), nil); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Complete() error = %v, want ErrEmptyResponse", err)
	}
}

func TestClientCompleteUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.StatusCode != 0 {
		t.Fatalf("Complete() error = %v, want unreachable TransportError", err)
	}
}

func TestClientCompleteHeaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, RequestTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	started := time.Now()
	if _, err := client.Complete(context.Background(), nil); !errors.Is(err, ErrTransport) {
		t.Fatalf("Complete() error = %v, want ErrTransport", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("Complete() took %s", elapsed)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected endpoint validation error")
	}
}
