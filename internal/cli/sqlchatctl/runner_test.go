package sqlchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--api-key", "k1",
		"health",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/api/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunTablesSendsConnection(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/connection/tables" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":["orders","users"]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--engine", "mysql",
		"--host", "db.local",
		"--port", "3306",
		"--user", "root",
		"--database", "shop",
		"tables",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got["db"] != "shop" {
		t.Fatalf("db = %v", got["db"])
	}
	conn, _ := got["connection"].(map[string]any)
	if conn["engineType"] != "MYSQL" || conn["host"] != "db.local" || conn["username"] != "root" {
		t.Fatalf("connection = %v", conn)
	}
	if stdout.String() != "orders\nusers\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunExecRendersTable(t *testing.T) {
	var gotStatement string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Statement string `json:"statement"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotStatement = body.Statement
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"ada"},{"id":2,"name":null}],"columns":["id","name"]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--engine", "sqlite",
		"--host", "/tmp/app.db",
		"exec", "SELECT id, name FROM users",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotStatement != "SELECT id, name FROM users" {
		t.Fatalf("statement = %q", gotStatement)
	}
	out := stdout.String()
	for _, want := range []string{"ada", "NULL", "(2 rows)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q: %q", want, out)
		}
	}
}

func TestRunExecFailureReturnsOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"no such table: nope"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--engine", "sqlite",
		"--host", "/tmp/app.db",
		"exec", "SELECT * FROM nope",
	}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "no such table: nope") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunAskPostsMessage(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"chat_id":"c1","message":{"id":"m2","chatId":"c1","creatorRole":"assistant","content":"SELECT 1;","isGenerated":true}}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"ask", "--chat", "c1", "how many users?",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/api/chats/c1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if got["content"] != "how many users?" {
		t.Fatalf("content = %v", got["content"])
	}
	if _, ok := got["connection"]; ok {
		t.Fatalf("connection sent without --engine: %v", got)
	}
	if stdout.String() != "SELECT 1;\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunHistoryPrintsMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/chats/c1/messages" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"chat_id":"c1","messages":[
			{"id":"m1","creatorRole":"user","content":"hi","createdAt":"2026-01-02T03:04:05Z","isGenerated":true},
			{"id":"m2","creatorRole":"assistant","content":"SEL","createdAt":"2026-01-02T03:04:06Z","isGenerated":false}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "history", "--chat", "c1"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	want := "[2026-01-02T03:04:05Z] user: hi\n[2026-01-02T03:04:06Z] assistant (incomplete): SEL\n"
	if stdout.String() != want {
		t.Fatalf("stdout = %q, want %q", stdout.String(), want)
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"unknown-command"},
		{"exec"},
		{"tables"},
		{"ask", "question"},
		{"--engine", "oracle", "--host", "h", "databases"},
	}
	for _, args := range cases {
		if code := Run(context.Background(), args, Options{}); code != 2 {
			t.Fatalf("Run(%v) exit code = %d, want 2", args, code)
		}
	}
}

func TestRunUnreachableServer(t *testing.T) {
	code := Run(context.Background(), []string{"--base-url", "http://127.0.0.1:1", "health"}, Options{Timeout: time.Second})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
