package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
)

const maxErrorBodyBytes = 64 << 10

type ClientConfig struct {
	Endpoint string
	APIKey   string
	// RequestTimeout bounds the wait for response headers.
	RequestTimeout time.Duration
	// IdleTimeout bounds the gap between body reads once streaming started.
	IdleTimeout time.Duration
	HTTPClient  *http.Client
}

// Client posts prompts to the completion endpoint and hands back the
// streaming response body.
type Client struct {
	endpoint       string
	apiKey         string
	requestTimeout time.Duration
	idleTimeout    time.Duration
	httpClient     *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("completion endpoint is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:       cfg.Endpoint,
		apiKey:         cfg.APIKey,
		requestTimeout: cfg.RequestTimeout,
		idleTimeout:    cfg.IdleTimeout,
		httpClient:     httpClient,
	}, nil
}

type completionRequest struct {
	Messages []prompt.Turn `json:"messages"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends turns and returns the response body. The caller must close it.
func (c *Client) Complete(ctx context.Context, turns []prompt.Turn) (io.ReadCloser, error) {
	payload, err := json.Marshal(completionRequest{Messages: turns})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	var headerTimer *time.Timer
	if c.requestTimeout > 0 {
		headerTimer = time.AfterFunc(c.requestTimeout, cancel)
	}
	resp, err := c.httpClient.Do(req)
	if headerTimer != nil {
		headerTimer.Stop()
	}
	if err != nil {
		cancel()
		return nil, &TransportError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp)}
	}
	if resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0 {
		cancel()
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, ErrEmptyResponse
	}
	return newIdleBody(resp.Body, c.idleTimeout, cancel), nil
}

func readErrorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// idleBody cancels the request when no bytes arrive for the idle timeout.
type idleBody struct {
	rc     io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	cancel context.CancelFunc
	once   sync.Once
}

func newIdleBody(rc io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{rc: rc, idle: idle, cancel: cancel}
	if idle > 0 {
		b.timer = time.AfterFunc(idle, cancel)
	}
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 && b.timer != nil {
		b.timer.Reset(b.idle)
	}
	return n, err
}

func (b *idleBody) Close() error {
	var err error
	b.once.Do(func() {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.cancel()
		err = b.rc.Close()
	})
	return err
}
