// Package completion bridges prompt turns to an OpenAI-compatible model and
// streams the generated text back as raw bytes.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

var ErrInvalidRequest = errors.New("invalid completion request")

// Model is the part of a langchaingo model the service needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Service struct {
	model       Model
	modelName   string
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	opts := []openai.Option{
		openai.WithToken(strings.TrimSpace(cfg.APIKey)),
		openai.WithModel(strings.TrimSpace(cfg.Model)),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewWithModel(llm, cfg, logger), nil
}

func NewWithModel(model Model, cfg Config, logger *zap.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Service{
		model:       model,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		logger:      observability.LoggerOrNop(logger),
	}
}

// Validate checks the request turns before any model call is made.
func Validate(turns []prompt.Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, turn := range turns {
		if _, err := messageType(turn.Role); err != nil {
			return fmt.Errorf("%w: messages[%d]: %w", ErrInvalidRequest, i, err)
		}
	}
	return nil
}

// Stream generates a reply for turns and hands every chunk to onChunk as it
// arrives. An error from onChunk stops generation and is returned.
func (s *Service) Stream(ctx context.Context, turns []prompt.Turn, onChunk func([]byte) error) error {
	if err := Validate(turns); err != nil {
		return err
	}
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == transcript.RoleSystem && strings.TrimSpace(turn.Content) == "" {
			continue
		}
		kind, _ := messageType(turn.Role)
		messages = append(messages, llms.TextParts(kind, turn.Content))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	streamed := 0
	resp, err := s.model.GenerateContent(ctx, messages,
		llms.WithTemperature(s.temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed += len(chunk)
			return onChunk(chunk)
		}),
	)
	if err != nil {
		return fmt.Errorf("generate completion: %w", err)
	}
	// Models without streaming support return the whole reply at once.
	if streamed == 0 && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
		streamed = len(resp.Choices[0].Content)
		if err := onChunk([]byte(resp.Choices[0].Content)); err != nil {
			return err
		}
	}
	s.logger.Debug("completion generated",
		zap.String("model", s.modelName),
		zap.Int("turns", len(messages)),
		zap.Int("bytes", streamed),
	)
	return nil
}

func messageType(role transcript.Role) (llms.ChatMessageType, error) {
	switch role {
	case transcript.RoleSystem:
		return llms.ChatMessageTypeSystem, nil
	case transcript.RoleUser:
		return llms.ChatMessageTypeHuman, nil
	case transcript.RoleAssistant:
		return llms.ChatMessageTypeAI, nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}
