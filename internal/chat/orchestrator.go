// Package chat drives one user turn from message to streamed assistant reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/assistant"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/prompt"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/stream"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

type State string

const (
	StateIdle             State = "idle"
	StateBuilding         State = "building"
	StateAwaitingResponse State = "awaiting_response"
	StateStreaming        State = "streaming"
	StateFailed           State = "failed"
)

const defaultUserID = "user"

type SchemaSource interface {
	GetOrFetch(ctx context.Context, conn connector.Connection, databaseName string) ([]schema.TableStructure, error)
}

type Assistants interface {
	Generator(id string) (assistant.PromptGenerator, error)
}

type Completer interface {
	Complete(ctx context.Context, turns []prompt.Turn) (io.ReadCloser, error)
}

// Turn is one user message together with the chat's bindings.
type Turn struct {
	ChatID       string
	UserID       string
	Connection   *connector.Connection
	DatabaseName string
	AssistantID  string
	Content      string
}

type Status struct {
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

type Dependencies struct {
	Schemas    SchemaSource
	Assistants Assistants
	Builder    prompt.Builder
	Completer  Completer
	Store      transcript.Store
	Logger     *zap.Logger
	ChunkSize  int
	Now        func() time.Time
	NewID      func() string
}

type Orchestrator struct {
	deps      Dependencies
	logger    *zap.Logger
	assembler *stream.Assembler

	mu     sync.Mutex
	chats  map[string]State
	failed map[string]string
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	logger := observability.LoggerOrNop(deps.Logger)
	assembler := stream.NewAssembler(deps.Store, logger)
	assembler.Now = deps.Now
	assembler.NewID = deps.NewID
	return &Orchestrator{
		deps:      deps,
		logger:    logger,
		assembler: assembler,
		chats:     map[string]State{},
		failed:    map[string]string{},
	}
}

// State reports where the chat's current request is. Chats without a request
// in flight are idle; the last failure, if any, is kept until the next Send.
func (o *Orchestrator) State(chatID string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.chats[chatID]
	if !ok {
		state = StateIdle
	}
	return Status{State: state, LastError: o.failed[chatID]}
}

// Send appends the user message, streams the assistant reply into the
// transcript and returns it. A second Send for a chat with a request in
// flight fails with ErrInFlight. Interruptions after the first chunk are
// not errors: the partial reply is returned with IsGenerated false. A stream
// that breaks before any content fails the turn with ErrTransport.
func (o *Orchestrator) Send(ctx context.Context, turn Turn) (msg transcript.Message, err error) {
	if strings.TrimSpace(turn.ChatID) == "" {
		return transcript.Message{}, fmt.Errorf("chat id is required")
	}
	if strings.TrimSpace(turn.Content) == "" {
		return transcript.Message{}, ErrEmptyMessage
	}
	if !o.begin(turn.ChatID) {
		observability.ObserveChatTurn("in_flight")
		return transcript.Message{}, ErrInFlight
	}
	interrupted := false
	defer func() { o.finish(turn.ChatID, err, interrupted) }()

	tables, err := o.loadSchema(ctx, turn)
	if err != nil {
		return transcript.Message{}, err
	}
	generate, err := o.deps.Assistants.Generator(turn.AssistantID)
	if err != nil {
		return transcript.Message{}, err
	}
	history, err := o.deps.Store.List(ctx, turn.ChatID)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("load transcript: %w", err)
	}

	userID := turn.UserID
	if userID == "" {
		userID = defaultUserID
	}
	userMsg := transcript.Message{
		ID:          o.newID(),
		ChatID:      turn.ChatID,
		CreatorID:   userID,
		CreatorRole: transcript.RoleUser,
		Content:     turn.Content,
		CreatedAt:   o.now(),
		IsGenerated: true,
	}

	built := o.deps.Builder.Build(prompt.Input{
		DatabaseName: turn.DatabaseName,
		Tables:       tables,
		Generator:    generate,
		History:      append(history, userMsg),
	})
	if built.HistoryKept == 0 {
		return transcript.Message{}, ErrPromptTooLarge
	}
	if err := o.deps.Store.Add(ctx, userMsg); err != nil {
		return transcript.Message{}, fmt.Errorf("append user message: %w", err)
	}
	observability.ObservePromptTokens(built.Tokens)

	o.transition(turn.ChatID, StateAwaitingResponse)
	body, err := o.deps.Completer.Complete(ctx, built.Turns)
	if err != nil {
		return transcript.Message{}, err
	}
	defer func() { _ = body.Close() }()

	o.transition(turn.ChatID, StateStreaming)
	msg, err = o.assembler.Assemble(ctx, turn.ChatID, assistantCreator(turn.AssistantID), stream.NewReader(body, o.deps.ChunkSize))
	if errors.Is(err, stream.ErrInterrupted) {
		if msg.Content == "" {
			return msg, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		o.logger.Warn("assistant stream interrupted",
			zap.String("chat_id", turn.ChatID),
			zap.String("message_id", msg.ID),
			zap.Int("received_bytes", len(msg.Content)),
			zap.Error(err),
		)
		interrupted = true
		return msg, nil
	}
	return msg, err
}

func (o *Orchestrator) loadSchema(ctx context.Context, turn Turn) ([]schema.TableStructure, error) {
	if turn.DatabaseName == "" || turn.Connection == nil {
		return nil, nil
	}
	tables, err := o.deps.Schemas.GetOrFetch(ctx, *turn.Connection, turn.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("load schema for %s: %w", turn.DatabaseName, err)
	}
	return tables, nil
}

func (o *Orchestrator) begin(chatID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.chats[chatID]; ok && state != StateIdle {
		return false
	}
	o.chats[chatID] = StateBuilding
	delete(o.failed, chatID)
	o.logger.Debug("chat state", zap.String("chat_id", chatID), zap.String("from", string(StateIdle)), zap.String("to", string(StateBuilding)))
	return true
}

func (o *Orchestrator) transition(chatID string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logger.Debug("chat state",
		zap.String("chat_id", chatID),
		zap.String("from", string(o.chats[chatID])),
		zap.String("to", string(state)),
	)
	o.chats[chatID] = state
}

// finish passes through Failed when err is set and always ends Idle.
func (o *Orchestrator) finish(chatID string, err error, interrupted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case err != nil:
		o.logger.Debug("chat state", zap.String("chat_id", chatID), zap.String("from", string(o.chats[chatID])), zap.String("to", string(StateFailed)))
		o.chats[chatID] = StateFailed
		o.failed[chatID] = err.Error()
		o.logger.Warn("chat turn failed", zap.String("chat_id", chatID), zap.Error(err))
		observability.ObserveChatTurn("failed")
	case interrupted:
		observability.ObserveChatTurn("interrupted")
	default:
		observability.ObserveChatTurn("ok")
	}
	o.logger.Debug("chat state", zap.String("chat_id", chatID), zap.String("from", string(o.chats[chatID])), zap.String("to", string(StateIdle)))
	delete(o.chats, chatID)
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Now != nil {
		return o.deps.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) newID() string {
	if o.deps.NewID != nil {
		return o.deps.NewID()
	}
	return uuid.NewString()
}

func assistantCreator(assistantID string) string {
	if assistantID == "" {
		return "assistant"
	}
	return assistantID
}
