package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/observability"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

var ErrInterrupted = errors.New("stream interrupted before completion")

type Assembler struct {
	Store  transcript.Store
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

func NewAssembler(store transcript.Store, logger *zap.Logger) *Assembler {
	return &Assembler{Store: store, Logger: observability.LoggerOrNop(logger)}
}

// Assemble registers an empty, incomplete assistant message and grows it
// chunk by chunk. The message is marked generated only when the reader ends
// normally. On interruption the partial message stays in the store and the
// returned error wraps ErrInterrupted.
func (a *Assembler) Assemble(ctx context.Context, chatID, creatorID string, reader ChunkReader) (transcript.Message, error) {
	msg := transcript.Message{
		ID:          a.newID(),
		ChatID:      chatID,
		CreatorID:   creatorID,
		CreatorRole: transcript.RoleAssistant,
		CreatedAt:   a.now(),
	}
	if err := a.Store.Add(ctx, msg); err != nil {
		return transcript.Message{}, fmt.Errorf("register assistant message: %w", err)
	}

	chunks := 0
	for {
		chunk, err := reader.Next(ctx)
		if err == io.EOF {
			done, err := a.Store.MarkGenerated(context.WithoutCancel(ctx), msg.ID)
			if err != nil {
				return msg, fmt.Errorf("complete assistant message: %w", err)
			}
			a.logger().Debug("assistant message complete",
				zap.String("chat_id", chatID),
				zap.String("message_id", msg.ID),
				zap.Int("chunks", chunks),
			)
			return done, nil
		}
		if err != nil {
			return msg, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		if chunk == "" {
			continue
		}
		updated, err := a.Store.Append(context.WithoutCancel(ctx), msg.ID, chunk)
		if err != nil {
			return msg, fmt.Errorf("append chunk: %w", err)
		}
		msg = updated
		chunks++
		observability.IncrementStreamChunks()
	}
}

func (a *Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Assembler) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

func (a *Assembler) logger() *zap.Logger {
	return observability.LoggerOrNop(a.Logger)
}
