// Package transcript stores the ordered messages of each chat.
package transcript

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrFinalized = errors.New("message is already complete")
	ErrDuplicate = errors.New("message already exists")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	CreatorID   string    `json:"creatorId"`
	CreatorRole Role      `json:"creatorRole"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	IsGenerated bool      `json:"isGenerated"`
}

// Store persists messages. Content of a message only grows until it is
// marked generated; after that Append fails with ErrFinalized.
type Store interface {
	Add(ctx context.Context, msg Message) error
	Append(ctx context.Context, id, chunk string) (Message, error)
	MarkGenerated(ctx context.Context, id string) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
	List(ctx context.Context, chatID string) ([]Message, error)
	DeleteChat(ctx context.Context, chatID string) error
}

// Observer is notified with a snapshot after every successful mutation.
type Observer func(Message)

type observed struct {
	Store
	observers []Observer
}

// Observe wraps store so that observers see each added or updated message.
func Observe(store Store, observers ...Observer) Store {
	return &observed{Store: store, observers: observers}
}

func (o *observed) Add(ctx context.Context, msg Message) error {
	if err := o.Store.Add(ctx, msg); err != nil {
		return err
	}
	o.notify(msg)
	return nil
}

func (o *observed) Append(ctx context.Context, id, chunk string) (Message, error) {
	msg, err := o.Store.Append(ctx, id, chunk)
	if err != nil {
		return msg, err
	}
	o.notify(msg)
	return msg, nil
}

func (o *observed) MarkGenerated(ctx context.Context, id string) (Message, error) {
	msg, err := o.Store.MarkGenerated(ctx, id)
	if err != nil {
		return msg, err
	}
	o.notify(msg)
	return msg, nil
}

func (o *observed) notify(msg Message) {
	for _, observer := range o.observers {
		observer(msg)
	}
}
