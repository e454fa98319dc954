package transcript

import (
	"context"
	"fmt"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*Message
	chats    map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: map[string]*Message{}, chats: map[string][]string{}}
}

func (s *MemoryStore) Add(_ context.Context, msg Message) error {
	if msg.ID == "" || msg.ChatID == "" {
		return fmt.Errorf("message id and chat id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, msg.ID)
	}
	stored := msg
	s.messages[msg.ID] = &stored
	s.chats[msg.ChatID] = append(s.chats[msg.ChatID], msg.ID)
	return nil
}

func (s *MemoryStore) Append(_ context.Context, id, chunk string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if msg.IsGenerated {
		return *msg, fmt.Errorf("%w: %s", ErrFinalized, id)
	}
	msg.Content += chunk
	return *msg, nil
}

func (s *MemoryStore) MarkGenerated(_ context.Context, id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if msg.IsGenerated {
		return *msg, fmt.Errorf("%w: %s", ErrFinalized, id)
	}
	msg.IsGenerated = true
	return *msg, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *msg, nil
}

func (s *MemoryStore) List(_ context.Context, chatID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.chats[chatID]
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.messages[id])
	}
	return out, nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.chats[chatID] {
		delete(s.messages, id)
	}
	delete(s.chats, chatID)
	return nil
}
