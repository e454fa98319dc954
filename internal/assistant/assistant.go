// Package assistant holds the assistant personas a chat can be bound to.
package assistant

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const SchemaPlaceholder = "{{schema}}"

var ErrNotFound = errors.New("assistant not found")

type Assistant struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Prompt      string `json:"-" yaml:"prompt"`
}

// PromptGenerator renders a system prompt from schema text.
type PromptGenerator func(schema string) string

func (a Assistant) Generate(schema string) string {
	return strings.ReplaceAll(a.Prompt, SchemaPlaceholder, schema)
}

type Catalog struct {
	mu        sync.RWMutex
	items     map[string]Assistant
	order     []string
	defaultID string
}

func NewCatalog(defaultID string, items ...Assistant) (*Catalog, error) {
	c := &Catalog{items: map[string]Assistant{}, defaultID: defaultID}
	if err := c.Add(items...); err != nil {
		return nil, err
	}
	return c, nil
}

// Builtin returns the catalog shipped with the service.
func Builtin(defaultID string) *Catalog {
	c, err := NewCatalog(defaultID, builtinAssistants...)
	if err != nil {
		panic(err)
	}
	return c
}

// Add inserts or replaces assistants, keeping first-seen order.
func (c *Catalog) Add(items ...Assistant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			return fmt.Errorf("assistant id is required")
		}
		if _, exists := c.items[item.ID]; !exists {
			c.order = append(c.order, item.ID)
		}
		c.items[item.ID] = item
	}
	return nil
}

// Get resolves id, falling back to the default assistant when id is empty.
func (c *Catalog) Get(id string) (Assistant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if strings.TrimSpace(id) == "" {
		id = c.defaultID
	}
	item, ok := c.items[id]
	if !ok {
		return Assistant{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return item, nil
}

func (c *Catalog) Generator(id string) (PromptGenerator, error) {
	item, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	return item.Generate, nil
}

func (c *Catalog) List() []Assistant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Assistant, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

type catalogFile struct {
	Assistants []Assistant `yaml:"assistants"`
}

// LoadFile reads assistants from a YAML document with a top-level "assistants" list.
func LoadFile(path string) ([]Assistant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assistant catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]Assistant, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode assistant catalog: %w", err)
	}
	for i, item := range file.Assistants {
		if strings.TrimSpace(item.ID) == "" {
			return nil, fmt.Errorf("assistant %d: id is required", i)
		}
	}
	return file.Assistants, nil
}

var builtinAssistants = []Assistant{
	{
		ID:          "sql-chat-bot",
		Name:        "SQL Chat Bot",
		Description: "Answers questions about the selected database and writes SQL for it.",
		Prompt: "You are a SQL expert. This is the schema of the database the user is working with:\n" +
			SchemaPlaceholder + "\n" +
			"Answer the user's questions about this database. When a query helps, write it in a ```sql fenced block using only tables and columns from the schema above.",
	},
	{
		ID:          "general-bot",
		Name:        "General Bot",
		Description: "A general purpose assistant that ignores the database schema.",
		Prompt:      "You are a helpful assistant. Answer concisely.",
	},
}
