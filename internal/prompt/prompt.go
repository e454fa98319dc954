// Package prompt turns schema text and chat history into the bounded turn
// list sent to the completion endpoint.
package prompt

import (
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/assistant"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/tokenizer"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

const DefaultMaxTokens = 4000

// Turn is the wire shape of one prompt message.
type Turn struct {
	Role    transcript.Role `json:"role"`
	Content string          `json:"content"`
}

type Input struct {
	// DatabaseName is empty when the chat has no database selected; the
	// system turn is then empty.
	DatabaseName string
	Tables       []schema.TableStructure
	Generator    assistant.PromptGenerator
	// History is the chat transcript in chronological order.
	History []transcript.Message
}

type Prompt struct {
	Turns []Turn
	// Tokens is the sum of the per-turn token counts.
	Tokens int
	// HistoryKept is how many of the most recent history messages were included.
	HistoryKept int
}

type Builder struct {
	MaxTokens int
	Counter   tokenizer.Counter
}

func NewBuilder(maxTokens int, counter tokenizer.Counter) Builder {
	return Builder{MaxTokens: maxTokens, Counter: counter}
}

// Build assembles [system, history suffix...]. The history suffix is the
// longest run of most recent messages whose tokens, added to the system
// turn, stay within MaxTokens.
func (b Builder) Build(in Input) Prompt {
	limit := b.maxTokens()
	counter := b.counter()

	system := ""
	if in.DatabaseName != "" {
		render := in.Generator
		if render == nil {
			render = func(schemaText string) string { return schemaText }
		}
		system = render(b.SchemaText(in.Tables, render))
	}

	total := counter.Count(system)
	start := len(in.History)
	for i := len(in.History) - 1; i >= 0; i-- {
		n := counter.Count(in.History[i].Content)
		if total+n > limit {
			break
		}
		total += n
		start = i
	}

	turns := make([]Turn, 0, len(in.History)-start+1)
	turns = append(turns, Turn{Role: transcript.RoleSystem, Content: system})
	for _, msg := range in.History[start:] {
		turns = append(turns, Turn{Role: msg.CreatorRole, Content: msg.Content})
	}
	return Prompt{Turns: turns, Tokens: total, HistoryKept: len(in.History) - start}
}

// SchemaText concatenates whole table structures while the rendered system
// prompt stays below half of MaxTokens. A table that would reach the bound
// ends the scan.
func (b Builder) SchemaText(tables []schema.TableStructure, render assistant.PromptGenerator) string {
	half := b.maxTokens() / 2
	counter := b.counter()
	if render == nil {
		render = func(schemaText string) string { return schemaText }
	}

	text := ""
	for _, table := range tables {
		candidate := table.Structure
		if text != "" {
			candidate = text + "\n" + table.Structure
		}
		if counter.Count(render(candidate)) >= half {
			break
		}
		text = candidate
	}
	return text
}

// Count sums the token counts of turns with the builder's counter.
func (b Builder) Count(turns []Turn) int {
	counter := b.counter()
	total := 0
	for _, turn := range turns {
		total += counter.Count(turn.Content)
	}
	return total
}

func (b Builder) maxTokens() int {
	if b.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return b.MaxTokens
}

func (b Builder) counter() tokenizer.Counter {
	if b.Counter == nil {
		return tokenizer.Approximate{}
	}
	return b.Counter
}
