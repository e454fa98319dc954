// Package tokenizer counts model tokens in text.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// Counter reports how many tokens text occupies. Implementations must be
// deterministic and must not decrease when text is extended.
type Counter interface {
	Count(text string) int
}

type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int {
	return f(text)
}

// Tiktoken counts with an OpenAI BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Approximate estimates one token per four characters. It is used when no
// encoding can be loaded.
type Approximate struct{}

func (Approximate) Count(text string) int {
	runes := utf8.RuneCountInString(text)
	return (runes + 3) / 4
}
