// Package tokens estimates token counts for audit records.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter estimates token counts with tiktoken encodings. Unknown models fall
// back to cl100k_base; a codec failure falls back to one token per four bytes.
type Counter struct {
	mu    sync.RWMutex
	cache map[tokenizer.Encoding]tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{cache: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Count returns the estimated number of tokens in texts for model.
func (c *Counter) Count(model string, texts ...string) int {
	codec, err := c.codec(encodingFor(model))

	total := 0
	for _, text := range texts {
		if text == "" {
			continue
		}
		if err != nil {
			total += roughCount(text)
			continue
		}
		ids, _, encErr := codec.Encode(text)
		if encErr != nil {
			total += roughCount(text)
			continue
		}
		total += len(ids)
	}
	return total
}

func (c *Counter) codec(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	c.mu.RLock()
	codec, ok := c.cache[enc]
	c.mu.RUnlock()
	if ok {
		return codec, nil
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[enc] = codec
	c.mu.Unlock()
	return codec, nil
}

func encodingFor(model string) tokenizer.Encoding {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"),
		strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"):
		return tokenizer.O200kBase
	default:
		return tokenizer.Cl100kBase
	}
}

func roughCount(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
