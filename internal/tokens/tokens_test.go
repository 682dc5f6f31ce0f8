package tokens

import (
	"testing"

	"github.com/tiktoken-go/tokenizer"
)

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		model string
		want  tokenizer.Encoding
	}{
		{"gpt-4o-mini", tokenizer.O200kBase},
		{"GPT-4o", tokenizer.O200kBase},
		{"o3-mini", tokenizer.O200kBase},
		{"gpt-4", tokenizer.Cl100kBase},
		{"gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"claude-3-5-sonnet-20241022", tokenizer.Cl100kBase},
	}

	for _, tt := range tests {
		if got := encodingFor(tt.model); got != tt.want {
			t.Errorf("encodingFor(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestCount(t *testing.T) {
	c := NewCounter()

	if got := c.Count("gpt-4o-mini"); got != 0 {
		t.Errorf("Count() with no text = %d, want 0", got)
	}

	one := c.Count("gpt-4o-mini", "hello there, how are you feeling today?")
	if one <= 0 {
		t.Fatalf("Count() = %d, want > 0", one)
	}

	two := c.Count("gpt-4o-mini", "hello there, how are you feeling today?", "hello there, how are you feeling today?")
	if two != 2*one {
		t.Errorf("Count() of two copies = %d, want %d", two, 2*one)
	}
}

func TestRoughCount(t *testing.T) {
	if got := roughCount("ab"); got != 1 {
		t.Errorf("roughCount(short) = %d, want 1", got)
	}
	if got := roughCount("abcdefgh"); got != 2 {
		t.Errorf("roughCount(8 bytes) = %d, want 2", got)
	}
}
