package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient("test-key", srv.URL+"/v1")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOpenAIClient_Complete(t *testing.T) {
	c := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Model != "gpt-4o-mini" || len(body.Messages) != 1 || body.Messages[0].Content != "hi" {
			t.Errorf("unexpected request body: %+v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	})

	resp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello!" || resp.TotalTokens != 7 || resp.StopReason != "stop" {
		t.Errorf("Complete() = %+v", resp)
	}
}

func TestOpenAIClient_CompleteNoChoices(t *testing.T) {
	c := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[]}`)
	})

	resp, err := NewRelay(c, 0).Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != FallbackReply {
		t.Errorf("Content = %q, want fallback", resp.Content)
	}
}

func TestOpenAIClient_CompleteServerError(t *testing.T) {
	c := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	_, err := NewRelay(c, 0).Complete(context.Background(), testRequest())

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
}

func TestOpenAIClient_Stream(t *testing.T) {
	c := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo", ""} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := NewRelay(c, 0).Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var text string
	var done bool
	for ev := range ch {
		if ev.Err != nil {
			t.Fatalf("stream error: %v", ev.Err)
		}
		text += ev.Delta
		done = done || ev.Done
	}

	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
	if !done {
		t.Error("stream did not end with Done")
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(ProviderConfig{Provider: "bogus"}); err == nil {
		t.Error("NewClient(bogus) expected error")
	}
	if _, err := NewClient(ProviderConfig{Provider: ProviderOpenAI}); err == nil {
		t.Error("NewClient(openai) without key expected error")
	}
	c, err := NewClient(ProviderConfig{OpenAIAPIKey: "k"})
	if err != nil || c.Name() != "openai" {
		t.Errorf("NewClient(default) = %v, %v", c, err)
	}
}
