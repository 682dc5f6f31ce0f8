package handler

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v72"

	"github.com/actualpc/phillip-therapy/internal/audit"
	"github.com/actualpc/phillip-therapy/internal/billing"
	"github.com/actualpc/phillip-therapy/internal/ledger"
	"github.com/actualpc/phillip-therapy/internal/llm"
	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/internal/safety"
	"github.com/actualpc/phillip-therapy/internal/service"
	"github.com/actualpc/phillip-therapy/pkg/logger"
)

// scriptedClient is an llm.Client returning canned output.
type scriptedClient struct {
	reply  string
	deltas []string
	err    error
	calls  int
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.reply, TotalTokens: 12}, nil
}

func (c *scriptedClient) Stream(ctx context.Context, _ *llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan llm.StreamEvent, len(c.deltas)+1)
	for _, d := range c.deltas {
		ch <- llm.StreamEvent{Delta: d}
	}
	ch <- llm.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

type env struct {
	client  *scriptedClient
	store   *ledger.MemoryStore
	sink    *audit.MemorySink
	chat    *ChatHandler
	stream  *StreamHandler
	credits *CreditsHandler
}

func newEnv(credits int, client *scriptedClient) *env {
	log := logger.NewNop()
	store := ledger.NewMemoryStore(credits)
	sink := audit.NewMemorySink()
	svc := service.NewChatService(service.ChatServiceConfig{
		Ledger:   store,
		Policy:   safety.DefaultPolicy(),
		Relay:    llm.NewRelay(client, time.Second),
		Recorder: audit.NewRecorder(log, sink),
		Logger:   log,
	})
	return &env{
		client:  client,
		store:   store,
		sink:    sink,
		chat:    NewChatHandler(svc, "gpt-4o-mini", log),
		stream:  NewStreamHandler(svc, "gpt-4o-mini", log),
		credits: NewCreditsHandler(store, log),
	}
}

func chatBody(userID, content string) string {
	return fmt.Sprintf(`{"userId":%q,"messages":[{"role":"user","content":%q}]}`, userID, content)
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h(rec, req)
	return rec
}

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	event string
	data  string
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			frames = append(frames, cur)
			cur = sseFrame{}
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return frames
}

func TestChat_CreditScenario(t *testing.T) {
	e := newEnv(3, &scriptedClient{reply: " Tell me more. "})

	for i := 0; i < 3; i++ {
		rec := post(e.chat.Chat, "/api/chat", chatBody("u1", "hello"))
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d, body = %s", i+1, rec.Code, rec.Body)
		}
		var resp model.ChatResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Reply != "Tell me more." || resp.Crisis {
			t.Errorf("call %d: resp = %+v", i+1, resp)
		}
	}

	rec := post(e.chat.Chat, "/api/chat", chatBody("u1", "hello"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"out_of_credits"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestChat_ValidationError(t *testing.T) {
	e := newEnv(3, &scriptedClient{reply: "ok"})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no messages", `{"userId":"u1","messages":[]}`},
		{"missing content", `{"userId":"u1","messages":[{"role":"user"}]}`},
		{"bad mode", `{"userId":"u1","mode":"x","messages":[{"role":"user","content":"hi"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(e.chat.Chat, "/api/chat", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "invalid_request") {
				t.Errorf("body = %s", rec.Body)
			}
		})
	}
	if e.client.calls != 0 {
		t.Errorf("provider calls = %d, want 0", e.client.calls)
	}
	if bal, _ := e.store.Balance(context.Background(), "u1"); bal != 3 {
		t.Errorf("Balance = %d, want 3", bal)
	}
}

func TestChat_ProviderFailure(t *testing.T) {
	e := newEnv(3, &scriptedClient{err: errors.New("upstream 502")})

	rec := post(e.chat.Chat, "/api/chat", chatBody("u1", "hello"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "Server error" || !strings.Contains(body["details"], "upstream 502") {
		t.Errorf("body = %v", body)
	}
}

func TestChat_CrisisReply(t *testing.T) {
	e := newEnv(3, &scriptedClient{reply: "model text"})

	rec := post(e.chat.Chat, "/api/chat", chatBody("u1", "I want to kill myself"))
	var resp model.ChatResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Crisis || resp.Reply != safety.DefaultCrisisScript {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStream_Deltas(t *testing.T) {
	e := newEnv(3, &scriptedClient{deltas: []string{"Hel", "lo"}})

	rec := post(e.stream.Stream, "/api/chat/stream", chatBody("u1", "hello"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, no-transform" {
		t.Errorf("Cache-Control = %q", cc)
	}

	frames := parseSSE(t, rec.Body.String())
	want := []string{`{"delta":"Hel"}`, `{"delta":"lo"}`, `{"done":true}`}
	if len(frames) != len(want) {
		t.Fatalf("frames = %+v", frames)
	}
	for i, f := range frames {
		if f.event != "" || f.data != want[i] {
			t.Errorf("frame %d = %+v, want data %s", i, f, want[i])
		}
	}
}

func TestStream_CrisisSingleFrame(t *testing.T) {
	e := newEnv(3, &scriptedClient{deltas: []string{"unvetted"}})

	rec := post(e.stream.Stream, "/api/chat/stream", chatBody("u1", "I just want to end it all"))
	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 2 {
		t.Fatalf("frames = %+v, want crisis + done", frames)
	}
	var delta model.DeltaEvent
	if err := json.Unmarshal([]byte(frames[0].data), &delta); err != nil {
		t.Fatal(err)
	}
	if delta.Delta != safety.DefaultCrisisScript {
		t.Errorf("delta = %q", delta.Delta)
	}
	if frames[1].data != `{"done":true}` {
		t.Errorf("last frame = %+v", frames[1])
	}
	if e.client.calls != 0 {
		t.Errorf("provider calls = %d, want 0", e.client.calls)
	}
}

func TestStream_OutOfCredits(t *testing.T) {
	e := newEnv(0, &scriptedClient{deltas: []string{"x"}})

	rec := post(e.stream.Stream, "/api/chat/stream", chatBody("u1", "hello"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 1 || frames[0].event != "error" || frames[0].data != `{"error":"out_of_credits"}` {
		t.Errorf("frames = %+v", frames)
	}
}

func TestStream_ProviderErrorFrame(t *testing.T) {
	e := newEnv(3, &scriptedClient{err: errors.New("boom")})

	rec := post(e.stream.Stream, "/api/chat/stream", chatBody("u1", "hello"))
	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 1 || frames[0].event != "error" {
		t.Fatalf("frames = %+v", frames)
	}
	if !strings.Contains(frames[0].data, "boom") {
		t.Errorf("error frame = %s", frames[0].data)
	}
}

func TestCredits(t *testing.T) {
	e := newEnv(3, &scriptedClient{})
	ctx := context.Background()
	e.store.TryConsume(ctx, "u1")

	tests := []struct {
		query string
		want  model.CreditsResponse
	}{
		{"?userId=u1", model.CreditsResponse{UserID: "u1", Credits: 2}},
		{"", model.CreditsResponse{UserID: model.AnonymousUserID, Credits: 3}},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.credits.Get(rec, httptest.NewRequest(http.MethodGet, "/api/credits"+tt.query, nil))
		var got model.CreditsResponse
		json.NewDecoder(rec.Body).Decode(&got)
		if got != tt.want {
			t.Errorf("GET %q = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(nil)

	for _, fn := range []http.HandlerFunc{h.Health, h.Ready} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
			t.Errorf("response = %d %s", rec.Code, rec.Body)
		}
	}
}

const testWebhookSecret = "whsec_handler"

func signed(payload string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhook(t *testing.T) {
	log := logger.NewNop()
	store := ledger.NewMemoryStore(3)
	client, err := billing.NewStripeClient(billing.StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})
	if err != nil {
		t.Fatal(err)
	}
	h := NewStripeHandler(service.NewPaymentService(store, client, client, audit.NewRecorder(log), 20, log), log)

	payload := fmt.Sprintf(`{"id":"evt_9","object":"event","api_version":%q,"type":"checkout.session.completed","data":{"object":{"id":"cs_9","object":"checkout.session","metadata":{"userId":"u7"}}}}`, stripe.APIVersion)

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
		req.Header.Set("Stripe-Signature", "t=1,v1=00")
		rec := httptest.NewRecorder()
		h.Webhook(rec, req)
		if rec.Code != http.StatusBadRequest || !strings.HasPrefix(rec.Body.String(), "Webhook Error:") {
			t.Errorf("response = %d %s", rec.Code, rec.Body)
		}
		if bal, _ := store.Balance(context.Background(), "u7"); bal != 3 {
			t.Errorf("Balance = %d, want 3", bal)
		}
	})

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
		req.Header.Set("Stripe-Signature", signed(payload))
		rec := httptest.NewRecorder()
		h.Webhook(rec, req)
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"received":true}` {
			t.Errorf("response = %d %s", rec.Code, rec.Body)
		}
		if bal, _ := store.Balance(context.Background(), "u7"); bal != 23 {
			t.Errorf("Balance = %d, want 23", bal)
		}
	})
}

func TestStripeNotConfigured(t *testing.T) {
	log := logger.NewNop()
	h := NewStripeHandler(service.NewPaymentService(ledger.NewMemoryStore(3), nil, nil, audit.NewRecorder(log), 20, log), log)

	rec := post(h.CreateCheckoutSession, "/api/stripe/create-checkout-session", `{"userId":"u1"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Stripe not configured") {
		t.Errorf("checkout = %d %s", rec.Code, rec.Body)
	}

	rec = post(h.Webhook, "/api/stripe/webhook", `{}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Stripe not configured") {
		t.Errorf("webhook = %d %s", rec.Code, rec.Body)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.test/cs_1"}`)
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{URL: stripe.String(srv.URL)})
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	client, err := billing.NewStripeClient(billing.StripeConfig{
		SecretKey: "sk_test",
		PriceID:   "price_1",
		Backends:  backends,
	})
	if err != nil {
		t.Fatal(err)
	}
	log := logger.NewNop()
	h := NewStripeHandler(service.NewPaymentService(ledger.NewMemoryStore(3), client, client, audit.NewRecorder(log), 20, log), log)

	rec := post(h.CreateCheckoutSession, "/api/stripe/create-checkout-session", `{"userId":"u1"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "https://checkout.stripe.test/cs_1") {
		t.Errorf("response = %d %s", rec.Code, rec.Body)
	}

	rec = post(h.CreateCheckoutSession, "/api/stripe/create-checkout-session", ``)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Missing userId") {
		t.Errorf("missing user = %d %s", rec.Code, rec.Body)
	}
}
