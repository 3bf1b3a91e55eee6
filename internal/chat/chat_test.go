package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"
)

type fakeConversation struct {
	prompt string
	sent   []string
	err    error
}

func (c *fakeConversation) Send(ctx context.Context, text string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, text)
	return fmt.Sprintf("reply %d", len(c.sent)), nil
}

type fakeBackend struct {
	mu      sync.Mutex
	convs   []*fakeConversation
	sendErr error
	newErr  error
}

func (b *fakeBackend) NewConversation(ctx context.Context, systemPrompt string) (Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newErr != nil {
		return nil, b.newErr
	}
	c := &fakeConversation{prompt: systemPrompt, err: b.sendErr}
	b.convs = append(b.convs, c)
	return c, nil
}

func testConfig() Config {
	return Config{
		OwnerID:       "owner",
		BotName:       "Dorte",
		Language:      "Traditional Chinese",
		SessionTTL:    time.Hour,
		MaxSessions:   10,
		RatePerMinute: 600,
		Burst:         10,
	}
}

func TestSendKeepsConversation(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, testConfig(), nil)
	ctx := context.Background()

	if reply, err := a.Send(ctx, "u1", "hello"); err != nil || reply != "reply 1" {
		t.Fatalf("Unexpected first reply %q, %v", reply, err)
	}
	if reply, err := a.Send(ctx, "u1", "again"); err != nil || reply != "reply 2" {
		t.Fatalf("Unexpected second reply %q, %v", reply, err)
	}
	if len(backend.convs) != 1 {
		t.Fatalf("Expected one conversation, got %d", len(backend.convs))
	}
	if got := backend.convs[0].sent; len(got) != 2 || got[1] != "again" {
		t.Errorf("Unexpected history %v", got)
	}

	if _, err := a.Send(ctx, "u2", "hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(backend.convs) != 2 {
		t.Errorf("Expected a separate conversation per user, got %d", len(backend.convs))
	}
}

func TestPersona(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, testConfig(), nil)
	ctx := context.Background()

	a.Send(ctx, "owner", "hello")
	a.Send(ctx, "someone", "hello")

	owner := backend.convs[0].prompt
	if !strings.Contains(owner, "Master") || !strings.Contains(owner, "Traditional Chinese") {
		t.Errorf("Owner persona missing pieces: %q", owner)
	}
	other := backend.convs[1].prompt
	if strings.Contains(other, "Master") {
		t.Errorf("Member persona must not use Master: %q", other)
	}
	if !strings.Contains(other, "Dorte") || !strings.Contains(other, "Traditional Chinese") {
		t.Errorf("Member persona missing pieces: %q", other)
	}
}

func TestPersonaWithoutOwner(t *testing.T) {
	cfg := testConfig()
	cfg.OwnerID = ""
	a := New(&fakeBackend{}, cfg, nil)
	if strings.Contains(a.Persona(""), "Master") {
		t.Error("Empty owner ID must not match the empty user")
	}
}

func TestEmptyMessage(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, testConfig(), nil)

	if _, err := a.Send(context.Background(), "u1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Expected ErrEmptyMessage, got %v", err)
	}
	if len(backend.convs) != 0 {
		t.Error("Empty message must not start a conversation")
	}
}

func TestReset(t *testing.T) {
	backend := &fakeBackend{}
	a := New(backend, testConfig(), nil)
	ctx := context.Background()

	if a.Reset("u1") {
		t.Error("Reset of unknown user should report false")
	}
	a.Send(ctx, "u1", "hello")
	if !a.Reset("u1") {
		t.Error("Reset of known user should report true")
	}
	a.Send(ctx, "u1", "hello again")
	if len(backend.convs) != 2 {
		t.Errorf("Expected a fresh conversation after reset, got %d", len(backend.convs))
	}
}

func TestSlowDown(t *testing.T) {
	cfg := testConfig()
	cfg.RatePerMinute = 0.001
	cfg.Burst = 1
	a := New(&fakeBackend{}, cfg, nil)
	ctx := context.Background()

	if _, err := a.Send(ctx, "u1", "one"); err != nil {
		t.Fatalf("First message failed: %v", err)
	}
	if _, err := a.Send(ctx, "u1", "two"); !errors.Is(err, ErrSlowDown) {
		t.Fatalf("Expected ErrSlowDown, got %v", err)
	}
	if _, err := a.Send(ctx, "u2", "one"); err != nil {
		t.Errorf("Other users must have their own limiter, got %v", err)
	}
}

func TestSessionCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	backend := &fakeBackend{}
	a := New(backend, cfg, nil)
	ctx := context.Background()

	a.Send(ctx, "u1", "hello")
	a.Send(ctx, "u2", "hello")
	a.Send(ctx, "u1", "hello")

	if len(backend.convs) != 3 {
		t.Errorf("Expected u1 to be evicted and restarted, got %d conversations", len(backend.convs))
	}
}

func TestSessionExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTTL = 20 * time.Millisecond
	backend := &fakeBackend{}
	a := New(backend, cfg, nil)
	ctx := context.Background()

	a.Send(ctx, "u1", "hello")
	time.Sleep(60 * time.Millisecond)
	a.Send(ctx, "u1", "hello")

	if len(backend.convs) != 2 {
		t.Errorf("Expected expired session to restart, got %d conversations", len(backend.convs))
	}
}

func TestBackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		want    error
	}{
		{"blocked", &fakeBackend{sendErr: ErrBlocked}, ErrBlocked},
		{"auth on create", &fakeBackend{newErr: fmt.Errorf("%w: bad key", ErrAuth)}, ErrAuth},
		{"quota", &fakeBackend{sendErr: fmt.Errorf("%w: 429", ErrQuota)}, ErrQuota},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.backend, testConfig(), nil)
			if _, err := a.Send(context.Background(), "u1", "hello"); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	cause := errors.New("connection reset")
	a := New(&fakeBackend{sendErr: cause}, testConfig(), nil)
	_, err := a.Send(context.Background(), "u1", "hello")
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if !errors.Is(err, ErrBackend) {
		t.Errorf("Expected ErrBackend, got %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", genai.APIError{Code: 401}, ErrAuth},
		{"forbidden pointer", &genai.APIError{Code: 403}, ErrAuth},
		{"invalid key", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, ErrAuth},
		{"quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, ErrQuota},
		{"wrapped quota", fmt.Errorf("send: %w", genai.APIError{Code: 429}), ErrQuota},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyAPIError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	other := genai.APIError{Code: 500}
	if got := classifyAPIError(other); errors.Is(got, ErrAuth) || errors.Is(got, ErrQuota) {
		t.Errorf("Server error misclassified: %v", got)
	}
}

func TestReplyText(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}
	if _, err := replyText(blocked); !errors.Is(err, ErrBlocked) {
		t.Errorf("Expected ErrBlocked for prompt feedback, got %v", err)
	}

	safety := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	if _, err := replyText(safety); !errors.Is(err, ErrBlocked) {
		t.Errorf("Expected ErrBlocked for safety finish, got %v", err)
	}

	ok := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText("hi there", genai.RoleModel),
		}},
	}
	if text, err := replyText(ok); err != nil || text != "hi there" {
		t.Errorf("Unexpected reply %q, %v", text, err)
	}
}
