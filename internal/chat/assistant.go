// Package chat holds per-user conversations with a generative model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSlowDown     = errors.New("too many messages, slow down")
	ErrBlocked      = errors.New("message was blocked by safety filters")
	ErrAuth         = errors.New("chat backend rejected the API key")
	ErrQuota        = errors.New("chat backend quota exhausted")
	ErrBackend      = errors.New("chat backend failed")
)

// Backend starts conversations that carry their own history.
type Backend interface {
	NewConversation(ctx context.Context, systemPrompt string) (Conversation, error)
}

type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

type Config struct {
	OwnerID       string
	BotName       string
	Language      string
	SessionTTL    time.Duration
	MaxSessions   int
	RatePerMinute float64
	Burst         int
}

type session struct {
	mu      sync.Mutex
	conv    Conversation
	limiter *rate.Limiter
}

type Assistant struct {
	backend Backend
	cfg     Config
	log     *zap.Logger

	mu       sync.Mutex
	sessions *expirable.LRU[string, *session]
}

func New(backend Backend, cfg Config, log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 500
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 6
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.BotName == "" {
		cfg.BotName = "Dorte"
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	return &Assistant{
		backend:  backend,
		cfg:      cfg,
		log:      log.Named("chat"),
		sessions: expirable.NewLRU[string, *session](cfg.MaxSessions, nil, cfg.SessionTTL),
	}
}

// Send continues userID's conversation with text and returns the reply.
func (a *Assistant) Send(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	s := a.session(userID)
	if !s.limiter.Allow() {
		return "", ErrSlowDown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conv == nil {
		conv, err := a.backend.NewConversation(ctx, a.Persona(userID))
		if err != nil {
			return "", a.fail(userID, err)
		}
		s.conv = conv
	}

	reply, err := s.conv.Send(ctx, text)
	if err != nil {
		return "", a.fail(userID, err)
	}
	return reply, nil
}

// Reset forgets userID's conversation. It reports whether there was one.
func (a *Assistant) Reset(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions.Remove(userID)
}

// Persona is the system instruction for userID.
func (a *Assistant) Persona(userID string) string {
	if a.cfg.OwnerID != "" && userID == a.cfg.OwnerID {
		return fmt.Sprintf("You are %s, a maid. You are talking with your master. "+
			"Always answer in %s and address them as \"Master\". "+
			"Keep answers concise, professional and friendly, in a maid's tone.",
			a.cfg.BotName, a.cfg.Language)
	}
	return fmt.Sprintf("You are %s, a capable helper. You are talking with a server member. "+
		"Always answer in %s with a slightly cool but professional tone. "+
		"Keep answers short and skip the enthusiasm, but stay useful.",
		a.cfg.BotName, a.cfg.Language)
}

// session returns userID's session, creating it if needed. Adding it again
// refreshes its expiry.
func (a *Assistant) session(userID string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions.Get(userID)
	if !ok {
		s = &session{
			limiter: rate.NewLimiter(rate.Limit(a.cfg.RatePerMinute/60), a.cfg.Burst),
		}
	}
	a.sessions.Add(userID, s)
	return s
}

func (a *Assistant) fail(userID string, err error) error {
	a.log.Warn("chat request failed", zap.String("user_id", userID), zap.Error(err))
	for _, known := range []error{ErrBlocked, ErrAuth, ErrQuota} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}
