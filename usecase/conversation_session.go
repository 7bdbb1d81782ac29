package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/backbone/domain"
	"github.com/satriahrh/backbone/utils/log"
)

const (
	// FallbackReply is appended in place of a reply whenever a cycle fails.
	FallbackReply = "Sorry, something went wrong."
	Temperature   = 0.7
)

var _ domain.Conversation = (*ConversationSession)(nil)

type Option func(*ConversationSession)

// WithMessageBroker publishes every transcript and pending change as a
// domain.SessionEvent.
func WithMessageBroker(b domain.MessageBroker) Option {
	return func(s *ConversationSession) { s.broker = b }
}

// ConversationSession owns a single transcript and runs submit cycles
// against a completion backend. Cycles are serialized: a submit issued while
// another is in flight waits for it to settle.
type ConversationSession struct {
	id        string
	completer domain.Completer
	broker    domain.MessageBroker

	cycle sync.Mutex

	mu         sync.RWMutex
	transcript []domain.Turn
	pending    bool
	draft      string
}

func NewConversationSession(systemPrompt string, completer domain.Completer, opts ...Option) *ConversationSession {
	s := &ConversationSession{
		id:         uuid.Must(uuid.NewV7()).String(),
		completer:  completer,
		transcript: []domain.Turn{domain.NewTurn(domain.SystemRole, systemPrompt)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConversationSession) ID() string {
	return s.id
}

// Submit appends text as a user turn, sends the whole transcript to the
// backend and appends the reply, or FallbackReply on any failure. Blank
// input is ignored and reported with ok=false. The draft is cleared on
// invocation, before the call waits for an in-flight cycle.
func (s *ConversationSession) Submit(ctx context.Context, text string) (domain.Exchange, bool) {
	if strings.TrimSpace(text) == "" {
		return domain.Exchange{}, false
	}

	s.mu.Lock()
	s.draft = ""
	s.mu.Unlock()

	return s.run(ctx, text), true
}

// SubmitDraft takes the draft and submits it. The draft is taken and
// cleared atomically, so queued calls never send the same draft twice.
func (s *ConversationSession) SubmitDraft(ctx context.Context) (domain.Exchange, bool) {
	s.mu.Lock()
	text := s.draft
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return domain.Exchange{}, false
	}
	s.draft = ""
	s.mu.Unlock()

	return s.run(ctx, text), true
}

func (s *ConversationSession) run(ctx context.Context, text string) domain.Exchange {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	ctx = context.WithValue(ctx, log.SessionIDKey, s.id)
	user := domain.NewTurn(domain.UserRole, text)

	s.mu.Lock()
	s.transcript = append(s.transcript, user)
	userIndex := len(s.transcript) - 1
	s.pending = true
	messages := slices.Clone(s.transcript)
	s.mu.Unlock()

	s.publishTurn(ctx, userIndex, user)
	s.publishPending(ctx, true)
	defer s.settle(ctx)

	reply, err := s.complete(ctx, messages)
	failed := err != nil
	if failed {
		log.WithCtx(ctx).Error("❌ Completion failed", zap.Error(err), zap.Int("messages", len(messages)))
		reply = domain.NewTurn(domain.AssistantRole, FallbackReply)
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, reply)
	replyIndex := len(s.transcript) - 1
	s.mu.Unlock()

	s.publishTurn(ctx, replyIndex, reply)

	return domain.Exchange{User: user, Reply: reply, Failed: failed}
}

func (s *ConversationSession) complete(ctx context.Context, messages []domain.Turn) (reply domain.Turn, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completer panicked: %v", r)
		}
	}()

	return s.completer.Complete(ctx, domain.CompletionRequest{
		Messages:    messages,
		Temperature: Temperature,
	})
}

func (s *ConversationSession) settle(ctx context.Context) {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()

	s.publishPending(ctx, false)
}

func (s *ConversationSession) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *ConversationSession) Draft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

func (s *ConversationSession) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Transcript returns a copy of the turns in order.
func (s *ConversationSession) Transcript() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transcript)
}

func (s *ConversationSession) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.SessionState{
		ID:         s.id,
		Transcript: slices.Clone(s.transcript),
		Pending:    s.pending,
		Draft:      s.draft,
	}
}

func (s *ConversationSession) publishTurn(ctx context.Context, index int, turn domain.Turn) {
	s.publish(ctx, domain.SessionEvent{
		Type:    domain.TurnAppendedEvent,
		Index:   index,
		Turn:    &turn,
		Pending: s.Pending(),
	})
}

func (s *ConversationSession) publishPending(ctx context.Context, pending bool) {
	s.publish(ctx, domain.SessionEvent{
		Type:    domain.PendingChangedEvent,
		Pending: pending,
	})
}

func (s *ConversationSession) publish(ctx context.Context, event domain.SessionEvent) {
	if s.broker == nil {
		return
	}

	event.SessionID = s.id
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		log.WithCtx(ctx).Error("❌ Failed to marshal session event", zap.Error(err))
		return
	}

	if err := s.broker.Publish(context.WithoutCancel(ctx), domain.SessionEventsTopic, s.id, payload); err != nil {
		log.WithCtx(ctx).Warn("⚠️ Failed to publish session event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
