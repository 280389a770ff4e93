// Package chat drives the user-visible turn-taking: it appends messages,
// assembles the model request from transcript, metadata and history, and
// persists the session after every state-changing event.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tubechat/tubechat/internal/ai"
	"github.com/tubechat/tubechat/internal/store/keystore"
	"github.com/tubechat/tubechat/internal/store/redisstore"
)

// State is the panel-lifetime conversation state for one video.
type State string

const (
	StateNoCredential       State = "no_credential"
	StateAwaitingExtraction State = "awaiting_extraction"
	StateReady              State = "ready"
	StateAwaitingReply      State = "awaiting_reply"
)

var (
	ErrNoCredential = errors.New("chat credential is not set")
	ErrNoSession    = errors.New("no transcript loaded for this video")
	ErrBusy         = errors.New("a reply is already pending for this video")
	ErrEmptyMessage = errors.New("message is empty")
)

// PlaceholderText is the transient bot bubble shown while a reply is
// outstanding. It is never persisted.
const PlaceholderText = "..."

const systemPrompt = `You are a helpful assistant that answers questions about a web video using its spoken-word transcript.
Your knowledge is strictly limited to the provided transcript and metadata. Do not use any external knowledge.
Answer directly and naturally, and do not mention the transcript itself.
If the answer cannot be found, respond with: "I'm sorry, that information wasn't mentioned in the video."`

type Service struct {
	keys     *keystore.Store
	sessions *redisstore.Store
	registry *ai.Registry
	provider string
	model    string

	mu      sync.Mutex
	pending map[string]bool
}

func NewService(keys *keystore.Store, sessions *redisstore.Store, registry *ai.Registry, provider, model string) *Service {
	if provider == "" {
		provider = "openai"
	}
	return &Service{
		keys:     keys,
		sessions: sessions,
		registry: registry,
		provider: provider,
		model:    model,
		pending:  make(map[string]bool),
	}
}

// State reports where the conversation for a video currently stands:
// no credential, credential but no transcript, ready for input, or
// waiting on an outstanding reply.
func (s *Service) State(ctx context.Context, videoID string) (State, error) {
	key, err := s.keys.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" && s.provider == "openai" {
		return StateNoCredential, nil
	}

	sess, err := s.sessions.Load(ctx, videoID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return StateAwaitingExtraction, nil
	}

	s.mu.Lock()
	busy := s.pending[videoID]
	s.mu.Unlock()
	if busy {
		return StateAwaitingReply, nil
	}
	return StateReady, nil
}

// RecordExtraction stores a fresh extraction result for the video,
// superseding any prior transcript and metadata while preserving the
// accumulated conversation.
func (s *Service) RecordExtraction(ctx context.Context, videoID, transcript, title, description string) (*redisstore.VideoSession, error) {
	sess, err := s.sessions.Load(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = &redisstore.VideoSession{VideoID: videoID}
	}
	sess.Transcript = transcript
	sess.Title = title
	sess.Description = description

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// History returns the conversation for a video, with the transient
// placeholder appended while a reply is outstanding.
func (s *Service) History(ctx context.Context, videoID string) ([]redisstore.ChatMessage, error) {
	sess, err := s.sessions.Load(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}

	history := append([]redisstore.ChatMessage(nil), sess.History...)
	s.mu.Lock()
	busy := s.pending[videoID]
	s.mu.Unlock()
	if busy {
		history = append(history, redisstore.ChatMessage{Sender: redisstore.SenderBot, Text: PlaceholderText})
	}
	return history, nil
}

// Submit runs one conversation turn. Empty input and input while a
// reply is outstanding are no-ops, surfaced as typed errors so the
// panel can ignore them. The turn always produces a bot message: the
// model's answer on success, a formatted error message otherwise.
func (s *Service) Submit(ctx context.Context, videoID, text string) (redisstore.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return redisstore.ChatMessage{}, ErrEmptyMessage
	}

	key, err := s.keys.APIKey(ctx)
	if err != nil {
		return redisstore.ChatMessage{}, err
	}
	if key == "" && s.provider == "openai" {
		return redisstore.ChatMessage{}, ErrNoCredential
	}

	s.mu.Lock()
	if s.pending[videoID] {
		s.mu.Unlock()
		return redisstore.ChatMessage{}, ErrBusy
	}
	s.pending[videoID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, videoID)
		s.mu.Unlock()
	}()

	sess, err := s.sessions.Load(ctx, videoID)
	if err != nil {
		return redisstore.ChatMessage{}, err
	}
	if sess == nil {
		return redisstore.ChatMessage{}, ErrNoSession
	}

	sess.History = append(sess.History, redisstore.ChatMessage{Sender: redisstore.SenderUser, Text: text})
	if err := s.sessions.Save(ctx, sess); err != nil {
		return redisstore.ChatMessage{}, err
	}

	reply := s.generateReply(ctx, sess)

	bot := redisstore.ChatMessage{Sender: redisstore.SenderBot, Text: reply}
	sess.History = append(sess.History, bot)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return redisstore.ChatMessage{}, err
	}
	return bot, nil
}

// generateReply dispatches the model request and normalizes any failure
// into a user-facing bot message. Nothing here is retried.
func (s *Service) generateReply(ctx context.Context, sess *redisstore.VideoSession) string {
	provider, err := s.registry.Get(ctx, s.provider, s.model)
	if err != nil {
		return "Error: " + err.Error()
	}

	msgs := make([]ai.Message, 0, len(sess.History)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, ai.Message{
		Role: ai.RoleUser,
		Content: fmt.Sprintf("Video title: %s\n\nVideo description: %s\n\nHere is the transcript:\n\n%s",
			sess.Title, sess.Description, sess.Transcript),
	})
	for _, m := range sess.History {
		role := ai.RoleUser
		if m.Sender == redisstore.SenderBot {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: m.Text})
	}

	reply, err := provider.Chat(ctx, msgs)
	if err != nil {
		return "Error: " + err.Error()
	}
	return reply
}

// Clear discards the whole session for one video id and leaves every
// other session untouched.
func (s *Service) Clear(ctx context.Context, videoID string) error {
	return s.sessions.Clear(ctx, videoID)
}
