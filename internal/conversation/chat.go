package conversation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
	"github.com/mohammad-safakhou/smartsummary/internal/provider"
	"github.com/mohammad-safakhou/smartsummary/internal/telemetry"
)

// Apology is returned when the chat provider fails. Failed turns are not
// recorded in the conversation history.
const Apology = "Sorry, I encountered an error processing your message. Please try again."

const chatContentCap = 6000

// Service answers chat turns grounded in a stored source. Turns for the same
// conversation are serialized so an append pair is never interleaved with
// another turn's.
type Service struct {
	store   Store
	chat    provider.Provider
	tele    *telemetry.Telemetry
	logger  *log.Logger
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates a chat service backed by the given store and provider
func NewService(store Store, chat provider.Provider, tele *telemetry.Telemetry) *Service {
	return &Service{
		store:  store,
		chat:   chat,
		tele:   tele,
		logger: log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Create mints a new conversation seeded with the cleaned source content,
// the full source metadata and an empty message history, and returns its id.
func (s *Service) Create(ctx context.Context, url, content string, meta analysis.Metadata) (string, error) {
	conv := Conversation{
		ID:        uuid.NewString(),
		URL:       url,
		Content:   content,
		Metadata:  meta,
		Messages:  []Message{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// Chat answers one user turn. On success the user message and the assistant
// reply are appended to the history as a pair; on provider failure the fixed
// apology is returned and the history is left untouched. Unknown ids return
// ErrNotFound.
func (s *Service) Chat(ctx context.Context, conversationID, userMessage, lengthHint string) (string, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return "", err
	}

	s.logger.Printf("Chat message for conversation %s", conversationID)

	messages := make([]provider.Message, 0, len(conv.Messages)+1)
	for _, msg := range conv.Messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, provider.Message{Role: role, Content: msg.Text})
	}
	messages = append(messages, provider.Message{Role: "user", Content: userMessage})

	start := time.Now()
	reply, err := s.chat.GenerateWithSystem(ctx, systemPrompt(conv, lengthHint), messages)
	if s.tele != nil {
		event := telemetry.CapabilityEvent{
			Capability: "chat",
			Provider:   s.chat.Name(),
			Duration:   time.Since(start),
			Success:    err == nil,
		}
		if err != nil {
			event.Error = err.Error()
		}
		s.tele.RecordCapabilityEvent(event)
	}
	if err != nil {
		s.logger.Printf("Chat provider error for %s: %v", conversationID, err)
		return Apology, nil
	}

	if err := s.store.AppendMessages(ctx, conversationID,
		Message{Role: "user", Text: userMessage},
		Message{Role: "assistant", Text: reply},
	); err != nil {
		return "", fmt.Errorf("append chat turn: %w", err)
	}
	return reply, nil
}

// Get exposes the stored conversation, mainly for handlers and tests.
func (s *Service) Get(ctx context.Context, id string) (Conversation, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func systemPrompt(conv Conversation, lengthHint string) string {
	content := conv.Content
	if len(content) > chatContentCap {
		content = content[:chatContentCap]
	}
	title := conv.Metadata.Title
	if title == "" {
		title = "Unknown"
	}
	author := conv.Metadata.Author
	if author == "" {
		author = "Unknown"
	}
	prompt := fmt.Sprintf(`You are assisting the user in understanding ONE specific source (below). You must stay grounded in that source unless the user explicitly asks for general world knowledge. If the user asks "is this accurate?" you should say if the claim is supported in the text, and you may flag parts that sound speculative or biased, but you must say you are not verifying with outside sources. Keep answers under 150 words unless the user asks for more.

SOURCE:
Title: %s
Author: %s

Content:
%s`, title, author, content)
	if hint := lengthInstruction(lengthHint); hint != "" {
		prompt += "\n\n" + hint
	}
	return prompt
}

// lengthInstruction maps the response_length hint to a fixed instruction
// appended to the system prompt. It changes nothing else.
func lengthInstruction(hint string) string {
	switch hint {
	case "short":
		return "Respond in at most two sentences."
	case "detailed":
		return "The user asked for detail: you may exceed the usual length limit and structure the answer."
	default:
		// auto, default, empty: the base prompt's length guidance applies.
		return ""
	}
}
