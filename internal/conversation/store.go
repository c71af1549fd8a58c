package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
)

// ErrNotFound is returned when a conversation id is unknown.
var ErrNotFound = errors.New("conversation not found")

// Message is one turn in a conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Conversation holds the chat context seeded at analysis time. Conversations
// live for the process (or the Redis backend) lifetime; nothing deletes them.
type Conversation struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Content   string            `json:"content"`
	Metadata  analysis.Metadata `json:"metadata"`
	Messages  []Message         `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists conversations. AppendMessages must be atomic with respect to
// a single chat call: either both turns of a pair land or neither does.
type Store interface {
	Create(ctx context.Context, conv Conversation) error
	Get(ctx context.Context, id string) (Conversation, error)
	AppendMessages(ctx context.Context, id string, msgs ...Message) error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewMemoryStore creates an in-memory conversation store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *MemoryStore) Create(_ context.Context, conv Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := conv
	s.conversations[conv.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	copied := *conv
	copied.Messages = append([]Message(nil), conv.Messages...)
	return copied, nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, id string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Messages = append(conv.Messages, msgs...)
	return nil
}

const conversationKeyPrefix = "conversation:"

// RedisStore keeps conversations in Redis so chat context survives restarts.
type RedisStore struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisStore creates a Redis-backed conversation store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		logger: log.New(log.Writer(), "[CONV] ", log.LstdFlags),
	}
}

func (s *RedisStore) Create(ctx context.Context, conv Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKeyPrefix+conv.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Conversation, error) {
	val, err := s.client.Get(ctx, conversationKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal([]byte(val), &conv); err != nil {
		return Conversation{}, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return conv, nil
}

func (s *RedisStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, msgs...)
	return s.Create(ctx, conv)
}
