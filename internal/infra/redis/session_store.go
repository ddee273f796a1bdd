package redis

import (
	"context"
	"fmt"
	"time"

	"qrquest/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps conversation state in Redis so it survives restarts.
// Each identity maps to HSET {prefix}:state:{identity} state {state} question_id {id},
// refreshed with a TTL on every write.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = "quest"
	}
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *SessionStore) Get(ctx context.Context, identity string) (domain.Conversation, error) {
	fields, err := s.client.HGetAll(ctx, s.key(identity)).Result()
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return domain.Conversation{
		State:      domain.ConversationState(fields["state"]),
		QuestionID: fields["question_id"],
	}, nil
}

func (s *SessionStore) Set(ctx context.Context, identity string, conv domain.Conversation) error {
	if conv.State == domain.ConversationNone {
		return s.Clear(ctx, identity)
	}
	key := s.key(identity)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "state", string(conv.State), "question_id", conv.QuestionID)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set conversation: %w", err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

func (s *SessionStore) key(identity string) string {
	return s.prefix + ":state:" + identity
}
