package catchup

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore shares the catch-up window across nodes. Entries carry their
// own SentAt, so the replay window stays correct even though the redis TTL
// is coarser.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func sessionRedisKey(sessionKey string) string {
	return "catchup:session:" + sessionKey
}

func participantRedisKey(sessionKey, participantID string) string {
	return "catchup:participant:" + sessionKey + ":" + participantID
}

func (s *redisStore) put(ctx context.Context, key string, entry *Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, val, s.ttl).Err()
}

func (s *redisStore) get(ctx context.Context, key string) (*Entry, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *redisStore) PutSession(ctx context.Context, sessionKey string, entry *Entry) error {
	return s.put(ctx, sessionRedisKey(sessionKey), entry)
}

func (s *redisStore) PutParticipant(ctx context.Context, sessionKey, participantID string, entry *Entry) error {
	return s.put(ctx, participantRedisKey(sessionKey, participantID), entry)
}

func (s *redisStore) GetSession(ctx context.Context, sessionKey string) (*Entry, error) {
	return s.get(ctx, sessionRedisKey(sessionKey))
}

func (s *redisStore) GetParticipant(ctx context.Context, sessionKey, participantID string) (*Entry, error) {
	return s.get(ctx, participantRedisKey(sessionKey, participantID))
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
