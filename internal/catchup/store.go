package catchup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Entry is one remembered quiz delivery.
type Entry struct {
	Message *types.QuizMessage `json:"message"`
	SentAt  time.Time          `json:"sent_at"`
}

// Store holds the most recent quiz per session and per (session,
// participant). Writes overwrite; a missing entry reads as (nil, nil).
type Store interface {
	PutSession(ctx context.Context, sessionKey string, entry *Entry) error
	PutParticipant(ctx context.Context, sessionKey, participantID string, entry *Entry) error
	GetSession(ctx context.Context, sessionKey string) (*Entry, error)
	GetParticipant(ctx context.Context, sessionKey, participantID string) (*Entry, error)
	Close() error
}

// StoreType selects the catch-up store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

// WithRedisClient supplies the client required by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithRedisTTL sets the key expiry used by the redis driver. The cache still
// enforces its own replay window on read; the redis TTL just bounds storage.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.redisTTL = ttl }
}

// NewStore creates a catch-up store of the given driver type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrMissingRedisClient
		}
		ttl := config.redisTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		return &redisStore{client: config.redisClient, ttl: ttl}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}
