package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tasklane/chatkit/internal/domain"
)

// RedisConfig holds the connection settings for the redis history backend.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisStore keeps each room's history in a redis list so multiple dev
// server instances can share it.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxPerRoom int
}

func NewRedisStore(cfg RedisConfig, prefix string, maxPerRoom int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if maxPerRoom <= 0 {
		maxPerRoom = 500
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxPerRoom: maxPerRoom,
	}, nil
}

func (s *RedisStore) key(roomID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, roomID)
}

func (s *RedisStore) Append(ctx context.Context, roomID string, msg domain.HistoryMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal history message: %w", err)
	}

	key := s.key(roomID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxPerRoom), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, roomID string, limit int) ([]domain.HistoryMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, s.key(roomID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := make([]domain.HistoryMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.HistoryMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
