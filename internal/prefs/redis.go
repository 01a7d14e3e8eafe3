package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

// RedisStore keeps preferences as a JSON string per user. Keys never expire.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
	}
}

// Ping checks the connection at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (models.Preferences, error) {
	data, err := s.client.Get(ctx, prefsKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return normalize(models.Preferences{}), nil
		}
		return models.Preferences{}, err
	}
	return decode(data)
}

func (s *RedisStore) Put(ctx context.Context, userID int64, p models.Preferences) error {
	payload, err := json.Marshal(normalize(p))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, prefsKey(userID), payload, 0).Err()
}

func prefsKey(userID int64) string {
	return fmt.Sprintf("prefs:user:%d", userID)
}
