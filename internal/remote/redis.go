package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/labelbot/internal/models"
)

// RedisStore keeps one hash per user and scope, field = item id, value = JSON record.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// NewRedisClient parses a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func NewRedisStore(client *redis.Client, userID, scope string) *RedisStore {
	return &RedisStore{client: client, key: fmt.Sprintf("labelbot:categorizations:%s:%s", userID, scope)}
}

func (s *RedisStore) PutCategorization(ctx context.Context, r models.RemoteRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error encoding record: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, r.ItemID, data).Err(); err != nil {
		return fmt.Errorf("error writing categorization: %w", err)
	}
	return nil
}

func (s *RedisStore) ListCategorizations(ctx context.Context) ([]models.RemoteRecord, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading categorizations: %w", err)
	}

	out := make([]models.RemoteRecord, 0, len(values))
	for itemID, raw := range values {
		var r models.RemoteRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("error decoding record %s: %w", itemID, err)
		}
		if r.ItemID == "" {
			r.ItemID = itemID
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategorizedAt.Before(out[j].CategorizedAt) })
	return out, nil
}

func (s *RedisStore) DeleteCategorization(ctx context.Context, itemID string) error {
	if err := s.client.HDel(ctx, s.key, itemID).Err(); err != nil {
		return fmt.Errorf("error deleting categorization: %w", err)
	}
	return nil
}
