package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/pkg/config"
	"github.com/gradepilot/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := time.Duration(cfg.TTLSec) * time.Second
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetExtraction(ctx context.Context, contentHash string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("extraction:%s", contentHash), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set extraction cache: %w", err)
	}

	logger.Debug("Extraction cached", zap.String("content_hash", contentHash))
	return nil
}

func (c *Client) GetExtraction(ctx context.Context, contentHash string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("extraction:%s", contentHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get extraction cache: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal extraction: %w", err)
	}

	return true, nil
}

// InvalidateExtractions drops all cached OCR results, for use after engine
// or language configuration changes.
func (c *Client) InvalidateExtractions(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "extraction:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Extraction cache invalidated")
	return nil
}
