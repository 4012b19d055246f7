package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
)

// RedisPaperCache keeps serialized exam papers in Redis.
type RedisPaperCache struct {
	rdb *redis.Client
}

// NewRedisPaperCache creates a new RedisPaperCache.
func NewRedisPaperCache(rdb *redis.Client) *RedisPaperCache {
	return &RedisPaperCache{rdb: rdb}
}

// Get returns the cached paper, or (nil, nil) on a miss.
func (c *RedisPaperCache) Get(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.ExamPaper
	if err := json.Unmarshal(raw, &paper); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	return &paper, nil
}

// Set stores a paper for ttl.
func (c *RedisPaperCache) Set(ctx context.Context, paper *model.ExamPaper, ttl time.Duration) error {
	raw, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamPaperKey(paper.ExamID.String()), raw, ttl).Err()
}

// Invalidate drops the cached paper.
func (c *RedisPaperCache) Invalidate(ctx context.Context, examID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}
