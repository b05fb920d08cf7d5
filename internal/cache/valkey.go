package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"eventcart/internal/config"
	"eventcart/internal/logger"
	"eventcart/internal/models"

	"github.com/redis/rueidis"
)

const versionKey = "events:search:version"

// ValkeyClient caches event search pages. Every write to events bumps a
// version counter, which makes all cached pages unreachable at once.
type ValkeyClient struct {
	client rueidis.Client
	ttl    time.Duration
}

func NewValkeyClient(cfg config.CacheConfig) (*ValkeyClient, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	return &ValkeyClient{client: client, ttl: cfg.TTL}, nil
}

func (v *ValkeyClient) version(ctx context.Context) (int64, error) {
	n, err := v.client.Do(ctx, v.client.B().Get().Key(versionKey).Build()).AsInt64()
	if rueidis.IsRedisNil(err) {
		return 0, nil
	}
	return n, err
}

// PageKey builds the cache key of a filter at a given version.
func PageKey(version int64, filter models.EventFilter) string {
	raw, _ := json.Marshal(filter)
	sum := sha256.Sum256(raw)
	return "events:search:" + strconv.FormatInt(version, 10) + ":" + hex.EncodeToString(sum[:12])
}

func (v *ValkeyClient) GetPage(ctx context.Context, filter models.EventFilter) (*models.Page[models.Event], bool) {
	ver, err := v.version(ctx)
	if err != nil {
		logger.WithContext(ctx).Warn("Cache version lookup failed", "error", err)
		return nil, false
	}

	data, err := v.client.Do(ctx, v.client.B().Get().Key(PageKey(ver, filter)).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			logger.WithContext(ctx).Warn("Cache lookup failed", "error", err)
		}
		return nil, false
	}

	var page models.Page[models.Event]
	if err := json.Unmarshal(data, &page); err != nil {
		logger.WithContext(ctx).Warn("Invalid cached page", "error", err)
		return nil, false
	}
	return &page, true
}

func (v *ValkeyClient) SetPage(ctx context.Context, filter models.EventFilter, page *models.Page[models.Event]) {
	ver, err := v.version(ctx)
	if err != nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}

	cmd := v.client.B().Set().Key(PageKey(ver, filter)).Value(string(data)).Ex(v.ttl).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		logger.WithContext(ctx).Warn("Cache store failed", "error", err)
	}
}

// Invalidate drops every cached page.
func (v *ValkeyClient) Invalidate(ctx context.Context) {
	if err := v.client.Do(ctx, v.client.B().Incr().Key(versionKey).Build()).Error(); err != nil {
		logger.WithContext(ctx).Error("Cache invalidation failed", "error", err)
	}
}

func (v *ValkeyClient) Close() error {
	v.client.Close()
	return nil
}
