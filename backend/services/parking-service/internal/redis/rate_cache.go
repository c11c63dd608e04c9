package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/tariff"
)

// RateCache keeps raw rate table specs in redis for quick access.
type RateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRateCache returns redis-backed cache.
func NewRateCache(client *redis.Client, ttl time.Duration) *RateCache {
	return &RateCache{client: client, ttl: ttl}
}

func (c *RateCache) key(vehicleClass string) string {
	return fmt.Sprintf("parking:rates:%s", vehicleClass)
}

// Save caches a spec.
func (c *RateCache) Save(ctx context.Context, vehicleClass string, spec tariff.RateTableSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(vehicleClass), data, c.ttl).Err()
}

// Get returns a cached spec or models.ErrCacheMiss.
func (c *RateCache) Get(ctx context.Context, vehicleClass string) (tariff.RateTableSpec, error) {
	result, err := c.client.Get(ctx, c.key(vehicleClass)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tariff.RateTableSpec{}, models.ErrCacheMiss
		}
		return tariff.RateTableSpec{}, err
	}
	var spec tariff.RateTableSpec
	if err := json.Unmarshal(result, &spec); err != nil {
		return tariff.RateTableSpec{}, err
	}
	return spec, nil
}

// Delete evicts a cached spec.
func (c *RateCache) Delete(ctx context.Context, vehicleClass string) error {
	return c.client.Del(ctx, c.key(vehicleClass)).Err()
}
