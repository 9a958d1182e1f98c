package geocoding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// CachedGeocoder memoizes addresses in Redis keyed by the rounded coordinate.
// Cache failures degrade to calling the wrapped geocoder.
type CachedGeocoder struct {
	next   ReverseGeocoder
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next ReverseGeocoder, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedGeocoder {
	return &CachedGeocoder{next: next, client: client, ttl: ttl, logger: logger}
}

// CacheKey returns the key under which the address of p is stored.
// Five decimals is roughly one meter.
func CacheKey(p geo.GeoPoint) string {
	return fmt.Sprintf("geocode:%.5f,%.5f", p.Lat, p.Lng)
}

// ReverseGeocode serves from the cache or calls the wrapped geocoder and stores the result.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, p geo.GeoPoint) (string, error) {
	key := CacheKey(p)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
	}

	address, err := c.next.ReverseGeocode(ctx, p)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, address, c.ttl).Err(); err != nil {
		c.logger.Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return address, nil
}
