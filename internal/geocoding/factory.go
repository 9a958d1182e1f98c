package geocoding

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/config"
)

// NewFromConfig builds the configured geocoder, wrapped in a Redis cache when
// a client is given. Provider "none" returns nil, which makes a Resolver fall
// back to coordinates.
func NewFromConfig(cfg config.GeocodingConfig, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) (ReverseGeocoder, error) {
	client := NewHTTPClient(cfg.Timeout)

	var g ReverseGeocoder
	switch cfg.Provider {
	case "google":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("google geocoding requires an api key")
		}
		g = NewGoogleGeocoder(client, cfg.BaseURL, cfg.APIKey, cfg.Language)
	case "nominatim":
		g = NewNominatimGeocoder(client, cfg.BaseURL, cfg.UserAgent, cfg.Language)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q", cfg.Provider)
	}

	if cache != nil {
		ttl := cacheTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		g = NewCachedGeocoder(g, cache, ttl, logger)
	}
	return g, nil
}
