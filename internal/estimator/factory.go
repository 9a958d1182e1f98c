package estimator

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/config"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/zone"
)

// New builds the configured strategy. Provider strategies are wrapped in a
// FallbackEstimator when cfg.Fallback is set.
func New(cfg config.EstimatorConfig, zones zone.Repository, logger *zap.Logger) (RouteEstimator, error) {
	haversine, err := NewHaversineEstimator(cfg.AverageSpeedKmh)
	if err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var primary RouteEstimator
	switch cfg.Strategy {
	case StrategyHaversine:
		return haversine, nil
	case StrategyDirections:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("directions strategy requires an api key")
		}
		primary = NewDirectionsEstimator(client, cfg.BaseURL, cfg.APIKey)
	case StrategyOSRM:
		primary = NewOSRMEstimator(client, cfg.BaseURL)
	case StrategyZone:
		if zones == nil {
			return nil, fmt.Errorf("zone strategy requires a zone repository")
		}
		primary = NewZoneEstimator(zones)
	default:
		return nil, fmt.Errorf("unknown estimator strategy %q", cfg.Strategy)
	}

	if cfg.Fallback {
		return NewFallbackEstimator(primary, haversine, logger.Named("estimator")), nil
	}
	return primary, nil
}
