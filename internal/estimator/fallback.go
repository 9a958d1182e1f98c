package estimator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// FallbackEstimator uses primary and, when it fails, the speed-based estimate.
type FallbackEstimator struct {
	primary   RouteEstimator
	secondary RouteEstimator
	logger    *zap.Logger
}

// NewFallbackEstimator creates a FallbackEstimator.
func NewFallbackEstimator(primary, secondary RouteEstimator, logger *zap.Logger) *FallbackEstimator {
	return &FallbackEstimator{primary: primary, secondary: secondary, logger: logger}
}

// Estimate tries the primary strategy first. Cancellation is not retried.
func (f *FallbackEstimator) Estimate(ctx context.Context, origin, destination geo.GeoPoint) (Estimate, error) {
	est, err := f.primary.Estimate(ctx, origin, destination)
	if err == nil {
		return est, nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return Estimate{}, err
	}

	f.logger.Warn("route estimation failed, using fallback",
		zap.String("origin", origin.String()),
		zap.String("destination", destination.String()),
		zap.Error(err),
	)
	return f.secondary.Estimate(ctx, origin, destination)
}
