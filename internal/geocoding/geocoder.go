package geocoding

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

var (
	// ErrNoResults is returned when the provider knows no address for a point.
	ErrNoResults = errors.New("geocoding: no results")
	// ErrProviderStatus is returned when the provider answers with an error status.
	ErrProviderStatus = errors.New("geocoding: provider error")
)

// ReverseGeocoder turns a coordinate into a human readable address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p geo.GeoPoint) (string, error)
}

// Resolver wraps a ReverseGeocoder and never fails: when no address can be
// found it falls back to the "lat,lng" text of the point.
type Resolver struct {
	geocoder ReverseGeocoder
	timeout  time.Duration
	logger   *zap.Logger
}

// NewResolver creates a Resolver. A nil geocoder always yields the coordinate text.
func NewResolver(geocoder ReverseGeocoder, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{geocoder: geocoder, timeout: timeout, logger: logger}
}

// Resolve returns the address of p, or p.String() if none is available.
func (r *Resolver) Resolve(ctx context.Context, p geo.GeoPoint) string {
	if r.geocoder == nil {
		return p.String()
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	address, err := r.geocoder.ReverseGeocode(ctx, p)
	if err != nil {
		if !errors.Is(err, ErrNoResults) {
			r.logger.Warn("reverse geocoding failed, using coordinates",
				zap.String("point", p.String()),
				zap.Error(err),
			)
		}
		return p.String()
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return p.String()
	}
	return address
}

// NewHTTPClient returns an instrumented client for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
