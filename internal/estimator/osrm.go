package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// DefaultOSRMBaseURL is the public OSRM demo server.
const DefaultOSRMBaseURL = "https://router.project-osrm.org"

// OSRMEstimator asks an OSRM server for a driving route.
type OSRMEstimator struct {
	client  *http.Client
	baseURL string
}

// NewOSRMEstimator creates an OSRMEstimator.
func NewOSRMEstimator(client *http.Client, baseURL string) *OSRMEstimator {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	return &OSRMEstimator{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Estimate requests /route/v1/driving and reads the first route.
func (o *OSRMEstimator) Estimate(ctx context.Context, origin, destination geo.GeoPoint) (Estimate, error) {
	if sameEndpoints(origin, destination) {
		return Estimate{Source: StrategyOSRM}, nil
	}

	endpoint := fmt.Sprintf("%s/route/v1/driving/%s;%s?overview=full&geometries=geojson",
		o.baseURL, lngLat(origin), lngLat(destination))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to build osrm request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("osrm request failed: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Estimate{}, fmt.Errorf("%w: http %d", ErrProviderStatus, resp.StatusCode)
		}
		return Estimate{}, fmt.Errorf("failed to decode osrm response: %w", err)
	}

	switch body.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return Estimate{}, ErrNoRoute
	default:
		return Estimate{}, fmt.Errorf("%w: %s %s", ErrProviderStatus, body.Code, body.Message)
	}
	if len(body.Routes) == 0 {
		return Estimate{}, ErrNoRoute
	}

	route := body.Routes[0]
	minutes, err := secondsToMinutes(route.Duration)
	if err != nil {
		return Estimate{}, err
	}

	path := make([]geo.GeoPoint, 0, len(route.Geometry.Coordinates))
	for _, c := range route.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		path = append(path, geo.GeoPoint{Lat: c[1], Lng: c[0]})
	}

	return Estimate{
		DistanceKm:      geo.Distance(origin, destination),
		DurationMinutes: minutes,
		Source:          StrategyOSRM,
		RouteDistanceKm: route.Distance / 1000,
		Path:            path,
	}, nil
}

// lngLat formats a point the way OSRM expects: longitude first.
func lngLat(p geo.GeoPoint) string {
	return strconv.FormatFloat(p.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}
