package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// DefaultDirectionsBaseURL is the public Google Directions endpoint.
const DefaultDirectionsBaseURL = "https://maps.googleapis.com/maps/api/directions/json"

// DirectionsEstimator asks a Google Directions style API for a driving route
// leaving now, and prefers the traffic-adjusted duration.
type DirectionsEstimator struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewDirectionsEstimator creates a DirectionsEstimator.
func NewDirectionsEstimator(client *http.Client, baseURL, apiKey string) *DirectionsEstimator {
	if baseURL == "" {
		baseURL = DefaultDirectionsBaseURL
	}
	return &DirectionsEstimator{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type textValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type directionsLeg struct {
	Distance          textValue  `json:"distance"`
	Duration          *textValue `json:"duration"`
	DurationInTraffic *textValue `json:"duration_in_traffic"`
	StartAddress      string     `json:"start_address"`
	EndAddress        string     `json:"end_address"`
	StartLocation     latLng     `json:"start_location"`
	EndLocation       latLng     `json:"end_location"`
	Steps             []struct {
		StartLocation latLng `json:"start_location"`
		EndLocation   latLng `json:"end_location"`
	} `json:"steps"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []directionsLeg `json:"legs"`
	} `json:"routes"`
}

// Estimate requests the route and reads the first leg.
func (d *DirectionsEstimator) Estimate(ctx context.Context, origin, destination geo.GeoPoint) (Estimate, error) {
	if sameEndpoints(origin, destination) {
		return Estimate{Source: StrategyDirections}, nil
	}

	q := url.Values{}
	q.Set("origin", origin.String())
	q.Set("destination", destination.String())
	q.Set("mode", "driving")
	q.Set("departure_time", "now")
	q.Set("traffic_model", "best_guess")
	if d.apiKey != "" {
		q.Set("key", d.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to build directions request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("directions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Estimate{}, fmt.Errorf("%w: http %d", ErrProviderStatus, resp.StatusCode)
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Estimate{}, fmt.Errorf("failed to decode directions response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return Estimate{}, ErrNoRoute
	default:
		return Estimate{}, fmt.Errorf("%w: %s %s", ErrProviderStatus, body.Status, body.ErrorMessage)
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 {
		return Estimate{}, ErrNoRoute
	}

	leg := body.Routes[0].Legs[0]
	duration := leg.Duration
	if leg.DurationInTraffic != nil {
		duration = leg.DurationInTraffic
	}
	if duration == nil {
		return Estimate{}, fmt.Errorf("%w: leg has no duration", ErrProviderStatus)
	}
	minutes, err := secondsToMinutes(duration.Value)
	if err != nil {
		return Estimate{}, err
	}

	return Estimate{
		DistanceKm:      geo.Distance(origin, destination),
		DurationMinutes: minutes,
		Source:          StrategyDirections,
		RouteDistanceKm: leg.Distance.Value / 1000,
		Path:            legPath(leg),
		StartAddress:    leg.StartAddress,
		EndAddress:      leg.EndAddress,
		DurationText:    duration.Text,
	}, nil
}

func legPath(leg directionsLeg) []geo.GeoPoint {
	if len(leg.Steps) == 0 {
		return nil
	}
	path := make([]geo.GeoPoint, 0, len(leg.Steps)+1)
	for _, s := range leg.Steps {
		path = append(path, geo.GeoPoint{Lat: s.StartLocation.Lat, Lng: s.StartLocation.Lng})
	}
	last := leg.Steps[len(leg.Steps)-1].EndLocation
	return append(path, geo.GeoPoint{Lat: last.Lat, Lng: last.Lng})
}
