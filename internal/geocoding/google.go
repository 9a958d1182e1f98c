package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// DefaultGoogleBaseURL is the public Google Geocoding endpoint.
const DefaultGoogleBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleGeocoder calls the Google Geocoding API.
type GoogleGeocoder struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	language string
}

// NewGoogleGeocoder creates a GoogleGeocoder. An empty baseURL uses the public endpoint.
func NewGoogleGeocoder(client *http.Client, baseURL, apiKey, language string) *GoogleGeocoder {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	return &GoogleGeocoder{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, language: language}
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// ReverseGeocode returns the formatted address of the first result.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, p geo.GeoPoint) (string, error) {
	q := url.Values{}
	q.Set("latlng", p.String())
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}
	if g.language != "" {
		q.Set("language", g.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocoding request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: http %d", ErrProviderStatus, resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocoding response: %w", err)
	}

	switch body.Status {
	case "OK":
		if len(body.Results) == 0 {
			return "", ErrNoResults
		}
		return body.Results[0].FormattedAddress, nil
	case "ZERO_RESULTS":
		return "", ErrNoResults
	default:
		return "", fmt.Errorf("%w: %s %s", ErrProviderStatus, body.Status, body.ErrorMessage)
	}
}
