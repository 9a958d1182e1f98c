package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// DefaultNominatimBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder calls a Nominatim /reverse endpoint.
type NominatimGeocoder struct {
	client    *http.Client
	baseURL   string
	userAgent string
	language  string
}

// NewNominatimGeocoder creates a NominatimGeocoder. Nominatim's usage policy
// requires an identifying User-Agent.
func NewNominatimGeocoder(client *http.Client, baseURL, userAgent, language string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimBaseURL
	}
	return &NominatimGeocoder{client: client, baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent, language: language}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// ReverseGeocode returns the display_name of the nearest object.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, p geo.GeoPoint) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lng, 'f', -1, 64))
	if g.language != "" {
		q.Set("accept-language", g.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocoding request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: http %d", ErrProviderStatus, resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if body.Error != "" || body.DisplayName == "" {
		return "", ErrNoResults
	}
	return body.DisplayName, nil
}
