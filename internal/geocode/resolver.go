package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPResolver resolves coordinates against a Nominatim-style reverse
// geocoding endpoint and reduces the response to a coarse area name
type HTTPResolver struct {
	endpoint string
	client   *http.Client
}

// NewHTTPResolver creates a resolver for the given reverse endpoint
func NewHTTPResolver(endpoint string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// reverseResponse is the subset of the reverse geocoding payload we read
type reverseResponse struct {
	Name    string `json:"name"`
	Address struct {
		Amenity       string `json:"amenity"`
		Building      string `json:"building"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		CityDistrict  string `json:"city_district"`
		City          string `json:"city"`
	} `json:"address"`
}

// Resolve performs one reverse geocoding request. The returned name is the
// coarsest populated field, never a street address or raw coordinate.
func (r *HTTPResolver) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("format", "jsonv2")
	query.Set("zoom", "17")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode returned status %d", resp.StatusCode)
	}

	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode reverse geocode response: %w", err)
	}

	for _, candidate := range []string{
		payload.Address.Amenity,
		payload.Address.Building,
		payload.Name,
		payload.Address.Neighbourhood,
		payload.Address.Suburb,
		payload.Address.CityDistrict,
		payload.Address.City,
	} {
		if candidate != "" {
			return candidate, nil
		}
	}

	return "", nil
}
