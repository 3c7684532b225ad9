package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// PlacesClient looks up points of interest near a property to enrich the
// listing with location selling points ("A 350m de Metro Los Leones"). Any
// failure degrades to no extra selling points; location enrichment never
// blocks publication.
type PlacesClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

func NewPlacesClient(endpoint, apiKey string, logger *slog.Logger) *PlacesClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlacesClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

var placeTypes = map[string]string{
	"subway_station": "Metro",
	"park":           "Parque",
	"school":         "Colegio",
	"supermarket":    "Supermercado",
	"hospital":       "Hospital",
}

type placesResponse struct {
	Results []struct {
		Name     string   `json:"name"`
		Types    []string `json:"types"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NearbyHighlights returns up to three human-readable proximity points for
// the given coordinates, nearest first.
func (p *PlacesClient) NearbyHighlights(ctx context.Context, coords domain.Coordinates) []string {
	if p.endpoint == "" || p.apiKey == "" {
		return nil
	}

	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", coords.Lat, coords.Lng))
	q.Set("radius", "800")
	q.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("places lookup failed", "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("places lookup failed", "status", resp.StatusCode)
		return nil
	}

	var payload placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}

	type highlight struct {
		text   string
		meters int
	}
	var found []highlight
	seen := make(map[string]bool)
	for _, r := range payload.Results {
		label := ""
		for _, t := range r.Types {
			if l, ok := placeTypes[t]; ok {
				label = l
				break
			}
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		m := int(haversineMeters(coords.Lat, coords.Lng, r.Geometry.Location.Lat, r.Geometry.Location.Lng))
		found = append(found, highlight{
			text:   fmt.Sprintf("A %dm de %s %s", m, label, r.Name),
			meters: m,
		})
	}

	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].meters < found[j-1].meters; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	if len(found) > 3 {
		found = found[:3]
	}

	out := make([]string, 0, len(found))
	for _, h := range found {
		out = append(out, h.text)
	}
	return out
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadius = 6_371_000.0
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
