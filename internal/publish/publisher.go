package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// ErrNoDestinations is returned when Publish is called with nothing to
// publish to. This is an infrastructure error, not a per-destination one.
var ErrNoDestinations = errors.New("no publication destinations configured")

// HTTPPublisher fans a finished listing out to each destination in order,
// sequentially, and collects one PublishResult per destination. A failing
// destination never stops the fan-out.
type HTTPPublisher struct {
	destinations []Destination
	copywriter   *Copywriter
	places       *PlacesClient
	client       *http.Client
	logger       *slog.Logger
}

type PublisherConfig struct {
	Destinations []Destination
	Copywriter   *Copywriter
	Places       *PlacesClient
	Logger       *slog.Logger
}

func NewHTTPPublisher(cfg PublisherConfig) *HTTPPublisher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPPublisher{
		destinations: cfg.Destinations,
		copywriter:   cfg.Copywriter,
		places:       cfg.Places,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       cfg.Logger,
	}
}

type destinationResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, rec *domain.CaptureRecord) ([]domain.PublishResult, error) {
	if len(p.destinations) == 0 {
		return nil, ErrNoDestinations
	}

	var copy domain.ListingCopy
	if p.copywriter != nil {
		copy = p.copywriter.Compose(ctx, rec)
	} else {
		copy = FallbackCopy(rec.Fields)
	}

	var usps []string
	if p.places != nil && rec.Fields.Address != nil && rec.Fields.Address.Coordinates != nil {
		usps = p.places.NearbyHighlights(ctx, *rec.Fields.Address.Coordinates)
	}

	listing := domain.BuildListing(rec, copy, usps)
	body, err := json.Marshal(listing)
	if err != nil {
		return nil, fmt.Errorf("marshal listing: %w", err)
	}

	results := make([]domain.PublishResult, 0, len(p.destinations))
	for _, dest := range p.destinations {
		results = append(results, p.pushOne(ctx, dest, body))
	}
	return results, nil
}

func (p *HTTPPublisher) pushOne(ctx context.Context, dest Destination, body []byte) domain.PublishResult {
	result := domain.PublishResult{Destination: dest.Name}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(body))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	if dest.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+dest.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("destination unreachable", "destination", dest.Name, "error", err)
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Warn("destination rejected listing",
			"destination", dest.Name, "status", resp.StatusCode)
		result.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		return result
	}

	var payload destinationResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && err != io.EOF {
		result.Error = fmt.Sprintf("bad response: %v", err)
		return result
	}

	result.Success = true
	result.ID = payload.ID
	result.URL = payload.URL
	p.logger.Info("listing published", "destination", dest.Name, "listing", payload.ID)
	return result
}
