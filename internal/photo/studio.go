package photo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// HTTPStudio calls an external photo-processing service that classifies,
// scores and enhances a single photo per request.
type HTTPStudio struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

type HTTPStudioConfig struct {
	Endpoint string
	APIKey   string
	Logger   *slog.Logger
}

func NewHTTPStudio(cfg HTTPStudioConfig) *HTTPStudio {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPStudio{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   cfg.Logger,
	}
}

type studioRequest struct {
	Reference string `json:"reference"`
	Channel   string `json:"channel"`
}

type studioResponse struct {
	Reference         string `json:"reference"`
	EnhancedReference string `json:"enhancedReference,omitempty"`
	Category          string `json:"category"`
	Score             int    `json:"score"`
	Accepted          bool   `json:"accepted"`
	Reason            string `json:"reason,omitempty"`
}

func (s *HTTPStudio) Process(ctx context.Context, channel, mediaRef string) (domain.StudioResult, error) {
	body, err := json.Marshal(studioRequest{Reference: mediaRef, Channel: channel})
	if err != nil {
		return domain.StudioResult{}, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.StudioResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.StudioResult{}, fmt.Errorf("photo studio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return domain.StudioResult{}, fmt.Errorf("photo studio %d: %s", resp.StatusCode, string(respBody))
	}

	var out studioResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.StudioResult{}, fmt.Errorf("decode studio response: %w", err)
	}

	if !out.Accepted {
		s.logger.Warn("photo rejected by studio", "ref", mediaRef, "reason", out.Reason)
	}

	return domain.StudioResult{
		Photo: domain.ProcessedPhoto{
			Ref:         out.Reference,
			EnhancedRef: out.EnhancedReference,
			Category:    out.Category,
			Score:       out.Score,
		},
		Accepted: out.Accepted,
	}, nil
}

// PassthroughStudio accepts every photo unchanged with a neutral category
// and score. It is the default when no studio endpoint is configured, so
// captures can still collect photos without the external service.
type PassthroughStudio struct{}

func (PassthroughStudio) Process(_ context.Context, _, mediaRef string) (domain.StudioResult, error) {
	return domain.StudioResult{
		Photo: domain.ProcessedPhoto{
			Ref:      mediaRef,
			Category: CategoryOther,
			Score:    75,
		},
		Accepted: true,
	}, nil
}
