package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/extract"
	"github.com/chuchurex/papaia.cl/internal/llm"
)

const copyPrompt = `Eres un copywriter inmobiliario chileno.
Escribe el aviso para esta propiedad (datos en JSON):
%s

Responde SOLO con JSON:
{"title": "máx 70 caracteres", "description": "2-3 párrafos, sin inventar datos", "hashtags": ["3 a 5 hashtags"]}`

// Copywriter produces the marketing copy for a listing. A model failure
// degrades to deterministic copy assembled from the captured fields; copy
// generation never blocks publication.
type Copywriter struct {
	client *llm.Client
	logger *slog.Logger
}

func NewCopywriter(client *llm.Client, logger *slog.Logger) *Copywriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Copywriter{client: client, logger: logger}
}

func (c *Copywriter) Compose(ctx context.Context, rec *domain.CaptureRecord) domain.ListingCopy {
	if c.client == nil {
		return FallbackCopy(rec.Fields)
	}

	snapshot, err := json.Marshal(rec.Fields)
	if err != nil {
		return FallbackCopy(rec.Fields)
	}

	raw, err := c.client.Complete(ctx, fmt.Sprintf(copyPrompt, snapshot), llm.CompleteOptions{
		Temperature: 0.8,
		MaxTokens:   600,
	})
	if err != nil {
		c.logger.Warn("copy generation failed, using fallback", "capture", rec.ID, "error", err)
		return FallbackCopy(rec.Fields)
	}

	var copy domain.ListingCopy
	if err := json.Unmarshal([]byte(extract.StripFences(raw)), &copy); err != nil || copy.Title == "" {
		c.logger.Warn("copy output unusable, using fallback", "capture", rec.ID, "error", err)
		return FallbackCopy(rec.Fields)
	}
	return copy
}

// FallbackCopy builds serviceable copy straight from the fields.
func FallbackCopy(f domain.PropertyFields) domain.ListingCopy {
	var parts []string
	if f.Type != nil {
		parts = append(parts, capitalize(*f.Type))
	} else {
		parts = append(parts, "Propiedad")
	}
	if f.Operation != nil {
		parts = append(parts, "en "+*f.Operation)
	}
	if f.Address != nil && f.Address.District != nil {
		parts = append(parts, "en "+*f.Address.District)
	}
	if f.Price != nil && f.Price.Amount != nil {
		currency := "CLP"
		if f.Price.Currency != nil {
			currency = *f.Price.Currency
		}
		parts = append(parts, fmt.Sprintf("· %s %s", formatAmount(*f.Price.Amount), currency))
	}
	title := strings.Join(parts, " ")

	var details []string
	if f.Area != nil && f.Area.Total != nil {
		details = append(details, fmt.Sprintf("%.0f m²", *f.Area.Total))
	}
	if f.Bedrooms != nil {
		details = append(details, fmt.Sprintf("%d dormitorios", *f.Bedrooms))
	}
	if f.Bathrooms != nil {
		details = append(details, fmt.Sprintf("%d baños", *f.Bathrooms))
	}
	if f.Parking != nil && *f.Parking > 0 {
		details = append(details, fmt.Sprintf("%d estacionamientos", *f.Parking))
	}

	var desc strings.Builder
	if f.Summary != nil {
		desc.WriteString(*f.Summary)
		desc.WriteString("\n\n")
	}
	if len(details) > 0 {
		desc.WriteString(strings.Join(details, " · "))
	}

	return domain.ListingCopy{
		Title:       title,
		Description: strings.TrimSpace(desc.String()),
		Hashtags:    []string{"#propiedades", "#chile", "#papaia"},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatAmount(v float64) string {
	if v >= 1_000_000 {
		return fmt.Sprintf("%.0fM", v/1_000_000)
	}
	return fmt.Sprintf("%.0f", v)
}
