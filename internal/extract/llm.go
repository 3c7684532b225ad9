// Package extract turns raw operator input (text or voice notes) into
// partial PropertyFields trees. The hard rule shared by every extractor:
// unmentioned fields stay nil. Price, area, bathrooms and address are sacred —
// a guessed value is worse than no value.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/llm"
)

const extractionPrompt = `Eres un experto en extracción de datos inmobiliarios de Chile.
Analiza el siguiente texto (transcripción de audio o mensaje directo) y extrae la información de la propiedad.

REGLAS CRÍTICAS:
1. NO alucines datos. Si algo no se menciona, déjalo null.
2. Precio, superficie y baños son SAGRADOS - solo extráelos si se mencionan explícitamente.
3. Interpreta jerga chilena: "depa" = departamento, "estaciona" = estacionamiento.
4. Para precios: "150 palos" = 150000000 CLP, "2.500 UF" = 2500 UF.

Texto a analizar:
---
%s
---

Responde SOLO con un JSON válido con esta estructura:
{
  "type": "departamento|casa|oficina|terreno|local|null",
  "operation": "venta|arriendo|null",
  "price": {"amount": number|null, "currency": "CLP|UF|USD"},
  "area": {"total": number|null, "usable": number|null},
  "bedrooms": number|null,
  "bathrooms": number|null,
  "parking": number|null,
  "storage": boolean|null,
  "address": {"street": string|null, "number": string|null, "district": string|null},
  "summary": "resumen breve de lo mencionado",
  "sellingPoints": ["puntos destacados mencionados"]
}`

// Fetchers resolves media references by channel name.
type Fetchers map[string]domain.MediaFetcher

// LLMExtractor extracts fields with a chat model and transcribes voice
// notes before extraction.
type LLMExtractor struct {
	client      *llm.Client
	transcriber *llm.Transcriber
	fetchers    Fetchers
	logger      *slog.Logger
}

type LLMExtractorConfig struct {
	Client      *llm.Client
	Transcriber *llm.Transcriber
	Fetchers    Fetchers
	Logger      *slog.Logger
}

func NewLLMExtractor(cfg LLMExtractorConfig) *LLMExtractor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LLMExtractor{
		client:      cfg.Client,
		transcriber: cfg.Transcriber,
		fetchers:    cfg.Fetchers,
		logger:      cfg.Logger,
	}
}

func (e *LLMExtractor) ExtractText(ctx context.Context, text string) (domain.PropertyFields, error) {
	raw, err := e.client.Complete(ctx, fmt.Sprintf(extractionPrompt, text), llm.CompleteOptions{
		Temperature: 0,
	})
	if err != nil {
		return domain.PropertyFields{}, fmt.Errorf("extraction completion: %w", err)
	}

	fields, err := ParsePayload(raw)
	if err != nil {
		return domain.PropertyFields{}, fmt.Errorf("parse extraction output: %w", err)
	}

	e.logger.Debug("text extraction done", "text_len", len(text))
	return fields, nil
}

func (e *LLMExtractor) ExtractAudio(ctx context.Context, channel, mediaRef string) (domain.PropertyFields, error) {
	fetcher, ok := e.fetchers[channel]
	if !ok {
		return domain.PropertyFields{}, fmt.Errorf("no media fetcher for channel %q", channel)
	}

	audio, filename, err := fetcher.FetchMedia(ctx, mediaRef)
	if err != nil {
		return domain.PropertyFields{}, fmt.Errorf("fetch audio %s: %w", mediaRef, err)
	}

	transcript, err := e.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return domain.PropertyFields{}, fmt.Errorf("transcribe audio: %w", err)
	}

	return e.ExtractText(ctx, transcript)
}

// ParsePayload decodes a model response into PropertyFields. Models wrap
// JSON in code fences and occasionally emit slightly broken JSON, so the
// payload is unfenced and repaired before unmarshalling, then normalized so
// half-empty groups cannot smuggle in currency or unit defaults.
func ParsePayload(raw string) (domain.PropertyFields, error) {
	cleaned := StripFences(raw)

	if !json.Valid([]byte(cleaned)) {
		repaired, err := jsonrepair.JSONRepair(cleaned)
		if err != nil {
			return domain.PropertyFields{}, fmt.Errorf("irreparable JSON: %w", err)
		}
		cleaned = repaired
	}

	var fields domain.PropertyFields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return domain.PropertyFields{}, err
	}
	return Normalize(fields), nil
}

// Normalize drops nested groups whose meaningful leaves are all nil. An
// extraction that says {"amount": null, "currency": "CLP"} mentioned no
// price; keeping the group would let a default currency overwrite a real
// one captured earlier.
func Normalize(f domain.PropertyFields) domain.PropertyFields {
	if f.Price != nil && f.Price.Amount == nil {
		f.Price = nil
	}
	if f.Area != nil && f.Area.Total == nil && f.Area.Usable == nil {
		f.Area = nil
	}
	if a := f.Address; a != nil {
		if a.Street == nil && a.Number == nil && a.District == nil && a.Region == nil && a.Coordinates == nil {
			f.Address = nil
		}
	}
	if f.Summary != nil && strings.TrimSpace(*f.Summary) == "" {
		f.Summary = nil
	}
	return f
}

// StripFences removes markdown code fences and surrounding prose from a
// model response, leaving the outermost JSON object.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	// Models sometimes add prose around the object; cut to the outermost braces.
	if start := strings.Index(s, "{"); start > 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
