package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// RegexExtractor is the degraded-mode extractor used when the model API is
// unreachable. It understands the most common Chilean shorthand only; a
// number with no unit next to it is never treated as a price.
type RegexExtractor struct{}

var (
	rePriceMillions = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:palos?|millones?)`)
	rePriceUF       = regexp.MustCompile(`(?i)(\d+(?:\.\d{3})*(?:,\d+)?)\s*uf\b`)
	rePricePesos    = regexp.MustCompile(`\$\s*(\d+(?:\.\d{3})+)`)
	reArea          = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:m2|m²|metros(?:\s+cuadrados)?)`)
	reBedrooms      = regexp.MustCompile(`(?i)(\d+)\s*(?:dormitorios?|dorms?|piezas?|habitaciones?)`)
	reBathrooms     = regexp.MustCompile(`(?i)(\d+)\s*(?:baños?|banos?)`)
	reParking       = regexp.MustCompile(`(?i)(\d+)\s*(?:estacionamientos?|estaciona)`)
)

func NewRegexExtractor() *RegexExtractor { return &RegexExtractor{} }

func (e *RegexExtractor) ExtractText(_ context.Context, text string) (domain.PropertyFields, error) {
	var f domain.PropertyFields
	lower := strings.ToLower(text)

	if m := rePriceMillions.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			f.Price = &domain.Price{Amount: ptr(v * 1_000_000), Currency: ptr("CLP")}
		}
	} else if m := rePriceUF.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			f.Price = &domain.Price{Amount: ptr(v), Currency: ptr("UF")}
		}
	} else if m := rePricePesos.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			f.Price = &domain.Price{Amount: ptr(v), Currency: ptr("CLP")}
		}
	}

	if m := reArea.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			f.Area = &domain.Area{Total: ptr(v)}
		}
	}
	if m := reBedrooms.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			f.Bedrooms = ptr(n)
		}
	}
	if m := reBathrooms.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			f.Bathrooms = ptr(n)
		}
	}
	if m := reParking.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			f.Parking = ptr(n)
		}
	}

	switch {
	case strings.Contains(lower, "depa") || strings.Contains(lower, "departamento"):
		f.Type = ptr("departamento")
	case strings.Contains(lower, "casa"):
		f.Type = ptr("casa")
	case strings.Contains(lower, "oficina"):
		f.Type = ptr("oficina")
	case strings.Contains(lower, "terreno") || strings.Contains(lower, "sitio"):
		f.Type = ptr("terreno")
	}

	switch {
	case strings.Contains(lower, "arriendo") || strings.Contains(lower, "arrendar"):
		f.Operation = ptr("arriendo")
	case strings.Contains(lower, "venta") || strings.Contains(lower, "vender") || strings.Contains(lower, "vendo"):
		f.Operation = ptr("venta")
	}

	if t := strings.TrimSpace(text); t != "" {
		summary := t
		if len(summary) > 200 {
			summary = summary[:200]
		}
		f.Summary = ptr(summary)
	}

	return Normalize(f), nil
}

// ExtractAudio cannot work without a transcription backend.
func (e *RegexExtractor) ExtractAudio(_ context.Context, _ string, _ string) (domain.PropertyFields, error) {
	return domain.PropertyFields{}, nil
}

// parseNumber handles Chilean formatting where "." groups thousands and
// "," marks decimals, alongside plain floats.
func parseNumber(s string) (float64, bool) {
	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if strings.Count(s, ".") > 1 || regexp.MustCompile(`\.\d{3}$`).MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func ptr[T any](v T) *T { return &v }
