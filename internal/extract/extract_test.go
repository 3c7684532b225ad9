package extract

import (
	"context"
	"testing"
)

func TestRegexExtractor_ChileanShorthand(t *testing.T) {
	e := NewRegexExtractor()
	f, err := e.ExtractText(context.Background(), "depa 2 dormitorios, 3500 UF, 60m2, 1 baño")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if f.Price == nil || f.Price.Amount == nil || *f.Price.Amount != 3500 {
		t.Fatalf("expected price 3500, got %+v", f.Price)
	}
	if *f.Price.Currency != "UF" {
		t.Fatalf("expected currency UF, got %s", *f.Price.Currency)
	}
	if f.Area == nil || f.Area.Total == nil || *f.Area.Total != 60 {
		t.Fatalf("expected area 60, got %+v", f.Area)
	}
	if f.Bedrooms == nil || *f.Bedrooms != 2 {
		t.Fatalf("expected 2 bedrooms, got %+v", f.Bedrooms)
	}
	if f.Bathrooms == nil || *f.Bathrooms != 1 {
		t.Fatalf("expected 1 bathroom, got %+v", f.Bathrooms)
	}
	if f.Type == nil || *f.Type != "departamento" {
		t.Fatalf("expected departamento, got %+v", f.Type)
	}
	if f.Address != nil {
		t.Fatalf("no address mentioned, got %+v", f.Address)
	}
}

func TestRegexExtractor_PriceNeedsUnit(t *testing.T) {
	e := NewRegexExtractor()
	f, err := e.ExtractText(context.Background(), "casa con 3 dormitorios y 2 baños")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if f.Price != nil {
		t.Fatalf("bare counts must not become a price, got %+v", f.Price)
	}
	if *f.Bedrooms != 3 || *f.Bathrooms != 2 {
		t.Fatalf("counts wrong: %+v %+v", f.Bedrooms, f.Bathrooms)
	}
}

func TestRegexExtractor_Palos(t *testing.T) {
	e := NewRegexExtractor()
	f, _ := e.ExtractText(context.Background(), "vendo casa en 150 palos")
	if f.Price == nil || *f.Price.Amount != 150_000_000 || *f.Price.Currency != "CLP" {
		t.Fatalf("expected 150000000 CLP, got %+v", f.Price)
	}
	if f.Operation == nil || *f.Operation != "venta" {
		t.Fatalf("expected venta, got %+v", f.Operation)
	}
}

func TestRegexExtractor_DottedThousands(t *testing.T) {
	e := NewRegexExtractor()
	f, _ := e.ExtractText(context.Background(), "arriendo oficina $1.500.000 mensual")
	if f.Price == nil || *f.Price.Amount != 1_500_000 {
		t.Fatalf("expected 1500000, got %+v", f.Price)
	}
	if *f.Operation != "arriendo" {
		t.Fatalf("expected arriendo, got %+v", f.Operation)
	}
}

func TestParsePayload_CodeFences(t *testing.T) {
	raw := "```json\n{\"type\": \"casa\", \"price\": {\"amount\": 5500, \"currency\": \"UF\"}}\n```"
	f, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *f.Type != "casa" || *f.Price.Amount != 5500 {
		t.Fatalf("unexpected fields: %+v", f)
	}
}

func TestParsePayload_RepairsBrokenJSON(t *testing.T) {
	// Trailing comma, single quotes — typical model slop.
	raw := `{'type': 'departamento', 'bedrooms': 2,}`
	f, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type == nil || *f.Type != "departamento" || *f.Bedrooms != 2 {
		t.Fatalf("unexpected fields: %+v", f)
	}
}

func TestParsePayload_NullAmountDropsPriceGroup(t *testing.T) {
	raw := `{"price": {"amount": null, "currency": "CLP"}, "bathrooms": 2}`
	f, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Price != nil {
		t.Fatalf("price group with null amount must be dropped, got %+v", f.Price)
	}
	if *f.Bathrooms != 2 {
		t.Fatalf("bathrooms lost: %+v", f.Bathrooms)
	}
}
