package validate

import (
	"reflect"
	"strings"
	"testing"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }
func num(n int) *int         { return &n }

func TestMissing_AllRequiredWhenEmpty(t *testing.T) {
	got := Missing(domain.PropertyFields{})
	want := []string{"price", "area", "bathrooms", "address"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMissing_PartialCapture(t *testing.T) {
	f := domain.PropertyFields{
		Area:      &domain.Area{Total: f64(60)},
		Bathrooms: num(1),
	}
	got := Missing(f)
	want := []string{"price", "address"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCheck_PriceRanges(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		ok       bool
	}{
		{2_500_000_000, "CLP", true},
		{500, "CLP", false},
		{60_000_000_000, "CLP", false},
		{3500, "UF", true},
		{499, "UF", false},
		{250_000, "USD", true},
		{5_000, "USD", false},
	}

	for _, tc := range cases {
		f := domain.PropertyFields{Price: &domain.Price{Amount: f64(tc.amount), Currency: str(tc.currency)}}
		res := Check(f)
		if res.OK != tc.ok {
			t.Errorf("%.0f %s: expected ok=%v, got errors %v", tc.amount, tc.currency, tc.ok, res.Errors)
		}
	}
}

func TestCheck_AreaAndCounts(t *testing.T) {
	f := domain.PropertyFields{
		Area:      &domain.Area{Total: f64(5)},
		Bathrooms: num(25),
	}
	res := Check(f)
	if res.OK {
		t.Fatal("expected errors")
	}
	joined := strings.Join(res.Errors, "\n")
	if !strings.Contains(joined, "superficie") || !strings.Contains(joined, "baños") {
		t.Fatalf("missing expected errors: %v", res.Errors)
	}
}

func TestCheck_WarningsAreAdvisory(t *testing.T) {
	f := domain.PropertyFields{
		Price:     &domain.Price{Amount: f64(3500), Currency: str("UF")},
		Area:      &domain.Area{Total: f64(60)},
		Bathrooms: num(1),
		Address:   &domain.Address{Street: str("Av. Italia 1000")},
	}
	res := Check(f)
	if !res.OK {
		t.Fatalf("warnings must not block: %v", res.Errors)
	}
	joined := strings.Join(res.Warnings, "\n")
	if !strings.Contains(joined, "comuna") || !strings.Contains(joined, "dormitorios") {
		t.Fatalf("expected comuna and dormitorios warnings: %v", res.Warnings)
	}
}

func TestCheck_UnknownCurrencyFallsBackToCLP(t *testing.T) {
	f := domain.PropertyFields{Price: &domain.Price{Amount: f64(3500), Currency: str("EUR")}}
	if res := Check(f); res.OK {
		t.Fatal("3500 under CLP range must be an error")
	}
}

func TestComplete(t *testing.T) {
	f := domain.PropertyFields{
		Price:     &domain.Price{Amount: f64(2_500_000_000), Currency: str("CLP")},
		Area:      &domain.Area{Total: f64(120)},
		Bathrooms: num(2),
		Address:   &domain.Address{District: str("Las Condes")},
	}
	if !Complete(f) {
		t.Fatal("complete tree reported incomplete")
	}

	f.Price.Amount = f64(500)
	if Complete(f) {
		t.Fatal("implausible price must block completeness")
	}
}
