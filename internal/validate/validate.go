// Package validate implements the completeness and plausibility policy for
// capture records. The sacred fields (price, area, bathrooms, address) block
// publication both when absent and when present but outside plausible ranges;
// the nice-to-have fields only ever produce warnings.
package validate

import (
	"fmt"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// Plausible value ranges for the Chilean market.
var priceRanges = map[string]struct{ min, max float64 }{
	"CLP": {10_000_000, 50_000_000_000}, // 10M - 50B pesos
	"UF":  {500, 100_000},
	"USD": {10_000, 50_000_000},
}

const (
	minArea  = 10
	maxArea  = 10_000
	minCount = 0
	maxCount = 20
)

// Missing returns the required-field names not yet present in the tree.
// The orchestrator recomputes this after every merge; nothing else may
// compute staleness-prone copies.
func Missing(f domain.PropertyFields) []string {
	var missing []string
	if !f.HasPrice() {
		missing = append(missing, domain.FieldPrice)
	}
	if !f.HasArea() {
		missing = append(missing, domain.FieldArea)
	}
	if !f.HasBathrooms() {
		missing = append(missing, domain.FieldBathrooms)
	}
	if !f.HasAddress() {
		missing = append(missing, domain.FieldAddress)
	}
	return missing
}

// Result reports plausibility problems found in a field tree. Errors block
// completeness even when the field is nominally present; warnings are
// advisory and never block progression.
type Result struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// Check range-validates every present value. Absent fields are not errors
// here — absence is Missing's concern.
func Check(f domain.PropertyFields) Result {
	var res Result

	if f.HasPrice() {
		currency := "CLP"
		if f.Price.Currency != nil {
			currency = *f.Price.Currency
		}
		r, ok := priceRanges[currency]
		if !ok {
			r = priceRanges["CLP"]
		}
		if v := *f.Price.Amount; v < r.min || v > r.max {
			res.Errors = append(res.Errors,
				fmt.Sprintf("precio fuera de rango para %s: %.0f", currency, v))
		}
	}

	if f.HasArea() {
		if v := *f.Area.Total; v < minArea || v > maxArea {
			res.Errors = append(res.Errors,
				fmt.Sprintf("superficie fuera de rango: %.0fm²", v))
		}
	}

	checkCount := func(v *int, name string) {
		if v == nil {
			return
		}
		if *v < minCount || *v > maxCount {
			res.Errors = append(res.Errors,
				fmt.Sprintf("cantidad de %s parece incorrecta: %d", name, *v))
		}
	}
	checkCount(f.Bathrooms, "baños")
	checkCount(f.Bedrooms, "dormitorios")
	checkCount(f.Parking, "estacionamientos")

	if f.Address == nil || f.Address.District == nil {
		res.Warnings = append(res.Warnings, "no se detectó la comuna")
	}
	if f.Bedrooms == nil {
		res.Warnings = append(res.Warnings, "no se detectó cantidad de dormitorios")
	}

	res.OK = len(res.Errors) == 0
	return res
}

// Complete reports whether a field tree satisfies the completeness policy:
// nothing required missing and no plausibility errors.
func Complete(f domain.PropertyFields) bool {
	return len(Missing(f)) == 0 && Check(f).OK
}
