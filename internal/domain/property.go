package domain

// PropertyFields is the nested tree of listing attributes collected across
// turns. Every leaf is a pointer: nil means "not mentioned yet", never zero.
// Extraction collaborators must return nil for anything the operator did not
// say explicitly — the sacred fields (price, area, bathrooms, address) are
// never guessed.
type PropertyFields struct {
	Type      *string `json:"type,omitempty"`      // departamento, casa, oficina, terreno, local
	Operation *string `json:"operation,omitempty"` // venta, arriendo

	Price   *Price   `json:"price,omitempty"`
	Area    *Area    `json:"area,omitempty"`
	Address *Address `json:"address,omitempty"`

	Bedrooms  *int  `json:"bedrooms,omitempty"`
	Bathrooms *int  `json:"bathrooms,omitempty"`
	Parking   *int  `json:"parking,omitempty"`
	Storage   *bool `json:"storage,omitempty"`

	Summary       *string  `json:"summary,omitempty"`
	SellingPoints []string `json:"sellingPoints,omitempty"`
}

type Price struct {
	Amount   *float64 `json:"amount"`
	Currency *string  `json:"currency,omitempty"` // CLP, UF, USD
}

type Area struct {
	Total  *float64 `json:"total"`
	Usable *float64 `json:"usable,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Address struct {
	Street      *string      `json:"street,omitempty"`
	Number      *string      `json:"number,omitempty"`
	District    *string      `json:"district,omitempty"`
	Region      *string      `json:"region,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Merge combines a new partial extraction into f and returns the result.
// For every leaf, a non-nil incoming value overwrites the existing one;
// nil incoming leaves never regress a value already captured. Nested groups
// merge recursively so a later "price 3500 UF" does not erase an earlier
// street name, and vice versa. Selling points accumulate as a set.
func (f PropertyFields) Merge(in PropertyFields) PropertyFields {
	out := f

	out.Type = mergeLeaf(f.Type, in.Type)
	out.Operation = mergeLeaf(f.Operation, in.Operation)
	out.Bedrooms = mergeLeaf(f.Bedrooms, in.Bedrooms)
	out.Bathrooms = mergeLeaf(f.Bathrooms, in.Bathrooms)
	out.Parking = mergeLeaf(f.Parking, in.Parking)
	out.Storage = mergeLeaf(f.Storage, in.Storage)
	out.Summary = mergeLeaf(f.Summary, in.Summary)

	out.Price = mergePrice(f.Price, in.Price)
	out.Area = mergeArea(f.Area, in.Area)
	out.Address = mergeAddress(f.Address, in.Address)

	out.SellingPoints = mergeSet(f.SellingPoints, in.SellingPoints)

	return out
}

func mergeLeaf[T any](existing, incoming *T) *T {
	if incoming != nil {
		return incoming
	}
	return existing
}

func mergePrice(existing, incoming *Price) *Price {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return clone(*incoming)
	}
	return clone(Price{
		Amount:   mergeLeaf(existing.Amount, incoming.Amount),
		Currency: mergeLeaf(existing.Currency, incoming.Currency),
	})
}

func mergeArea(existing, incoming *Area) *Area {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return clone(*incoming)
	}
	return clone(Area{
		Total:  mergeLeaf(existing.Total, incoming.Total),
		Usable: mergeLeaf(existing.Usable, incoming.Usable),
	})
}

func mergeAddress(existing, incoming *Address) *Address {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return clone(*incoming)
	}
	return clone(Address{
		Street:      mergeLeaf(existing.Street, incoming.Street),
		Number:      mergeLeaf(existing.Number, incoming.Number),
		District:    mergeLeaf(existing.District, incoming.District),
		Region:      mergeLeaf(existing.Region, incoming.Region),
		Coordinates: mergeLeaf(existing.Coordinates, incoming.Coordinates),
	})
}

func mergeSet(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, s := range existing {
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range incoming {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func clone[T any](v T) *T { return &v }

// HasPrice reports whether a concrete price amount has been captured.
func (f PropertyFields) HasPrice() bool {
	return f.Price != nil && f.Price.Amount != nil
}

// HasArea reports whether a concrete total area has been captured.
func (f PropertyFields) HasArea() bool {
	return f.Area != nil && f.Area.Total != nil
}

// HasBathrooms reports whether the bathroom count has been captured.
func (f PropertyFields) HasBathrooms() bool {
	return f.Bathrooms != nil
}

// HasAddress reports whether any address component has been captured:
// a street, a district, or shared coordinates all satisfy the requirement.
func (f PropertyFields) HasAddress() bool {
	if f.Address == nil {
		return false
	}
	a := f.Address
	return a.Street != nil || a.District != nil || a.Coordinates != nil
}
