// Package photo holds the photo-processing collaborator contract and the
// curation policy that bounds the selection a listing carries.
package photo

import "github.com/chuchurex/papaia.cl/internal/domain"

// Photo categories the studio collaborator may assign.
const (
	CategoryFacade   = "fachada"
	CategoryLiving   = "living"
	CategoryKitchen  = "cocina"
	CategoryBedroom  = "dormitorio"
	CategoryBathroom = "bano"
	CategoryTerrace  = "terraza"
	CategoryView     = "vista"
	CategoryPlan     = "plano"
	CategoryOther    = "otro"
)

// Curation defaults: at most two photos per category, ten overall.
const (
	DefaultMaxPerCategory = 2
	DefaultMaxTotal       = 10
)

// Curate merges newly processed photos into the existing selection and
// re-applies the selection policy: photos are ranked by descending score
// (ties keep the earlier arrival first, so an already-selected photo is
// never displaced by a later one with the same or lower score), then taken
// greedily up to maxPerCategory per category and maxTotal overall.
func Curate(existing, incoming []domain.ProcessedPhoto, maxPerCategory, maxTotal int) []domain.ProcessedPhoto {
	if maxPerCategory <= 0 {
		maxPerCategory = DefaultMaxPerCategory
	}
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}

	pool := make([]domain.ProcessedPhoto, 0, len(existing)+len(incoming))
	pool = append(pool, existing...)
	pool = append(pool, incoming...)

	// Insertion sort keeps equal scores in arrival order.
	for i := 1; i < len(pool); i++ {
		for j := i; j > 0 && pool[j].Score > pool[j-1].Score; j-- {
			pool[j], pool[j-1] = pool[j-1], pool[j]
		}
	}

	perCategory := make(map[string]int)
	selected := make([]domain.ProcessedPhoto, 0, maxTotal)
	for _, p := range pool {
		if len(selected) >= maxTotal {
			break
		}
		cat := p.Category
		if cat == "" {
			cat = CategoryOther
		}
		if perCategory[cat] >= maxPerCategory {
			continue
		}
		perCategory[cat]++
		selected = append(selected, p)
	}
	return selected
}
