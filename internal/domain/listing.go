package domain

import (
	"time"

	"github.com/google/uuid"
)

// Property types and operations accepted by publication destinations.
var (
	PropertyTypes = []string{"departamento", "casa", "oficina", "terreno", "local", "bodega", "estacionamiento"}
	Operations    = []string{"venta", "arriendo"}
)

// ListingCopy is the generated marketing copy for a listing.
type ListingCopy struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags,omitempty"`
}

// Listing is the finished, publishable form of a completed capture.
type Listing struct {
	ID            string         `json:"id"`
	CaptureID     string         `json:"captureId"`
	Fields        PropertyFields `json:"fields"`
	Copy          ListingCopy    `json:"copy"`
	Photos        []string       `json:"photos,omitempty"` // enhanced refs, curated order
	SellingPoints []string       `json:"sellingPoints,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// BuildListing assembles a Listing from a capture and its generated copy.
// Enhanced photo refs are preferred; the original ref is the fallback.
func BuildListing(rec *CaptureRecord, copy ListingCopy, extraUSPs []string) Listing {
	photos := make([]string, 0, len(rec.Photos))
	for _, p := range rec.Photos {
		if p.EnhancedRef != "" {
			photos = append(photos, p.EnhancedRef)
		} else {
			photos = append(photos, p.Ref)
		}
	}
	return Listing{
		ID:            uuid.NewString(),
		CaptureID:     rec.ID,
		Fields:        rec.Fields,
		Copy:          copy,
		Photos:        photos,
		SellingPoints: mergeSet(rec.Fields.SellingPoints, extraUSPs),
		CreatedAt:     time.Now(),
	}
}
