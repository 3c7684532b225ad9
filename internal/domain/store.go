package domain

import (
	"context"
	"time"
)

// CaptureStore keys in-flight captures by channel address. Implementations
// must be safe for concurrent lookup/insert across addresses; callers
// serialize mutations of any single record per address.
type CaptureStore interface {
	// Get returns the capture for an address, or (nil, nil) when none exists.
	Get(ctx context.Context, address string) (*CaptureRecord, error)
	Put(ctx context.Context, rec *CaptureRecord) error
	Delete(ctx context.Context, address string) error
	List(ctx context.Context) ([]*CaptureRecord, error)
	// Sweep evicts every capture whose ExpiresAt precedes now and returns
	// how many were removed. Eviction is the only deletion path in the
	// normal flow.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
