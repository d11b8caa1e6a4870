package media

import (
	"context"
	"math"

	"gemini-console/internal/models"
)

// Quota is the storage usage shown above the gallery.
type Quota struct {
	StorageType string
	// Shown is false for backends without local limits; no request is made.
	Shown   bool
	Details models.StorageDetails
}

// HasQuota reports whether a backend exposes storage details.
func HasQuota(storageType string) bool {
	return storageType == "local" || storageType == "memory"
}

// CountPercent is the image count against its maximum, 0 when unlimited.
func (q Quota) CountPercent() float64 {
	if q.Details.MaxImages <= 0 {
		return 0
	}
	return float64(q.Details.TotalImages) / float64(q.Details.MaxImages) * 100
}

// SizeBar reports whether the size bar is drawn; it needs a maximum.
func (q Quota) SizeBar() bool {
	return q.Details.MaxSizeMB > 0
}

func (q Quota) SizePercent() float64 {
	if !q.SizeBar() {
		return 0
	}
	return q.Details.TotalSizeMB / q.Details.MaxSizeMB * 100
}

// RoundPercent is the whole-number label of a bar.
func RoundPercent(p float64) int {
	return int(math.Round(p))
}

// LoadQuota fetches storage details for local and memory storage.
func (g *Gallery) LoadQuota(ctx context.Context, storageType string) (*Quota, error) {
	q := &Quota{StorageType: storageType}
	if HasQuota(storageType) {
		details, err := g.backend.StorageDetails(ctx, storageType)
		if err != nil {
			return nil, err
		}
		q.Shown = true
		q.Details = *details
	}
	g.mu.Lock()
	g.quota = q
	g.mu.Unlock()
	return q, nil
}

func (g *Gallery) Quota() *Quota {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.quota
}
