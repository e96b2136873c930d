// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/domain"
)

// RequestsStats returns aggregate metadata for a buyer's requests: the total
// number of rows and the maximum UpdatedAt timestamp among those rows. When
// the buyer has no requests, count is 0 and maxUpdatedAt is nil.
func RequestsStats(ctx context.Context, db *gorm.DB, buyerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.PartRequest{}).Where("buyer_id = ?", buyerID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
