// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (user_id, scope, key). Scope identifies the semantic operation
// (e.g., "submit_request" or the target request id for offers) so the same
// client key can be reused safely across unrelated operations. It enables
// safe retries for POST operations by letting handlers serve the originally
// produced resource without re-executing side effects.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
