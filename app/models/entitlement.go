package models

import "time"

// Entitlement is a user's right to one capability, granted by a single
// provider-side source (order or subscription). Rows are updated in place on
// later lifecycle events for the same source and are never hard-deleted.
type Entitlement struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         string     `gorm:"type:varchar(64);not null;index:ux_entitlements_identity,unique,priority:1;index:idx_entitlements_user_key,priority:1" json:"user_id"`
	EntitlementKey string     `gorm:"type:varchar(100);not null;index:ux_entitlements_identity,unique,priority:2;index:idx_entitlements_user_key,priority:2" json:"entitlement_key"`
	SourceID       string     `gorm:"type:varchar(191);not null;index:ux_entitlements_identity,unique,priority:3;index:idx_entitlements_source,priority:2" json:"source_id"`
	Status         string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	SourceProvider string     `gorm:"type:varchar(20);not null;index:idx_entitlements_source,priority:1" json:"source_provider"`
	SourceType     string     `gorm:"type:varchar(16);not null" json:"source_type"`
	StartsAt       time.Time  `gorm:"type:datetime(3);not null" json:"starts_at"`
	ExpiresAt      *time.Time `gorm:"type:datetime(3);default:null" json:"expires_at,omitempty"`
	MetaJSON       string     `gorm:"type:text" json:"meta_json"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
