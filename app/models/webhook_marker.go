package models

import "time"

// WebhookMarker records that a webhook event key has been fully handled.
// Write-once: its existence is the deduplication gate.
type WebhookMarker struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventKey    string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_key"`
	ContextJSON string    `gorm:"type:text" json:"context_json"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
