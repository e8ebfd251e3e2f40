package models

import "time"

// WebhookEvent is the append-only audit record of a processed provider webhook.
type WebhookEvent struct {
	ID          string     `gorm:"type:char(36);primaryKey" json:"id"`
	Provider    string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	EventType   string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	EventKey    string     `gorm:"type:varchar(191);not null;index" json:"event_key"`
	PayloadJSON string     `gorm:"type:longtext;not null" json:"payload_json"`
	Signature   string     `gorm:"type:varchar(128)" json:"signature"`
	Outcome     string     `gorm:"type:varchar(32)" json:"outcome"`
	ReceivedAt  time.Time  `gorm:"type:datetime(3);not null" json:"received_at"`
	ProcessedAt *time.Time `gorm:"type:datetime(3);default:null" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
