package models

import (
	"time"
)

// WebhookEvent stores gateway webhook deliveries with deduplication
// metadata so repeated deliveries of the same event are cheap no-ops.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ProviderEventID string     `json:"provider_event_id" gorm:"uniqueIndex;size:191"`
	EventType       string     `json:"event_type" gorm:"index"`
	RazorpayOrderID string     `json:"razorpay_order_id" gorm:"index"`
	Payload         string     `json:"payload" gorm:"type:text"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
}
