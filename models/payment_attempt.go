package models

import (
	"time"
)

// Payment attempt source constants
const (
	AttemptSourceClient  = "client_verify"
	AttemptSourceWebhook = "webhook"
)

// PaymentAttempt is the audit trail of payment attempts against an order.
// A failed attempt is never overwritten; a retry records a new row.
type PaymentAttempt struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	OrderID           uint      `json:"order_id" gorm:"index"`
	RazorpayOrderID   string    `json:"razorpay_order_id" gorm:"index"`
	RazorpayPaymentID string    `json:"razorpay_payment_id"`
	Source            string    `json:"source"` // client_verify, webhook
	Status            string    `json:"status"` // completed, failed
	FailureCode       string    `json:"failure_code,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
