package models

import (
	"time"

	"gorm.io/datatypes"
)

// Order status constants
const (
	OrderStatusCreated       = "created"
	OrderStatusPaid          = "paid"
	OrderStatusPaymentFailed = "payment_failed"
	OrderStatusRefunded      = "refunded"
)

// Payment status constants
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

type Order struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	RazorpayOrderID   string         `json:"razorpay_order_id" gorm:"uniqueIndex"`
	Receipt           string         `json:"receipt" gorm:"uniqueIndex"`
	Amount            int64          `json:"amount"` // paise
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	PaymentStatus     string         `json:"payment_status"` // pending, completed, failed
	RazorpayPaymentID string         `json:"razorpay_payment_id,omitempty"`
	FailureCode       string         `json:"failure_code,omitempty"`
	FailureReason     string         `json:"failure_reason,omitempty"`
	RefundID          string         `json:"refund_id,omitempty"`
	RefundAmount      int64          `json:"refund_amount,omitempty"` // paise
	Notes             datatypes.JSON `json:"notes,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
	FailedAt          *time.Time     `json:"failed_at,omitempty"`
	RefundedAt        *time.Time     `json:"refunded_at,omitempty"`
}
