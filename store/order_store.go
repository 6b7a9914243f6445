package store

import (
	"context"
	"errors"
	"time"

	"github.com/scribbletales/storypay/models"
	"gorm.io/gorm"
)

// OrderStore is the Postgres-backed order store. Every state transition is a
// single guarded UPDATE with a status predicate, so two confirmation paths
// racing for the same order cannot both apply it; the loser sees zero rows
// affected.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore builds an OrderStore on the given gorm handle
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// CreateOrder inserts a new order. The unique indexes on razorpay_order_id
// and receipt enforce one local order per gateway order.
func (s *OrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// FindByRazorpayOrderID looks an order up by its gateway order id. A missing
// order returns (nil, nil); callers decide whether that is an error.
func (s *OrderStore) FindByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("razorpay_order_id = ?", razorpayOrderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByReceipt looks an order up by its creation receipt
func (s *OrderStore) FindByReceipt(ctx context.Context, receipt string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("receipt = ?", receipt).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid applies created (or payment_failed, for a retried attempt) to
// paid. Returns whether the transition was applied.
func (s *OrderStore) MarkPaid(ctx context.Context, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("razorpay_order_id = ? AND status IN ?", razorpayOrderID,
			[]string{models.OrderStatusCreated, models.OrderStatusPaymentFailed}).
		Updates(map[string]interface{}{
			"status":              models.OrderStatusPaid,
			"payment_status":      models.PaymentStatusCompleted,
			"razorpay_payment_id": razorpayPaymentID,
			"paid_at":             paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed applies created to payment_failed. Failure details are
// historical and never cleared by later transitions.
func (s *OrderStore) MarkFailed(ctx context.Context, razorpayOrderID, razorpayPaymentID, failureCode, failureReason string, failedAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("razorpay_order_id = ? AND status = ?", razorpayOrderID, models.OrderStatusCreated).
		Updates(map[string]interface{}{
			"status":              models.OrderStatusPaymentFailed,
			"payment_status":      models.PaymentStatusFailed,
			"razorpay_payment_id": razorpayPaymentID,
			"failure_code":        failureCode,
			"failure_reason":      failureReason,
			"failed_at":           failedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkRefunded applies paid to refunded
func (s *OrderStore) MarkRefunded(ctx context.Context, razorpayOrderID, refundID string, refundAmount int64, refundedAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("razorpay_order_id = ? AND status = ?", razorpayOrderID, models.OrderStatusPaid).
		Updates(map[string]interface{}{
			"status":        models.OrderStatusRefunded,
			"refund_id":     refundID,
			"refund_amount": refundAmount,
			"refunded_at":   refundedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordPaymentAttempt appends to the payment attempt audit trail
func (s *OrderStore) RecordPaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return s.db.WithContext(ctx).Create(attempt).Error
}
