package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scribbletales/storypay/gateway"
	"github.com/scribbletales/storypay/models"
	"github.com/scribbletales/storypay/utils"
)

// OrderStore is the persistence surface the reconciliation core depends on.
// Transitions are guarded: each Mark* call applies only when the order is in
// a state that permits the transition, and reports whether it was applied.
// That guard is the compare-and-set that keeps concurrent confirmation paths
// from interleaving.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Order, error)
	FindByReceipt(ctx context.Context, receipt string) (*models.Order, error)
	// MarkPaid transitions created or payment_failed to paid.
	MarkPaid(ctx context.Context, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error)
	// MarkFailed transitions created to payment_failed.
	MarkFailed(ctx context.Context, razorpayOrderID, razorpayPaymentID, failureCode, failureReason string, failedAt time.Time) (bool, error)
	// MarkRefunded transitions paid to refunded.
	MarkRefunded(ctx context.Context, razorpayOrderID, refundID string, refundAmount int64, refundedAt time.Time) (bool, error)
	RecordPaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
}

// EventStore is the processed-webhook ledger used to drop exact duplicate
// deliveries before the state machine runs.
type EventStore interface {
	SeenEvent(ctx context.Context, providerEventID string) (bool, error)
	RecordEvent(ctx context.Context, event *models.WebhookEvent) error
}

// Alerter surfaces data-integrity anomalies to operators. Implementations
// must be best-effort and non-blocking; reconciliation never fails because
// an alert could not be delivered.
type Alerter interface {
	Anomaly(subject, detail string)
}

// ServiceConfig carries the secrets and toggles for the core.
type ServiceConfig struct {
	// PaymentSecret signs the checkout callback (orderID|paymentID).
	PaymentSecret string
	// WebhookSecret signs raw webhook bodies. Distinct from PaymentSecret.
	WebhookSecret string
	// VerifyFetchPayment enables cross-checking client-reported payments
	// against the gateway's payment-fetch API before trusting them.
	VerifyFetchPayment bool
}

// Service is the single authoritative implementation of order creation,
// payment verification and webhook processing. All transport surfaces
// (HTTP handlers, serverless functions) are thin adapters over it.
type Service struct {
	store   OrderStore
	events  EventStore
	gateway gateway.Client
	alerts  Alerter
	config  ServiceConfig
}

// NewService constructs the reconciliation core
func NewService(store OrderStore, events EventStore, gw gateway.Client, alerts Alerter, config ServiceConfig) *Service {
	return &Service{
		store:   store,
		events:  events,
		gateway: gw,
		alerts:  alerts,
		config:  config,
	}
}

// CreateOrderInput is the request to mint a new order
type CreateOrderInput struct {
	Amount         int64 // minor currency units (paise)
	Currency       string
	Metadata       map[string]interface{}
	IdempotencyKey string // optional; reused as the gateway receipt
}

// CreateOrderResult is returned on successful order creation
type CreateOrderResult struct {
	OrderID         uint
	RazorpayOrderID string
	Amount          int64
	Currency        string
	Receipt         string
}

// CreateOrder validates the input, creates a gateway-side order and persists
// the local Order. The local record is written only after the gateway
// confirms, so a gateway failure leaves no partial state behind.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be a positive integer in minor units", ErrValidation)
	}
	if strings.TrimSpace(in.Currency) == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))

	receipt := in.IdempotencyKey
	if receipt == "" {
		receipt = fmt.Sprintf("receipt_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
	} else {
		// Caller-supplied key: a retried request returns the order the
		// first attempt created instead of minting a duplicate.
		existing, err := s.store.FindByReceipt(ctx, receipt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if existing != nil {
			if existing.Amount != in.Amount || existing.Currency != currency {
				return nil, fmt.Errorf("%w: idempotency key reused with different amount or currency", ErrValidation)
			}
			utils.LogInfo("CreateOrder: returning existing order %d for receipt %s", existing.ID, receipt)
			return &CreateOrderResult{
				OrderID:         existing.ID,
				RazorpayOrderID: existing.RazorpayOrderID,
				Amount:          existing.Amount,
				Currency:        existing.Currency,
				Receipt:         existing.Receipt,
			}, nil
		}
	}

	razorpayOrderID, err := s.gateway.CreateOrder(in.Amount, currency, receipt, in.Metadata)
	if err != nil {
		utils.LogError("CreateOrder: gateway order creation failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	utils.LogInfo("CreateOrder: created gateway order %s for receipt %s", razorpayOrderID, receipt)

	order := &models.Order{
		RazorpayOrderID: razorpayOrderID,
		Receipt:         receipt,
		Amount:          in.Amount,
		Currency:        currency,
		Status:          models.OrderStatusCreated,
		PaymentStatus:   models.PaymentStatusPending,
	}
	if len(in.Metadata) > 0 {
		notes, merr := json.Marshal(in.Metadata)
		if merr != nil {
			return nil, fmt.Errorf("%w: metadata is not serializable", ErrValidation)
		}
		order.Notes = notes
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		utils.LogError("CreateOrder: failed to persist order for gateway order %s: %v", razorpayOrderID, err)
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &CreateOrderResult{
		OrderID:         order.ID,
		RazorpayOrderID: razorpayOrderID,
		Amount:          in.Amount,
		Currency:        currency,
		Receipt:         receipt,
	}, nil
}

// VerifyInput is the client-reported payment confirmation
type VerifyInput struct {
	RazorpayOrderID   string
	RazorpayPaymentID string
	Signature         string
}

// VerifyResult reports the outcome of a verification attempt. Verified is
// false for a signature mismatch; that is an unverified claim, not an error.
type VerifyResult struct {
	Verified bool
	Order    *models.Order
}

// VerifyPayment checks the checkout callback signature and, if valid, marks
// the order paid. Racing against the webhook path is safe: whichever arrives
// first applies the transition, the other becomes a verified no-op.
func (s *Service) VerifyPayment(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if in.RazorpayOrderID == "" || in.RazorpayPaymentID == "" || in.Signature == "" {
		return nil, fmt.Errorf("%w: razorpay_order_id, razorpay_payment_id and razorpay_signature are required", ErrValidation)
	}

	if !VerifyPaymentSignature(s.config.PaymentSecret, in.RazorpayOrderID, in.RazorpayPaymentID, in.Signature) {
		utils.LogError("VerifyPayment: signature mismatch for gateway order %s", in.RazorpayOrderID)
		return &VerifyResult{Verified: false}, nil
	}
	utils.LogInfo("VerifyPayment: signature verified for gateway order %s", in.RazorpayOrderID)

	order, err := s.store.FindByRazorpayOrderID(ctx, in.RazorpayOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: no order for gateway order %s", ErrOrderNotFound, in.RazorpayOrderID)
	}

	if s.config.VerifyFetchPayment {
		payment, ferr := s.gateway.FetchPayment(in.RazorpayPaymentID)
		if ferr != nil {
			utils.LogError("VerifyPayment: payment fetch failed for %s: %v", in.RazorpayPaymentID, ferr)
			return nil, fmt.Errorf("%w: %v", ErrGateway, ferr)
		}
		if !paymentMatchesOrder(payment, order) {
			utils.LogError("VerifyPayment: gateway cross-check rejected payment %s for order %s (status=%s amount=%d)",
				in.RazorpayPaymentID, in.RazorpayOrderID, payment.Status, payment.Amount)
			return &VerifyResult{Verified: false, Order: order}, nil
		}
		utils.LogDebug("VerifyPayment: gateway cross-check passed for payment %s", in.RazorpayPaymentID)
	}

	applied, err := s.store.MarkPaid(ctx, in.RazorpayOrderID, in.RazorpayPaymentID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if applied {
		if aerr := s.store.RecordPaymentAttempt(ctx, &models.PaymentAttempt{
			OrderID:           order.ID,
			RazorpayOrderID:   in.RazorpayOrderID,
			RazorpayPaymentID: in.RazorpayPaymentID,
			Source:            models.AttemptSourceClient,
			Status:            models.PaymentStatusCompleted,
		}); aerr != nil {
			utils.LogError("VerifyPayment: failed to record payment attempt for order %d: %v", order.ID, aerr)
		}
		utils.LogInfo("VerifyPayment: order %d marked paid via client verification", order.ID)
	} else {
		// Lost the race or replayed. Acceptable only when the stored
		// payment id agrees with the one being verified.
		order, err = s.store.FindByRazorpayOrderID(ctx, in.RazorpayOrderID)
		if err != nil || order == nil {
			return nil, fmt.Errorf("%w: reload after transition failed: %v", ErrStore, err)
		}
		switch order.Status {
		case models.OrderStatusPaid:
			if order.RazorpayPaymentID != in.RazorpayPaymentID {
				s.alert("Conflicting payment id on client verification",
					fmt.Sprintf("gateway order %s is paid with %s but client verified %s",
						in.RazorpayOrderID, order.RazorpayPaymentID, in.RazorpayPaymentID))
				return nil, fmt.Errorf("%w: order %s paid with %s, got %s",
					ErrConflictingPayment, in.RazorpayOrderID, order.RazorpayPaymentID, in.RazorpayPaymentID)
			}
			utils.LogInfo("VerifyPayment: order %d already paid, idempotent no-op", order.ID)
		default:
			return nil, fmt.Errorf("%w: cannot mark order in status %q paid", ErrInvalidTransition, order.Status)
		}
	}

	order, err = s.store.FindByRazorpayOrderID(ctx, in.RazorpayOrderID)
	if err != nil || order == nil {
		return nil, fmt.Errorf("%w: reload after transition failed: %v", ErrStore, err)
	}
	return &VerifyResult{Verified: true, Order: order}, nil
}

func paymentMatchesOrder(payment gateway.Payment, order *models.Order) bool {
	if payment.Status != "captured" && payment.Status != "authorized" {
		return false
	}
	if payment.OrderID != "" && payment.OrderID != order.RazorpayOrderID {
		return false
	}
	if payment.Amount != 0 && payment.Amount != order.Amount {
		return false
	}
	if payment.Currency != "" && payment.Currency != order.Currency {
		return false
	}
	return true
}

func (s *Service) alert(subject, detail string) {
	utils.LogError("Anomaly: %s - %s", subject, detail)
	if s.alerts != nil {
		s.alerts.Anomaly(subject, detail)
	}
}
