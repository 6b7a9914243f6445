package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scribbletales/storypay/models"
	"github.com/scribbletales/storypay/utils"
)

// Webhook event types the state machine handles. Delivery is at-least-once
// and unordered; every branch below must tolerate replays and stale events.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentSucceeded  = "payment.succeeded"
	EventPaymentFailed     = "payment.failed"
	EventRefundCreated     = "refund.created"
)

// WebhookResult reports what a webhook delivery did. Anomalies are carried
// in the result rather than returned as errors because the gateway must
// still receive a 200 to stop redelivering.
type WebhookResult struct {
	EventType string
	Handled   bool
	Duplicate bool
	Anomaly   string
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// HandleWebhookEvent verifies the signature over the raw body, drops exact
// duplicate deliveries via the event ledger and applies the order state
// machine. Signature failure rejects the request before any order is
// touched.
func (s *Service) HandleWebhookEvent(ctx context.Context, body []byte, signature, providerEventID string) (*WebhookResult, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}
	if !VerifyWebhookSignature(s.config.WebhookSecret, body, signature) {
		utils.LogError("HandleWebhookEvent: webhook signature mismatch (event id %q)", providerEventID)
		return nil, ErrSignatureInvalid
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body: %v", ErrValidation, err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("%w: webhook body missing event type", ErrValidation)
	}
	utils.LogInfo("HandleWebhookEvent: received %s (event id %q)", envelope.Event, providerEventID)

	if providerEventID != "" {
		seen, err := s.events.SeenEvent(ctx, providerEventID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if seen {
			utils.LogInfo("HandleWebhookEvent: duplicate delivery of event %s, skipping", providerEventID)
			return &WebhookResult{EventType: envelope.Event, Handled: true, Duplicate: true}, nil
		}
	}

	result := &WebhookResult{EventType: envelope.Event}
	var err error
	switch envelope.Event {
	case EventPaymentCaptured, EventPaymentAuthorized, EventPaymentSucceeded:
		err = s.applyPaymentSucceeded(ctx, envelope.Payload.Payment.Entity, result)
	case EventPaymentFailed:
		err = s.applyPaymentFailed(ctx, envelope.Payload.Payment.Entity, result)
	case EventRefundCreated:
		err = s.applyRefundCreated(ctx, envelope.Payload.Refund.Entity, envelope.Payload.Payment.Entity, result)
	default:
		// Unrecognized events are acknowledged so the gateway does not
		// retry them, but they are logged and kept in the ledger.
		utils.LogInfo("HandleWebhookEvent: unhandled event type %s, acknowledging", envelope.Event)
	}
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, providerEventID, envelope, body, result)
	return result, nil
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, payment paymentEntity, result *WebhookResult) error {
	if payment.OrderID == "" || payment.ID == "" {
		return fmt.Errorf("%w: payment event missing order_id or payment id", ErrValidation)
	}

	applied, err := s.store.MarkPaid(ctx, payment.OrderID, payment.ID, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if applied {
		order, lerr := s.store.FindByRazorpayOrderID(ctx, payment.OrderID)
		if lerr == nil && order != nil {
			if aerr := s.store.RecordPaymentAttempt(ctx, &models.PaymentAttempt{
				OrderID:           order.ID,
				RazorpayOrderID:   payment.OrderID,
				RazorpayPaymentID: payment.ID,
				Source:            models.AttemptSourceWebhook,
				Status:            models.PaymentStatusCompleted,
			}); aerr != nil {
				utils.LogError("applyPaymentSucceeded: failed to record attempt for order %d: %v", order.ID, aerr)
			}
		}
		utils.LogInfo("applyPaymentSucceeded: gateway order %s marked paid via webhook", payment.OrderID)
		result.Handled = true
		return nil
	}

	order, err := s.store.FindByRazorpayOrderID(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if order == nil {
		// A success event for an order this store never created. Reported
		// but acknowledged; retrying the delivery cannot fix it.
		result.Anomaly = fmt.Sprintf("payment success for unknown gateway order %s", payment.OrderID)
		s.alert("Webhook payment for unknown order", result.Anomaly)
		return nil
	}

	switch order.Status {
	case models.OrderStatusPaid, models.OrderStatusRefunded:
		if order.RazorpayPaymentID == payment.ID {
			// Duplicate delivery after the client path (or an earlier
			// webhook) already applied the transition.
			utils.LogInfo("applyPaymentSucceeded: order %d already paid with %s, idempotent no-op", order.ID, payment.ID)
			result.Handled = true
			result.Duplicate = true
			return nil
		}
		result.Anomaly = fmt.Sprintf("gateway order %s paid with %s but webhook reported %s",
			payment.OrderID, order.RazorpayPaymentID, payment.ID)
		s.alert("Conflicting payment id on webhook", result.Anomaly)
		return nil
	default:
		result.Anomaly = fmt.Sprintf("payment success for gateway order %s in status %q was not applied", payment.OrderID, order.Status)
		s.alert("Unapplied payment success", result.Anomaly)
		return nil
	}
}

func (s *Service) applyPaymentFailed(ctx context.Context, payment paymentEntity, result *WebhookResult) error {
	if payment.OrderID == "" || payment.ID == "" {
		return fmt.Errorf("%w: payment event missing order_id or payment id", ErrValidation)
	}

	applied, err := s.store.MarkFailed(ctx, payment.OrderID, payment.ID, payment.ErrorCode, payment.ErrorDescription, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if applied {
		order, lerr := s.store.FindByRazorpayOrderID(ctx, payment.OrderID)
		if lerr == nil && order != nil {
			if aerr := s.store.RecordPaymentAttempt(ctx, &models.PaymentAttempt{
				OrderID:           order.ID,
				RazorpayOrderID:   payment.OrderID,
				RazorpayPaymentID: payment.ID,
				Source:            models.AttemptSourceWebhook,
				Status:            models.PaymentStatusFailed,
				FailureCode:       payment.ErrorCode,
				FailureReason:     payment.ErrorDescription,
			}); aerr != nil {
				utils.LogError("applyPaymentFailed: failed to record attempt for order %d: %v", order.ID, aerr)
			}
		}
		utils.LogInfo("applyPaymentFailed: gateway order %s marked failed (%s)", payment.OrderID, payment.ErrorCode)
		result.Handled = true
		return nil
	}

	order, err := s.store.FindByRazorpayOrderID(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if order == nil {
		result.Anomaly = fmt.Sprintf("payment failure for unknown gateway order %s", payment.OrderID)
		s.alert("Webhook payment failure for unknown order", result.Anomaly)
		return nil
	}

	switch order.Status {
	case models.OrderStatusPaid, models.OrderStatusRefunded:
		// A failure arriving after a success is stale or out of order and
		// must never downgrade a paid order.
		utils.LogInfo("applyPaymentFailed: order %d already %s, ignoring stale failure", order.ID, order.Status)
		result.Handled = true
		result.Duplicate = true
		return nil
	case models.OrderStatusPaymentFailed:
		// Replayed failure. A different payment id means a distinct failed
		// attempt worth keeping in the audit trail.
		if order.RazorpayPaymentID != payment.ID {
			if aerr := s.store.RecordPaymentAttempt(ctx, &models.PaymentAttempt{
				OrderID:           order.ID,
				RazorpayOrderID:   payment.OrderID,
				RazorpayPaymentID: payment.ID,
				Source:            models.AttemptSourceWebhook,
				Status:            models.PaymentStatusFailed,
				FailureCode:       payment.ErrorCode,
				FailureReason:     payment.ErrorDescription,
			}); aerr != nil {
				utils.LogError("applyPaymentFailed: failed to record extra attempt for order %d: %v", order.ID, aerr)
			}
		}
		result.Handled = true
		result.Duplicate = true
		return nil
	default:
		result.Anomaly = fmt.Sprintf("payment failure for gateway order %s in status %q was not applied", payment.OrderID, order.Status)
		s.alert("Unapplied payment failure", result.Anomaly)
		return nil
	}
}

func (s *Service) applyRefundCreated(ctx context.Context, refund refundEntity, payment paymentEntity, result *WebhookResult) error {
	if refund.ID == "" || payment.OrderID == "" {
		return fmt.Errorf("%w: refund event missing refund id or order_id", ErrValidation)
	}

	applied, err := s.store.MarkRefunded(ctx, payment.OrderID, refund.ID, refund.Amount, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if applied {
		utils.LogInfo("applyRefundCreated: gateway order %s refunded (%s, %d paise)", payment.OrderID, refund.ID, refund.Amount)
		result.Handled = true
		return nil
	}

	order, err := s.store.FindByRazorpayOrderID(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if order == nil {
		result.Anomaly = fmt.Sprintf("refund for unknown gateway order %s", payment.OrderID)
		s.alert("Refund for unknown order", result.Anomaly)
		return nil
	}

	if order.Status == models.OrderStatusRefunded && order.RefundID == refund.ID {
		utils.LogInfo("applyRefundCreated: order %d already refunded with %s, idempotent no-op", order.ID, refund.ID)
		result.Handled = true
		result.Duplicate = true
		return nil
	}

	// Refund is only reachable from paid. Anything else is an external
	// error or an attack and goes to operator review, while the gateway
	// still gets its acknowledgement.
	result.Anomaly = fmt.Sprintf("refund %s for gateway order %s in status %q rejected: %v",
		refund.ID, payment.OrderID, order.Status, ErrInvalidTransition)
	s.alert("Refund on non-paid order", result.Anomaly)
	return nil
}

func (s *Service) recordEvent(ctx context.Context, providerEventID string, envelope webhookEnvelope, body []byte, result *WebhookResult) {
	orderID := envelope.Payload.Payment.Entity.OrderID
	now := time.Now()
	event := &models.WebhookEvent{
		ProviderEventID: providerEventID,
		EventType:       envelope.Event,
		RazorpayOrderID: orderID,
		Payload:         string(body),
		ProcessedAt:     &now,
		ProcessingError: result.Anomaly,
	}
	if providerEventID == "" {
		// No gateway event id to dedupe on; ledger entries still keep the
		// payload for operator review, keyed by a synthetic id.
		event.ProviderEventID = fmt.Sprintf("local_%d_%s", now.UnixNano(), orderID)
	}
	if err := s.events.RecordEvent(ctx, event); err != nil {
		utils.LogError("recordEvent: failed to persist webhook event %s: %v", event.ProviderEventID, err)
	}
}
