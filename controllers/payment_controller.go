package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scribbletales/storypay/reconcile"
	"github.com/scribbletales/storypay/utils"
)

// Razorpay webhook headers
const (
	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"
	HeaderIdempotencyKey   = "X-Idempotency-Key"
)

// PaymentController adapts HTTP requests onto the reconciliation core. It
// holds no state of its own; every deployment surface (this router, the
// serverless wrappers) calls the same service.
type PaymentController struct {
	service *reconcile.Service
	debug   bool
}

// NewPaymentController builds the payment controller. debug controls
// whether upstream error detail is echoed in responses; keep it off in
// production.
func NewPaymentController(service *reconcile.Service, debug bool) *PaymentController {
	return &PaymentController{service: service, debug: debug}
}

// CreateOrder handles POST /payments/orders
func (pc *PaymentController) CreateOrder(c *gin.Context) {
	utils.LogInfo("CreateOrder called")

	var req struct {
		Amount         int64                  `json:"amount" binding:"required"`
		Currency       string                 `json:"currency" binding:"required"`
		Metadata       map[string]interface{} `json:"metadata"`
		IdempotencyKey string                 `json:"idempotency_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError("CreateOrder: invalid request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "amount must be a positive integer in minor units and currency is required",
		})
		return
	}
	if key := c.GetHeader(HeaderIdempotencyKey); key != "" {
		req.IdempotencyKey = key
	}

	result, err := pc.service.CreateOrder(c.Request.Context(), reconcile.CreateOrderInput{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		pc.respondError(c, err, "Failed to create payment order")
		return
	}

	utils.LogInfo("CreateOrder: order %d created, gateway order %s", result.OrderID, result.RazorpayOrderID)
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"order_id":          result.OrderID,
		"razorpay_order_id": result.RazorpayOrderID,
		"amount":            result.Amount,
		"currency":          result.Currency,
		"receipt":           result.Receipt,
	})
}

// VerifyPayment handles POST /payments/verify
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	utils.LogInfo("VerifyPayment called")

	var req struct {
		RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
		RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
		RazorpaySignature string `json:"razorpay_signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError("VerifyPayment: invalid request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "razorpay_order_id, razorpay_payment_id and razorpay_signature are required",
		})
		return
	}

	result, err := pc.service.VerifyPayment(c.Request.Context(), reconcile.VerifyInput{
		RazorpayOrderID:   req.RazorpayOrderID,
		RazorpayPaymentID: req.RazorpayPaymentID,
		Signature:         req.RazorpaySignature,
	})
	if err != nil {
		pc.respondError(c, err, "Payment verification failed")
		return
	}

	if !result.Verified {
		// An unverified claim, not a server fault. The client may retry
		// with a correct signature.
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Payment verification failed",
			"retry":   true,
		})
		return
	}

	utils.LogInfo("VerifyPayment: gateway order %s verified", req.RazorpayOrderID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Thank you for your payment! Your storybook order is confirmed.",
		"order": gin.H{
			"id":                  result.Order.ID,
			"status":              result.Order.Status,
			"payment_status":      result.Order.PaymentStatus,
			"razorpay_payment_id": result.Order.RazorpayPaymentID,
		},
	})
}

// Webhook handles POST /payments/webhook. The raw body bytes feed the
// signature check; the parsed form is only used afterwards.
func (pc *PaymentController) Webhook(c *gin.Context) {
	utils.LogInfo("Webhook called")

	body, err := c.GetRawData()
	if err != nil {
		utils.LogError("Webhook: failed to read request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"received": false, "message": "unreadable body"})
		return
	}

	signature := c.GetHeader(HeaderWebhookSignature)
	eventID := c.GetHeader(HeaderWebhookEventID)

	result, err := pc.service.HandleWebhookEvent(c.Request.Context(), body, signature, eventID)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrSignatureInvalid):
			utils.LogError("Webhook: rejected delivery with invalid signature")
			c.JSON(http.StatusBadRequest, gin.H{"received": false, "message": "invalid signature"})
		case errors.Is(err, reconcile.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"received": false, "message": "malformed event"})
		default:
			// Store failures are retryable; the guarded transitions make a
			// redelivery safe.
			c.JSON(http.StatusInternalServerError, gin.H{"received": false})
		}
		return
	}

	if result.Anomaly != "" {
		utils.LogError("Webhook: %s event flagged for review: %s", result.EventType, result.Anomaly)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (pc *PaymentController) respondError(c *gin.Context, err error, message string) {
	var detail interface{}
	if pc.debug {
		detail = err.Error()
	}
	switch {
	case errors.Is(err, reconcile.ErrValidation):
		utils.BadRequest(c, message, detail)
	case errors.Is(err, reconcile.ErrOrderNotFound):
		utils.NotFound(c, "Order not found")
	case errors.Is(err, reconcile.ErrConflictingPayment):
		utils.Conflict(c, "Payment confirmation conflicts with recorded payment", detail)
	case errors.Is(err, reconcile.ErrInvalidTransition):
		utils.BadRequest(c, "Order is not in a state that permits this operation", detail)
	default:
		utils.LogError("respondError: %v", err)
		utils.InternalServerError(c, message, detail)
	}
}
