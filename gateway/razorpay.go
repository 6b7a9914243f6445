package gateway

import (
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/scribbletales/storypay/utils"
)

// Payment holds the subset of gateway payment fields the service
// cross-checks during verification.
type Payment struct {
	ID       string
	OrderID  string
	Status   string
	Amount   int64
	Currency string
}

// Client is the payment-gateway surface the reconciliation service depends
// on. Tests substitute a fake; production uses the Razorpay implementation
// constructed once at boot.
type Client interface {
	// CreateOrder creates a gateway-side order and returns its id.
	CreateOrder(amount int64, currency, receipt string, notes map[string]interface{}) (string, error)
	// FetchPayment fetches a payment's current state from the gateway.
	FetchPayment(paymentID string) (Payment, error)
}

// RazorpayClient wraps the Razorpay SDK behind the Client interface
type RazorpayClient struct {
	client *razorpay.Client
}

// NewRazorpayClient builds a gateway client from the API key/secret pair
func NewRazorpayClient(key, secret string) *RazorpayClient {
	return &RazorpayClient{client: razorpay.NewClient(key, secret)}
}

// CreateOrder creates a Razorpay order with auto-capture enabled
func (r *RazorpayClient) CreateOrder(amount int64, currency, receipt string, notes map[string]interface{}) (string, error) {
	orderData := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}
	if len(notes) > 0 {
		orderData["notes"] = notes
	}

	rzOrder, err := r.client.Order.Create(orderData, nil)
	if err != nil {
		return "", utils.WrapError(err, "razorpay order create")
	}

	orderID, ok := rzOrder["id"].(string)
	if !ok || orderID == "" {
		return "", fmt.Errorf("gateway returned order without id")
	}
	return orderID, nil
}

// FetchPayment fetches payment details from Razorpay
func (r *RazorpayClient) FetchPayment(paymentID string) (Payment, error) {
	raw, err := r.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return Payment{}, utils.WrapError(err, "razorpay payment fetch")
	}

	payment := Payment{
		ID:       stringField(raw, "id"),
		OrderID:  stringField(raw, "order_id"),
		Status:   stringField(raw, "status"),
		Currency: stringField(raw, "currency"),
	}
	// The SDK decodes JSON numbers as float64; amounts are integral paise.
	if amount, ok := raw["amount"].(float64); ok {
		payment.Amount = int64(amount)
	}
	return payment, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
