package reconcile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment computes the checkout callback signature for an order/payment
// pair: hex(HMAC-SHA256(secret, orderID + "|" + paymentID)). This is the
// same construction Razorpay uses on its side; it is exported so tests and
// payment simulators can mint valid signatures.
func SignPayment(secret, razorpayOrderID, razorpayPaymentID string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(razorpayOrderID + "|" + razorpayPaymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPaymentSignature checks a client-supplied checkout signature.
// The comparison is constant time.
func VerifyPaymentSignature(secret, razorpayOrderID, razorpayPaymentID, signature string) bool {
	expected := SignPayment(secret, razorpayOrderID, razorpayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignWebhookBody computes the webhook signature over the exact raw request
// bytes. Re-serialized bodies must never be signed or verified; any
// canonicalization difference would break the check.
func SignWebhookBody(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSignature checks a webhook signature against the raw body.
// The comparison is constant time.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := SignWebhookBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
