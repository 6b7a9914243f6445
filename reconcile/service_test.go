package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scribbletales/storypay/gateway"
	"github.com/scribbletales/storypay/models"
	"github.com/scribbletales/storypay/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPaymentSecret = "test_secret"
	testWebhookSecret = "webhook_secret"
)

// memStore is an in-memory OrderStore with the same guarded-transition
// semantics as the Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]*models.Order // keyed by gateway order id
	receipts map[string]string
	attempts []models.PaymentAttempt
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[string]*models.Order),
		receipts: make(map[string]string),
	}
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now()
	cp := *order
	m.orders[order.RazorpayOrderID] = &cp
	m.receipts[order.Receipt] = order.RazorpayOrderID
	return nil
}

func (m *memStore) FindByRazorpayOrderID(_ context.Context, razorpayOrderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[razorpayOrderID]; ok {
		cp := *order
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FindByReceipt(_ context.Context, receipt string) (*models.Order, error) {
	m.mu.Lock()
	razorpayOrderID, ok := m.receipts[receipt]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.FindByRazorpayOrderID(context.Background(), razorpayOrderID)
}

func (m *memStore) MarkPaid(_ context.Context, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[razorpayOrderID]
	if !ok {
		return false, nil
	}
	if order.Status != models.OrderStatusCreated && order.Status != models.OrderStatusPaymentFailed {
		return false, nil
	}
	order.Status = models.OrderStatusPaid
	order.PaymentStatus = models.PaymentStatusCompleted
	order.RazorpayPaymentID = razorpayPaymentID
	order.PaidAt = &paidAt
	return true, nil
}

func (m *memStore) MarkFailed(_ context.Context, razorpayOrderID, razorpayPaymentID, failureCode, failureReason string, failedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[razorpayOrderID]
	if !ok || order.Status != models.OrderStatusCreated {
		return false, nil
	}
	order.Status = models.OrderStatusPaymentFailed
	order.PaymentStatus = models.PaymentStatusFailed
	order.RazorpayPaymentID = razorpayPaymentID
	order.FailureCode = failureCode
	order.FailureReason = failureReason
	order.FailedAt = &failedAt
	return true, nil
}

func (m *memStore) MarkRefunded(_ context.Context, razorpayOrderID, refundID string, refundAmount int64, refundedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[razorpayOrderID]
	if !ok || order.Status != models.OrderStatusPaid {
		return false, nil
	}
	order.Status = models.OrderStatusRefunded
	order.RefundID = refundID
	order.RefundAmount = refundAmount
	order.RefundedAt = &refundedAt
	return true, nil
}

func (m *memStore) RecordPaymentAttempt(_ context.Context, attempt *models.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memStore) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// fakeGateway records order-creation calls and serves canned payments
type fakeGateway struct {
	mu        sync.Mutex
	created   []int64
	orderID   string
	createErr error
	payment   gateway.Payment
	fetchErr  error
}

func (g *fakeGateway) CreateOrder(amount int64, _, _ string, _ map[string]interface{}) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", g.createErr
	}
	g.created = append(g.created, amount)
	return g.orderID, nil
}

func (g *fakeGateway) FetchPayment(_ string) (gateway.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return gateway.Payment{}, g.fetchErr
	}
	return g.payment, nil
}

func (g *fakeGateway) createCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

// fakeEvents is the in-memory webhook event ledger
type fakeEvents struct {
	mu       sync.Mutex
	recorded map[string]*models.WebhookEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{recorded: make(map[string]*models.WebhookEvent)}
}

func (e *fakeEvents) SeenEvent(_ context.Context, providerEventID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, seen := e.recorded[providerEventID]
	return seen, nil
}

func (e *fakeEvents) RecordEvent(_ context.Context, event *models.WebhookEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded[event.ProviderEventID] = event
	return nil
}

// fakeAlerter collects anomaly notifications
type fakeAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *fakeAlerter) Anomaly(subject, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subjects)
}

type testEnv struct {
	service *reconcile.Service
	store   *memStore
	gateway *fakeGateway
	events  *fakeEvents
	alerts  *fakeAlerter
}

func newTestEnv(verifyFetch bool) *testEnv {
	env := &testEnv{
		store:   newMemStore(),
		gateway: &fakeGateway{orderID: "order_ABC"},
		events:  newFakeEvents(),
		alerts:  &fakeAlerter{},
	}
	env.service = reconcile.NewService(env.store, env.events, env.gateway, env.alerts, reconcile.ServiceConfig{
		PaymentSecret:      testPaymentSecret,
		WebhookSecret:      testWebhookSecret,
		VerifyFetchPayment: verifyFetch,
	})
	return env
}

func (env *testEnv) createOrder(t *testing.T, amount int64) *reconcile.CreateOrderResult {
	t.Helper()
	result, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:   amount,
		Currency: "INR",
	})
	require.NoError(t, err)
	return result
}

func TestCreateOrderPersistsOrder(t *testing.T) {
	env := newTestEnv(false)

	result, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:   50000,
		Currency: "inr",
		Metadata: map[string]interface{}{"artwork_id": "art_42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_ABC", result.RazorpayOrderID)
	assert.Equal(t, int64(50000), result.Amount)
	assert.Equal(t, "INR", result.Currency)
	assert.NotEmpty(t, result.Receipt)

	order, err := env.store.FindByRazorpayOrderID(context.Background(), "order_ABC")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusCreated, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, int64(50000), order.Amount)
	assert.Nil(t, order.PaidAt)
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(false)

	for _, amount := range []int64{0, -1, -50000} {
		_, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
			Amount:   amount,
			Currency: "INR",
		})
		assert.ErrorIs(t, err, reconcile.ErrValidation)
	}
	// No gateway order and no local order may exist after rejected input.
	assert.Equal(t, 0, env.gateway.createCalls())
	order, _ := env.store.FindByRazorpayOrderID(context.Background(), "order_ABC")
	assert.Nil(t, order)
}

func TestCreateOrderRejectsEmptyCurrency(t *testing.T) {
	env := newTestEnv(false)

	_, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:   1000,
		Currency: "   ",
	})
	assert.ErrorIs(t, err, reconcile.ErrValidation)
	assert.Equal(t, 0, env.gateway.createCalls())
}

func TestCreateOrderGatewayFailureLeavesNoState(t *testing.T) {
	env := newTestEnv(false)
	env.gateway.createErr = assert.AnError

	_, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:   1000,
		Currency: "INR",
	})
	assert.ErrorIs(t, err, reconcile.ErrGateway)

	order, _ := env.store.FindByRazorpayOrderID(context.Background(), "order_ABC")
	assert.Nil(t, order)
}

func TestCreateOrderIdempotencyKeyReturnsExistingOrder(t *testing.T) {
	env := newTestEnv(false)

	first, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:         2500,
		Currency:       "INR",
		IdempotencyKey: "retry_key_1",
	})
	require.NoError(t, err)

	second, err := env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:         2500,
		Currency:       "INR",
		IdempotencyKey: "retry_key_1",
	})
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.RazorpayOrderID, second.RazorpayOrderID)
	assert.Equal(t, 1, env.gateway.createCalls())

	// Reusing the key with a different amount is a caller bug.
	_, err = env.service.CreateOrder(context.Background(), reconcile.CreateOrderInput{
		Amount:         9999,
		Currency:       "INR",
		IdempotencyKey: "retry_key_1",
	})
	assert.ErrorIs(t, err, reconcile.ErrValidation)
}

func TestVerifyPaymentRequiresAllFields(t *testing.T) {
	env := newTestEnv(false)

	inputs := []reconcile.VerifyInput{
		{RazorpayPaymentID: "pay_123", Signature: "sig"},
		{RazorpayOrderID: "order_ABC", Signature: "sig"},
		{RazorpayOrderID: "order_ABC", RazorpayPaymentID: "pay_123"},
	}
	for _, in := range inputs {
		_, err := env.service.VerifyPayment(context.Background(), in)
		assert.ErrorIs(t, err, reconcile.ErrValidation)
	}
}

func TestVerifyPaymentSignatureMismatchDoesNotMutate(t *testing.T) {
	env := newTestEnv(false)
	env.createOrder(t, 50000)

	result, err := env.service.VerifyPayment(context.Background(), reconcile.VerifyInput{
		RazorpayOrderID:   "order_ABC",
		RazorpayPaymentID: "pay_123",
		Signature:         "definitely-not-a-signature",
	})
	require.NoError(t, err)
	assert.False(t, result.Verified)

	order, _ := env.store.FindByRazorpayOrderID(context.Background(), "order_ABC")
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusCreated, order.Status)
	assert.Empty(t, order.RazorpayPaymentID)
	assert.Nil(t, order.PaidAt)
}

func TestVerifyPaymentMarksOrderPaid(t *testing.T) {
	env := newTestEnv(false)
	env.createOrder(t, 50000)

	result, err := env.service.VerifyPayment(context.Background(), reconcile.VerifyInput{
		RazorpayOrderID:   "order_ABC",
		RazorpayPaymentID: "pay_123",
		Signature:         reconcile.SignPayment(testPaymentSecret, "order_ABC", "pay_123"),
	})
	require.NoError(t, err)
	assert.True(t, result.Verified)
	require.NotNil(t, result.Order)
	assert.Equal(t, models.OrderStatusPaid, result.Order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, result.Order.PaymentStatus)
	assert.Equal(t, "pay_123", result.Order.RazorpayPaymentID)
	assert.NotNil(t, result.Order.PaidAt)

	assert.Equal(t, 1, env.store.attemptCount())
	assert.Equal(t, models.AttemptSourceClient, env.store.attempts[0].Source)
}

func TestVerifyPaymentUnknownOrder(t *testing.T) {
	env := newTestEnv(false)

	_, err := env.service.VerifyPayment(context.Background(), reconcile.VerifyInput{
		RazorpayOrderID:   "order_missing",
		RazorpayPaymentID: "pay_123",
		Signature:         reconcile.SignPayment(testPaymentSecret, "order_missing", "pay_123"),
	})
	assert.ErrorIs(t, err, reconcile.ErrOrderNotFound)
}

func TestVerifyPaymentReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(false)
	env.createOrder(t, 50000)

	in := reconcile.VerifyInput{
		RazorpayOrderID:   "order_ABC",
		RazorpayPaymentID: "pay_123",
		Signature:         reconcile.SignPayment(testPaymentSecret, "order_ABC", "pay_123"),
	}
	first, err := env.service.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	require.True(t, first.Verified)
	firstPaidAt := *first.Order.PaidAt

	second, err := env.service.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Verified)
	assert.Equal(t, firstPaidAt, *second.Order.PaidAt)
	assert.Equal(t, 1, env.store.attemptCount())
}

func TestVerifyPaymentConflictingPaymentID(t *testing.T) {
	env := newTestEnv(false)
	env.createOrder(t, 50000)

	_, err := env.service.VerifyPayment(context.Background(), reconcile.VerifyInput{
		RazorpayOrderID:   "order_ABC",
		RazorpayPaymentID: "pay_123",
		Signature:         reconcile.SignPayment(testPaymentSecret, "order_ABC", "pay_123"),
	})
	require.NoError(t, err)

	_, err = env.service.VerifyPayment(context.Background(), reconcile.VerifyInput{
		RazorpayOrderID:   "order_ABC",
		RazorpayPaymentID: "pay_999",
		Signature:         reconcile.SignPayment(testPaymentSecret, "order_ABC", "pay_999"),
	})
	assert.ErrorIs(t, err, reconcile.ErrConflictingPayment)
	assert.Equal(t, 1, env.alerts.count())

	order, _ := env.store.FindByRazorpayOrderID(context.Background(), "order_ABC")
	assert.Equal(t, "pay_123", order.RazorpayPaymentID)
}

func TestVerifyPaymentGatewayCrossCheck(t *testing.T) {
	env := newTestEnv(true)
	env.createOrder(t, 50000)

	in := reconcile.VerifyInput{
		RazorpayOrderID:   "order_ABC",
		RazorpayPaymentID: "pay_123",
		Signature:         reconcile.SignPayment(testPaymentSecret, "order_ABC", "pay_123"),
	}

	// The gateway considers the payment failed: a valid signature alone
	// must not mark the order paid.
	env.gateway.payment = gateway.Payment{ID: "pay_123", OrderID: "order_ABC", Status: "failed", Amount: 50000, Currency: "INR"}
	result, err := env.service.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, result.Verified)

	order, _ := env.store.FindByRazorpayOrderID(context.Background(), "order_ABC")
	assert.Equal(t, models.OrderStatusCreated, order.Status)

	// Amount mismatch is rejected even for a captured payment.
	env.gateway.payment = gateway.Payment{ID: "pay_123", OrderID: "order_ABC", Status: "captured", Amount: 1, Currency: "INR"}
	result, err = env.service.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, result.Verified)

	// Captured with matching order, amount and currency passes.
	env.gateway.payment = gateway.Payment{ID: "pay_123", OrderID: "order_ABC", Status: "captured", Amount: 50000, Currency: "INR"}
	result, err = env.service.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Verified)
}
