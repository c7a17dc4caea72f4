package payments

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerc/ai-payments/internal/modules/basket"
	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

func newServiceTest(t *testing.T, f *fixture, gw *fakeGateway) *Service {
	t.Helper()
	stripe := newStripeTest(t, f, gw, StripeConfig{})
	payone := newPayoneTest(t, f, gw, PayoneConfig{})
	return NewService(f.repo, f.sessions, f.journal, testLogger(), stripe, payone)
}

func paidNotification(orderID, txID string) Notification {
	return Notification{
		Params: Params{
			"reference": orderID,
			"txaction":  "paid",
			"txid":      txID,
			"txtime":    "1700000000",
		},
		Body: []byte("reference=" + orderID + "&txaction=paid&txid=" + txID),
	}
}

func TestService_AdapterRegistry(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})

	a, err := svc.Adapter("stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", a.Name())

	_, err = svc.Adapter("paypal")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestService_CheckConfig(t *testing.T) {
	f := newFixture(t)

	ok := newServiceTest(t, f, &fakeGateway{})
	assert.NoError(t, ok.CheckConfig())

	broken := NewService(f.repo, f.sessions, f.journal, testLogger(),
		NewStripe(StripeConfig{}, &fakeGateway{}, f.repo, f.sessions, f.customers, testLogger()))
	assert.ErrorIs(t, broken.CheckConfig(), ErrMissingConfig)
}

func TestService_PayReturnsForm(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{}
	svc := newServiceTest(t, f, gw)

	res, err := svc.Pay(context.Background(), PayInput{
		OrderID: uuid.NewString(),
		Gateway: "stripe",
		Basket:  testBasket(),
		Params:  Params{},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Form)
	assert.Nil(t, res.Confirmation)
	assert.Empty(t, gw.reqs)
}

func TestService_PayWithTokenConfirms(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1"}}
	svc := newServiceTest(t, f, gw)
	ctx := context.Background()
	orderID := uuid.NewString()

	res, err := svc.Pay(ctx, PayInput{
		OrderID: orderID,
		Gateway: "stripe",
		Basket:  testBasket(),
		Params:  Params{ParamPaymentToken: "tok_visa"},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Form)
	require.NotNil(t, res.Confirmation)
	assert.True(t, res.Confirmation.Success)

	o, err := f.repo.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateReceived, o.PaymentState)
	assert.Equal(t, "53.90", o.TotalAmount)
}

func TestService_PayRejectsBadBasketBeforeGateway(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{}
	svc := newServiceTest(t, f, gw)

	b := testBasket()
	b.Items[0].Price = "not-a-number"

	_, err := svc.Pay(context.Background(), PayInput{
		OrderID: uuid.NewString(),
		Gateway: "stripe",
		Basket:  b,
		Params:  Params{ParamPaymentToken: "tok_visa"},
	})

	var ibe *basket.InvalidBasketError
	require.ErrorAs(t, err, &ibe)
	assert.Empty(t, gw.reqs)
}

func TestService_ReconcileAppliesNotification(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})
	ctx := context.Background()
	orderID := uuid.NewString()
	ensureOrder(t, f, orderID, nil)
	_, err := f.sessions.Open(ctx, orderID, "payone")
	require.NoError(t, err)

	got, err := svc.Reconcile(ctx, "payone", paidNotification(orderID, "po_tx_1"))
	require.NoError(t, err)
	assert.Equal(t, orderID, got)

	o, err := f.repo.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateReceived, o.PaymentState)

	tx, err := f.repo.GetAttribute(ctx, orderID, AttrTransactionID)
	require.NoError(t, err)
	assert.Equal(t, "po_tx_1", tx)

	// terminal state tears the checkout session down
	_, err = f.sessions.Get(ctx, orderID, "payone")
	assert.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestService_ReconcileJournalsParamsAsJSON(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})
	ctx := context.Background()
	orderID := uuid.NewString()
	ensureOrder(t, f, orderID, nil)

	// the wire body is form-encoded, the journal column is json
	_, err := svc.Reconcile(ctx, "payone", paidNotification(orderID, "po_tx_1"))
	require.NoError(t, err)

	var pe ProviderEvent
	require.NoError(t, f.repo.DB().First(&pe, "gateway = ?", "payone").Error)
	require.True(t, json.Valid(pe.PayloadJSON))

	var params map[string]string
	require.NoError(t, json.Unmarshal(pe.PayloadJSON, &params))
	assert.Equal(t, orderID, params["reference"])
	assert.Equal(t, "paid", params["txaction"])
	assert.Equal(t, "po_tx_1", params["txid"])
}

func TestService_ReconcileDeduplicatesRedelivery(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})
	ctx := context.Background()
	orderID := uuid.NewString()
	ensureOrder(t, f, orderID, nil)

	n := paidNotification(orderID, "po_tx_1")
	first, err := svc.Reconcile(ctx, "payone", n)
	require.NoError(t, err)
	second, err := svc.Reconcile(ctx, "payone", n)
	require.NoError(t, err)

	assert.Equal(t, orderID, first)
	assert.Equal(t, orderID, second)

	o, err := f.repo.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateReceived, o.PaymentState)

	var count int64
	require.NoError(t, f.repo.DB().Model(&ProviderEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestService_ReconcileDropsStaleRegression(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})
	ctx := context.Background()
	orderID := uuid.NewString()
	ensureOrder(t, f, orderID, nil)

	got, err := svc.Reconcile(ctx, "payone", paidNotification(orderID, "po_tx_1"))
	require.NoError(t, err)
	assert.Equal(t, orderID, got)

	// a delayed "appointed" arrives after the payment settled
	late := Notification{Params: Params{
		"reference": orderID,
		"txaction":  "appointed",
		"txid":      "po_tx_1",
	}}
	got, err = svc.Reconcile(ctx, "payone", late)
	require.NoError(t, err)
	assert.Equal(t, orderID, got)

	o, err := f.repo.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateReceived, o.PaymentState)
}

func TestService_ReconcileDropsForeignTransactionAfterSettle(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})
	ctx := context.Background()
	orderID := uuid.NewString()
	ensureOrder(t, f, orderID, nil)

	_, err := svc.Reconcile(ctx, "payone", paidNotification(orderID, "po_tx_1"))
	require.NoError(t, err)

	// leftover notice from an abandoned earlier attempt
	got, err := svc.Reconcile(ctx, "payone", paidNotification(orderID, "po_tx_9"))
	require.NoError(t, err)
	assert.Equal(t, orderID, got)

	tx, err := f.repo.GetAttribute(ctx, orderID, AttrTransactionID)
	require.NoError(t, err)
	assert.Equal(t, "po_tx_1", tx)
}

func TestService_ReconcileIgnoresMissingReference(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})

	got, err := svc.Reconcile(context.Background(), "payone", Notification{
		Params: Params{"txaction": "paid", "txid": "po_tx_1"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_ReconcileIgnoresUnknownAction(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})

	got, err := svc.Reconcile(context.Background(), "payone", Notification{
		Params: Params{"reference": uuid.NewString(), "txaction": "refund"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_ReconcileIgnoresUnknownOrder(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})

	got, err := svc.Reconcile(context.Background(), "payone", paidNotification(uuid.NewString(), "po_tx_1"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_ReconcileUnknownGateway(t *testing.T) {
	f := newFixture(t)
	svc := newServiceTest(t, f, &fakeGateway{})

	_, err := svc.Reconcile(context.Background(), "paypal", paidNotification(uuid.NewString(), "tx"))
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestService_ConfirmPayment(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1"}}
	svc := newServiceTest(t, f, gw)
	ctx := context.Background()
	orderID := uuid.NewString()

	conf, err := svc.ConfirmPayment(ctx, PayInput{
		OrderID: orderID,
		Gateway: "stripe",
		Basket:  testBasket(),
		Params:  Params{ParamPaymentToken: "tok_visa"},
	})
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.True(t, conf.Success)
	assert.Equal(t, orders.StateReceived, conf.State)
}
