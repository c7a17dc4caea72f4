package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

func newStripeTest(t *testing.T, f *fixture, gw *fakeGateway, cfg StripeConfig) *Stripe {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = "sk_test_123"
	}
	if cfg.PublishableKey == "" {
		cfg.PublishableKey = "pk_test_123"
	}
	if cfg.SelfURL == "" {
		cfg.SelfURL = "https://shop.example/checkout/confirm"
	}
	return NewStripe(cfg, gw, f.repo, f.sessions, f.customers, testLogger())
}

func TestStripe_CheckConfig(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{}

	ok := newStripeTest(t, f, gw, StripeConfig{})
	assert.NoError(t, ok.CheckConfig())

	noAPI := NewStripe(StripeConfig{PublishableKey: "pk"}, gw, f.repo, f.sessions, f.customers, testLogger())
	assert.ErrorIs(t, noAPI.CheckConfig(), ErrMissingConfig)

	noPub := NewStripe(StripeConfig{APIKey: "sk"}, gw, f.repo, f.sessions, f.customers, testLogger())
	assert.ErrorIs(t, noPub.CheckConfig(), ErrMissingConfig)
}

func TestStripe_InitiateWithoutTokenReturnsForm(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	form, conf, err := s.Initiate(ctx, order, testSnapshot(t), Params{})
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.Nil(t, conf)

	assert.Equal(t, "https://shop.example/checkout/confirm", form.URL)
	assert.Equal(t, "POST", form.Method)
	assert.Equal(t, ParamPaymentToken, form.Fields[0].Code)
	assert.Equal(t, "pk_test_123", form.Script["publishableKey"])

	// no gateway traffic before the client returns a token
	assert.Empty(t, gw.reqs)

	sess, err := f.sessions.Get(ctx, order.ID, "stripe")
	require.NoError(t, err)
	assert.Equal(t, checkout.StateFormPending, sess.State)
}

func TestStripe_InitiateWithTokenConfirms(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1", IntentRef: "pi_1"}}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	form, conf, err := s.Initiate(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_visa"})
	require.NoError(t, err)
	assert.Nil(t, form)
	require.NotNil(t, conf)

	assert.True(t, conf.Success)
	assert.Equal(t, orders.StateReceived, conf.State)
	assert.Equal(t, "tx_1", conf.TransactionRef)

	req := gw.last(t)
	assert.Equal(t, OpPurchase, req.Operation)
	assert.Equal(t, "tok_visa", req.Token)
	assert.Equal(t, "53.90", req.Amount)
	assert.Equal(t, "EUR", req.Currency)

	o, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateReceived, o.PaymentState)
	require.NotNil(t, o.PaidAt)

	tx, err := f.repo.GetAttribute(ctx, order.ID, AttrTransactionID)
	require.NoError(t, err)
	assert.Equal(t, "tx_1", tx)

	intent, err := f.repo.GetAttribute(ctx, order.ID, AttrStripeIntentRef)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent)

	sess, err := f.sessions.Get(ctx, order.ID, "stripe")
	require.NoError(t, err)
	assert.Equal(t, checkout.StateConfirmed, sess.State)
}

func TestStripe_AuthorizeModeStopsAtAuthorized(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1"}}
	s := newStripeTest(t, f, gw, StripeConfig{Authorize: true})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	_, conf, err := s.Initiate(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_visa"})
	require.NoError(t, err)
	require.NotNil(t, conf)

	assert.Equal(t, orders.StateAuthorized, conf.State)
	assert.Equal(t, OpAuthorize, gw.last(t).Operation)

	o, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateAuthorized, o.PaymentState)
	assert.Nil(t, o.PaidAt)
}

func TestStripe_DeclineRefusesWithoutError(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: false, Code: "card_declined"}}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	conf, err := s.Confirm(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_bad"})
	require.NoError(t, err)
	require.NotNil(t, conf)

	assert.False(t, conf.Success)
	assert.Equal(t, orders.StateRefused, conf.State)
	assert.Empty(t, conf.TransactionRef)

	o, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateRefused, o.PaymentState)

	tx, err := f.repo.GetAttribute(ctx, order.ID, AttrTransactionID)
	require.NoError(t, err)
	assert.Empty(t, tx)

	sess, err := f.sessions.Get(ctx, order.ID, "stripe")
	require.NoError(t, err)
	assert.Equal(t, checkout.StateRefused, sess.State)
}

func TestStripe_TimeoutStaysPending(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{err: ErrGatewayTimeout}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	conf, err := s.Confirm(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_visa"})
	require.ErrorIs(t, err, ErrGatewayTimeout)
	require.NotNil(t, conf)

	assert.False(t, conf.Success)
	assert.Equal(t, orders.StatePending, conf.State)

	o, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatePending, o.PaymentState)
}

func TestStripe_ConfirmAfterDeclineRejected(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: false, Code: "card_declined"}}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	conf, err := s.Confirm(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_bad"})
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.False(t, conf.Success)

	// the token-less resubmit must not replay the cached token
	gw.resp = GatewayResponse{Successful: true, TransactionRef: "tx_late"}
	settled, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)

	_, err = s.Confirm(ctx, settled, testSnapshot(t), Params{})
	assert.ErrorIs(t, err, ErrOrderSettled)
	assert.Len(t, gw.reqs, 1)

	o, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateRefused, o.PaymentState)

	tx, err := f.repo.GetAttribute(ctx, order.ID, AttrTransactionID)
	require.NoError(t, err)
	assert.Empty(t, tx)
}

func TestStripe_ConcurrentSettleNeverReportsSuccess(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_late"}}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	// the order settles behind this attempt's back, after its state was read
	require.NoError(t, f.repo.SetPaymentState(ctx, order.ID, orders.StateRefused))

	conf, err := s.Confirm(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_visa"})
	assert.ErrorIs(t, err, ErrOrderSettled)
	assert.Nil(t, conf)

	o, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateRefused, o.PaymentState)

	tx, err := f.repo.GetAttribute(ctx, order.ID, AttrTransactionID)
	require.NoError(t, err)
	assert.Empty(t, tx)
}

func TestStripe_ResubmitReusesIntent(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1", IntentRef: "pi_1"}}
	s := newStripeTest(t, f, gw, StripeConfig{})
	ctx := context.Background()
	order := ensureOrder(t, f, uuid.NewString(), nil)

	// an earlier attempt left an intent behind
	require.NoError(t, f.repo.SetAttribute(ctx, order.ID, AttrStripeIntentRef, "pi_1"))

	conf, err := s.Confirm(ctx, order, testSnapshot(t), Params{})
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.True(t, conf.Success)

	req := gw.last(t)
	assert.Equal(t, OpConfirm, req.Operation)
	assert.Equal(t, "pi_1", req.IntentRef)
	assert.Empty(t, req.Token)
}

func TestStripe_NothingToConfirm(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{}
	s := newStripeTest(t, f, gw, StripeConfig{})
	order := ensureOrder(t, f, uuid.NewString(), nil)

	_, err := s.Confirm(context.Background(), order, testSnapshot(t), Params{})
	assert.ErrorIs(t, err, ErrNothingToConfirm)
	assert.Empty(t, gw.reqs)
}

func TestStripe_CreateTokenCachesCustomer(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1", CustomerRef: "cus_1"}}
	s := newStripeTest(t, f, gw, StripeConfig{CreateToken: true})
	ctx := context.Background()
	userID := uuid.NewString()
	order := ensureOrder(t, f, uuid.NewString(), &userID)

	_, conf, err := s.Initiate(ctx, order, testSnapshot(t), Params{
		ParamPaymentToken: "tok_visa",
		"customer_email":  "buyer@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.True(t, conf.Success)

	require.Len(t, gw.reqs, 2)
	assert.Equal(t, OpCreateCustomer, gw.reqs[0].Operation)
	assert.Equal(t, "buyer@example.com", gw.reqs[0].Extra["email"])
	assert.Equal(t, OpPurchase, gw.reqs[1].Operation)
	assert.Equal(t, "cus_1", gw.reqs[1].CustomerRef)

	cached, err := f.customers.Get(ctx, "stripe", userID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", cached)
}

func TestStripe_CachedCustomerSkipsCreation(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{resp: GatewayResponse{Successful: true, TransactionRef: "tx_1"}}
	s := newStripeTest(t, f, gw, StripeConfig{CreateToken: true})
	ctx := context.Background()
	userID := uuid.NewString()
	order := ensureOrder(t, f, uuid.NewString(), &userID)

	_, err := f.customers.PutIfAbsent(ctx, "stripe", userID, "cus_cached")
	require.NoError(t, err)

	_, conf, err := s.Initiate(ctx, order, testSnapshot(t), Params{ParamPaymentToken: "tok_visa"})
	require.NoError(t, err)
	require.NotNil(t, conf)

	require.Len(t, gw.reqs, 1)
	assert.Equal(t, OpPurchase, gw.reqs[0].Operation)
	assert.Equal(t, "cus_cached", gw.reqs[0].CustomerRef)
}

func TestStripe_ParseNotification(t *testing.T) {
	f := newFixture(t)
	s := newStripeTest(t, f, &fakeGateway{}, StripeConfig{})

	upd, err := s.ParseNotification(Notification{Params: Params{
		"reference":             "order-1",
		"type":                  "payment_intent.succeeded",
		"event_id":              "evt_1",
		"transaction_reference": "tx_1",
		"created":               "1700000000",
	}})
	require.NoError(t, err)
	require.NotNil(t, upd)

	assert.Equal(t, "order-1", upd.OrderID)
	assert.Equal(t, "evt_1", upd.EventID)
	assert.Equal(t, orders.StateReceived, upd.State)
	assert.Equal(t, "tx_1", upd.TransactionRef)
	assert.Equal(t, time.Unix(1700000000, 0), upd.OccurredAt)
}

func TestStripe_ParseNotification_StateMapping(t *testing.T) {
	f := newFixture(t)
	s := newStripeTest(t, f, &fakeGateway{}, StripeConfig{})

	cases := map[string]orders.PaymentState{
		"payment_intent.succeeded":                orders.StateReceived,
		"payment_intent.amount_capturable_updated": orders.StateAuthorized,
		"payment_intent.payment_failed":           orders.StateRefused,
		"payment_intent.canceled":                 orders.StateCanceled,
	}
	for eventType, want := range cases {
		upd, err := s.ParseNotification(Notification{Params: Params{"reference": "o1", "type": eventType}})
		require.NoError(t, err, eventType)
		require.NotNil(t, upd)
		assert.Equal(t, want, upd.State, eventType)
	}
}

func TestStripe_ParseNotification_NoReferenceIgnored(t *testing.T) {
	f := newFixture(t)
	s := newStripeTest(t, f, &fakeGateway{}, StripeConfig{})

	upd, err := s.ParseNotification(Notification{Params: Params{"type": "payment_intent.succeeded"}})
	assert.NoError(t, err)
	assert.Nil(t, upd)
}

func TestStripe_ParseNotification_UnknownType(t *testing.T) {
	f := newFixture(t)
	s := newStripeTest(t, f, &fakeGateway{}, StripeConfig{})

	_, err := s.ParseNotification(Notification{Params: Params{"reference": "o1", "type": "charge.refunded"}})
	assert.Error(t, err)
}

func TestStripe_Ack(t *testing.T) {
	f := newFixture(t)
	s := newStripeTest(t, f, &fakeGateway{}, StripeConfig{})

	ct, body := s.Ack()
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"ok":true}`, body)
}
