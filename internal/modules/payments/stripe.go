package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xerc/ai-payments/internal/modules/basket"
	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

type StripeConfig struct {
	Type           string // payment intent flavor, e.g. Stripe_PaymentIntents
	APIKey         string
	PublishableKey string
	BaseURL        string
	SelfURL        string // where the payment form posts back
	CreateToken    bool   // save a customer profile for recurring payments
	Authorize      bool   // authorize now, capture later
	Timeout        time.Duration
}

type Stripe struct {
	base
	cfg       StripeConfig
	customers *Customers
}

func NewStripe(cfg StripeConfig, gw GatewayClient, sink orders.Sink, sessions *checkout.Store, customers *Customers, logger *slog.Logger) *Stripe {
	if cfg.Type == "" {
		cfg.Type = "Stripe_PaymentIntents"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stripe{
		base: base{
			name:      "stripe",
			gateway:   gw,
			sink:      sink,
			sessions:  sessions,
			logger:    logger,
			authorize: cfg.Authorize,
		},
		cfg:       cfg,
		customers: customers,
	}
}

func (s *Stripe) CheckConfig() error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("%w: stripe apiKey", ErrMissingConfig)
	}
	if s.cfg.PublishableKey == "" {
		return fmt.Errorf("%w: stripe publishableKey", ErrMissingConfig)
	}
	return nil
}

func (s *Stripe) Initiate(ctx context.Context, order orders.Order, snap basket.Snapshot, params Params) (*FormDescriptor, *Confirmation, error) {
	sess, err := s.sessions.Open(ctx, order.ID, s.name)
	if err != nil {
		return nil, nil, err
	}
	if err := s.guard(order, sess); err != nil {
		return nil, nil, err
	}

	token := params[ParamPaymentToken]
	if token == "" {
		return s.paymentForm(), nil, nil
	}

	if err := s.collectToken(ctx, sess, token); err != nil {
		return nil, nil, err
	}

	if s.cfg.CreateToken && order.UserID != nil {
		if err := s.ensureCustomer(ctx, *order.UserID, params); err != nil {
			return nil, nil, err
		}
	}

	conf, err := s.Confirm(ctx, order, snap, params)
	return nil, conf, err
}

func (s *Stripe) Confirm(ctx context.Context, order orders.Order, snap basket.Snapshot, params Params) (*Confirmation, error) {
	sess, err := s.sessions.Open(ctx, order.ID, s.name)
	if err != nil {
		return nil, err
	}
	if err := s.guard(order, sess); err != nil {
		return nil, err
	}

	token := params[ParamPaymentToken]
	if token == "" && sess.ClientToken != nil {
		token = *sess.ClientToken
	} else if token != "" {
		if err := s.collectToken(ctx, sess, token); err != nil {
			return nil, err
		}
	}

	intentRef, err := s.sink.GetAttribute(ctx, order.ID, AttrStripeIntentRef)
	if err != nil {
		return nil, err
	}
	if token == "" && intentRef == "" {
		return nil, ErrNothingToConfirm
	}

	var customerRef string
	if s.cfg.CreateToken && order.UserID != nil {
		if customerRef, err = s.customers.Get(ctx, s.name, *order.UserID); err != nil {
			return nil, err
		}
	}

	// An existing intent is always reused: a client resubmit after a
	// timeout confirms the in-progress payment instead of charging twice.
	op := OpPurchase
	if s.cfg.Authorize {
		op = OpAuthorize
	}
	if intentRef != "" && token == "" {
		op = OpConfirm
	}

	resp, sendErr := s.gateway.Send(ctx, GatewayRequest{
		Operation:   op,
		Amount:      snap.TotalAmount.StringFixed(2),
		Currency:    snap.Currency,
		Token:       token,
		CustomerRef: customerRef,
		IntentRef:   intentRef,
		Confirm:     true,
	})

	conf, err := s.outcome(ctx, order.ID, sess.ID, AttrStripeIntentRef, resp, sendErr)
	if err != nil {
		return conf, err
	}

	// The gateway may mint a customer profile during confirmation; cache
	// it for repeat payments.
	if conf.Success && s.cfg.CreateToken && order.UserID != nil && resp.CustomerRef != "" {
		if _, cerr := s.customers.PutIfAbsent(ctx, s.name, *order.UserID, resp.CustomerRef); cerr != nil {
			s.logger.WarnContext(ctx, "failed to cache customer reference",
				"gateway", s.name, "order_id", order.ID, "err", cerr)
		}
	}
	return conf, nil
}

// ensureCustomer creates a gateway customer profile once per user. A
// failed creation is not fatal: the payment proceeds without a profile.
func (s *Stripe) ensureCustomer(ctx context.Context, userID string, params Params) error {
	cached, err := s.customers.Get(ctx, s.name, userID)
	if err != nil {
		return err
	}
	if cached != "" {
		return nil
	}

	extra := map[string]string{}
	if name := params["customer_name"]; name != "" {
		extra["description"] = name
	}
	if email := params["customer_email"]; email != "" {
		extra["email"] = email
	}

	resp, err := s.gateway.Send(ctx, GatewayRequest{Operation: OpCreateCustomer, Extra: extra})
	if err != nil || !resp.Successful || resp.CustomerRef == "" {
		s.logger.WarnContext(ctx, "customer profile creation skipped",
			"gateway", s.name, "user_id", userID, "err", err)
		return nil
	}

	if _, err := s.customers.PutIfAbsent(ctx, s.name, userID, resp.CustomerRef); err != nil {
		return err
	}
	return nil
}

func (s *Stripe) paymentForm() *FormDescriptor {
	return &FormDescriptor{
		URL:    s.cfg.SelfURL,
		Method: "POST",
		Fields: []FormField{
			{Code: ParamPaymentToken, Label: "Authentication token", Type: "string", Required: true},
			{Code: "setup_future_usage", Label: "Save card for recurring payments", Type: "string", Default: "off_session", Required: true},
			{Code: "payment.cardno", Label: "Credit card number", Type: "container", Public: true},
			{Code: "payment.expiry", Label: "Expiry", Type: "container", Public: true},
			{Code: "payment.cvv", Label: "Verification number", Type: "container", Public: true},
		},
		Script: map[string]string{
			"publishableKey":    s.cfg.PublishableKey,
			"tokenSelector":     "#process-paymenttoken",
			"cardNumberElement": `div[id="process-payment.cardno"]`,
			"cardExpiryElement": `div[id="process-payment.expiry"]`,
			"cardCvcElement":    `div[id="process-payment.cvv"]`,
		},
	}
}

func (s *Stripe) ParseNotification(n Notification) (*StatusUpdate, error) {
	orderID := n.Params["reference"]
	if orderID == "" {
		return nil, nil
	}

	eventType := n.Params["type"]
	state, ok := stripeEventState(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown stripe event type %q", eventType)
	}

	eventID := n.Params["event_id"]
	if eventID == "" {
		eventID = orderID + "|" + eventType
	}

	occurred := time.Now()
	if ts := n.Params["created"]; ts != "" {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			occurred = time.Unix(unix, 0)
		}
	}

	return &StatusUpdate{
		OrderID:        orderID,
		EventID:        eventID,
		EventType:      eventType,
		State:          state,
		TransactionRef: n.Params["transaction_reference"],
		OccurredAt:     occurred,
	}, nil
}

func stripeEventState(eventType string) (orders.PaymentState, bool) {
	switch eventType {
	case "payment_intent.succeeded":
		return orders.StateReceived, true
	case "payment_intent.amount_capturable_updated":
		return orders.StateAuthorized, true
	case "payment_intent.payment_failed":
		return orders.StateRefused, true
	case "payment_intent.canceled":
		return orders.StateCanceled, true
	}
	return "", false
}

func (s *Stripe) Ack() (string, string) {
	return "application/json", `{"ok":true}`
}
