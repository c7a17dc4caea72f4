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

type PayoneConfig struct {
	MerchantID string
	PortalID   string
	Key        string
	BaseURL    string
	SelfURL    string
	Authorize  bool
	Timeout    time.Duration
}

// Payone sends the full line-item bag with every request ("classic"
// access method) and reports status changes through server-to-server
// TransactionStatus notifications.
type Payone struct {
	base
	cfg PayoneConfig
}

func NewPayone(cfg PayoneConfig, gw GatewayClient, sink orders.Sink, sessions *checkout.Store, logger *slog.Logger) *Payone {
	if logger == nil {
		logger = slog.Default()
	}
	return &Payone{
		base: base{
			name:      "payone",
			gateway:   gw,
			sink:      sink,
			sessions:  sessions,
			logger:    logger,
			authorize: cfg.Authorize,
		},
		cfg: cfg,
	}
}

func (p *Payone) CheckConfig() error {
	if p.cfg.MerchantID == "" {
		return fmt.Errorf("%w: payone mid", ErrMissingConfig)
	}
	if p.cfg.PortalID == "" {
		return fmt.Errorf("%w: payone portalid", ErrMissingConfig)
	}
	if p.cfg.Key == "" {
		return fmt.Errorf("%w: payone key", ErrMissingConfig)
	}
	return nil
}

func (p *Payone) Initiate(ctx context.Context, order orders.Order, snap basket.Snapshot, params Params) (*FormDescriptor, *Confirmation, error) {
	sess, err := p.sessions.Open(ctx, order.ID, p.name)
	if err != nil {
		return nil, nil, err
	}
	if err := p.guard(order, sess); err != nil {
		return nil, nil, err
	}

	token := params[ParamPaymentToken]
	if token == "" {
		return p.paymentForm(), nil, nil
	}
	if err := p.collectToken(ctx, sess, token); err != nil {
		return nil, nil, err
	}

	conf, err := p.Confirm(ctx, order, snap, params)
	return nil, conf, err
}

func (p *Payone) Confirm(ctx context.Context, order orders.Order, snap basket.Snapshot, params Params) (*Confirmation, error) {
	sess, err := p.sessions.Open(ctx, order.ID, p.name)
	if err != nil {
		return nil, err
	}
	if err := p.guard(order, sess); err != nil {
		return nil, err
	}

	token := params[ParamPaymentToken]
	if token == "" && sess.ClientToken != nil {
		token = *sess.ClientToken
	} else if token != "" {
		if err := p.collectToken(ctx, sess, token); err != nil {
			return nil, err
		}
	}

	intentRef, err := p.sink.GetAttribute(ctx, order.ID, AttrPayoneTxID)
	if err != nil {
		return nil, err
	}
	if token == "" && intentRef == "" {
		return nil, ErrNothingToConfirm
	}

	op := OpPurchase
	if p.cfg.Authorize {
		op = OpAuthorize
	}

	resp, sendErr := p.gateway.Send(ctx, GatewayRequest{
		Operation:    op,
		Amount:       snap.TotalAmount.StringFixed(2),
		Currency:     snap.Currency,
		Token:        token,
		IntentRef:    intentRef,
		AccessMethod: "classic",
		Items:        payoneItems(snap),
		Extra: map[string]string{
			"mid":      p.cfg.MerchantID,
			"portalid": p.cfg.PortalID,
		},
	})

	return p.outcome(ctx, order.ID, sess.ID, AttrPayoneTxID, resp, sendErr)
}

// payoneItems rewrites the snapshot lines into the gateway's line-item
// vocabulary: shipping travels as "shipment".
func payoneItems(snap basket.Snapshot) []basket.LineItem {
	items := make([]basket.LineItem, len(snap.Lines))
	copy(items, snap.Lines)
	for i := range items {
		if items[i].Type == basket.TypeShipping {
			items[i].Type = basket.ItemType("shipment")
		}
	}
	return items
}

func (p *Payone) paymentForm() *FormDescriptor {
	return &FormDescriptor{
		URL:    p.cfg.SelfURL,
		Method: "POST",
		Fields: []FormField{
			{Code: ParamPaymentToken, Label: "Authentication token", Type: "string", Required: true},
			{Code: "payment.cardno", Label: "Credit card number", Type: "string", Public: true},
			{Code: "payment.expiry", Label: "Expiry", Type: "string", Public: true},
			{Code: "payment.cvv", Label: "Verification number", Type: "string", Public: true},
		},
	}
}

// ParseNotification handles Payone TransactionStatus callbacks. A
// notification without a reference parameter is not addressable to an
// order and is ignored.
func (p *Payone) ParseNotification(n Notification) (*StatusUpdate, error) {
	orderID := n.Params["reference"]
	if orderID == "" {
		return nil, nil
	}

	txAction := n.Params["txaction"]
	state, ok := payoneTxState(txAction)
	if !ok {
		return nil, fmt.Errorf("unknown payone txaction %q", txAction)
	}

	txID := n.Params["txid"]
	eventID := orderID + "|" + txID + "|" + txAction

	occurred := time.Now()
	if ts := n.Params["txtime"]; ts != "" {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			occurred = time.Unix(unix, 0)
		}
	}

	return &StatusUpdate{
		OrderID:        orderID,
		EventID:        eventID,
		EventType:      txAction,
		State:          state,
		TransactionRef: txID,
		OccurredAt:     occurred,
	}, nil
}

func payoneTxState(txAction string) (orders.PaymentState, bool) {
	switch txAction {
	case "appointed":
		return orders.StateAuthorized, true
	case "capture", "paid":
		return orders.StateReceived, true
	case "failed":
		return orders.StateRefused, true
	case "cancelation":
		return orders.StateCanceled, true
	}
	return "", false
}

// Ack is the literal body Payone expects; anything else keeps the
// notification in its retry queue.
func (p *Payone) Ack() (string, string) {
	return "text/plain", "TSOK"
}
