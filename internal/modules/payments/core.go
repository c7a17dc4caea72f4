package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

// base carries the shared control flow every gateway adapter needs:
// session bookkeeping, outcome handling, sink writes. Gateway adapters
// embed it and add their own request shaping.
type base struct {
	name      string
	gateway   GatewayClient
	sink      orders.Sink
	sessions  *checkout.Store
	logger    *slog.Logger
	authorize bool // separate capture step configured by the shop owner
}

func (b *base) Name() string { return b.name }

// successState is authorized when a later capture step is configured,
// received otherwise.
func (b *base) successState() orders.PaymentState {
	if b.authorize {
		return orders.StateAuthorized
	}
	return orders.StateReceived
}

// guard rejects a new payment attempt once the order or its handshake
// settled. Without it a token-less resubmit would replay the cached
// client token and charge the gateway a second time.
func (b *base) guard(order orders.Order, sess checkout.Session) error {
	if order.PaymentState.Terminal() || sess.State.Terminal() {
		return ErrOrderSettled
	}
	return nil
}

// collectToken moves the session forward when the client script returned
// a token and resubmitted.
func (b *base) collectToken(ctx context.Context, sess checkout.Session, token string) error {
	if token == "" {
		return nil
	}
	return b.sessions.CollectToken(ctx, sess.ID, token)
}

// outcome turns a gateway response (or transport failure) into a
// Confirmation and persists it through the sink.
//
// Timeouts are ambiguous: the order stays pending for reconciliation and
// the caller gets ErrGatewayTimeout, never a success. Declines are an
// expected business result and carry no error.
func (b *base) outcome(ctx context.Context, orderID, sessionID, intentAttr string, resp GatewayResponse, sendErr error) (*Confirmation, error) {
	if sendErr != nil {
		if errors.Is(sendErr, ErrGatewayTimeout) {
			b.logger.WarnContext(ctx, "gateway call timed out, awaiting reconciliation",
				"gateway", b.name, "order_id", orderID)
			return &Confirmation{Success: false, State: orders.StatePending}, sendErr
		}
		return nil, fmt.Errorf("%s: %w", b.name, sendErr)
	}

	// The intent reference is persisted from every response, success or
	// not, so a resubmit can pick up the in-progress payment.
	if resp.IntentRef != "" {
		if err := b.sink.SetAttribute(ctx, orderID, intentAttr, resp.IntentRef); err != nil {
			return nil, err
		}
		if sessionID != "" {
			if err := b.sessions.SetIntentRef(ctx, sessionID, resp.IntentRef); err != nil {
				b.logger.WarnContext(ctx, "failed to track intent ref on session",
					"gateway", b.name, "order_id", orderID, "err", err)
			}
		}
	}

	if !resp.Successful {
		if err := b.sink.SetPaymentState(ctx, orderID, orders.StateRefused); err != nil {
			if errors.Is(err, orders.ErrStateRegression) {
				return nil, ErrOrderSettled
			}
			return nil, err
		}
		b.closeSession(ctx, sessionID, checkout.StateRefused)
		b.logger.InfoContext(ctx, "payment refused by gateway",
			"gateway", b.name, "order_id", orderID, "code", resp.Code)
		return &Confirmation{Success: false, State: orders.StateRefused, IntentRef: resp.IntentRef}, nil
	}

	// The state write comes first: a refused transition (settled in the
	// meantime) must not leave a transaction id on the order, and a
	// rejected write is never reported as success.
	state := b.successState()
	if err := b.sink.SetPaymentState(ctx, orderID, state); err != nil {
		if errors.Is(err, orders.ErrStateRegression) {
			return nil, ErrOrderSettled
		}
		return nil, err
	}
	if resp.TransactionRef != "" {
		if err := b.sink.SetAttribute(ctx, orderID, AttrTransactionID, resp.TransactionRef); err != nil {
			return nil, err
		}
	}
	b.closeSession(ctx, sessionID, checkout.StateConfirmed)

	b.logger.InfoContext(ctx, "payment confirmed",
		"gateway", b.name, "order_id", orderID, "state", state.String(), "transaction_ref", resp.TransactionRef)

	return &Confirmation{
		Success:        true,
		State:          state,
		TransactionRef: resp.TransactionRef,
		IntentRef:      resp.IntentRef,
	}, nil
}

// closeSession is bookkeeping only; a confirmation that already happened
// must not fail because the transient session record lagged behind.
func (b *base) closeSession(ctx context.Context, sessionID string, state checkout.SessionState) {
	if sessionID == "" {
		return
	}
	if err := b.sessions.Close(ctx, sessionID, state); err != nil {
		var ite *checkout.InvalidTransitionError
		if errors.As(err, &ite) || errors.Is(err, checkout.ErrSessionNotFound) {
			return
		}
		b.logger.WarnContext(ctx, "failed to close checkout session",
			"gateway", b.name, "session_id", sessionID, "err", err)
	}
}
