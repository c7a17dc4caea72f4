package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/xerc/ai-payments/internal/modules/basket"
	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

// Service fronts the adapter registry and owns the shared reconcile
// logic: dedupe journal, stale detection, state application, session
// teardown. Adapters stay gateway-specific; the state machine does not.
type Service struct {
	repo     *orders.Repo
	sessions *checkout.Store
	journal  *Journal
	adapters map[string]Adapter
	logger   *slog.Logger
}

func NewService(repo *orders.Repo, sessions *checkout.Store, journal *Journal, logger *slog.Logger, adapters ...Adapter) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	reg := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		reg[a.Name()] = a
	}
	return &Service{repo: repo, sessions: sessions, journal: journal, adapters: reg, logger: logger}
}

func (s *Service) Adapter(name string) (Adapter, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, ErrUnknownGateway
	}
	return a, nil
}

// CheckConfig validates every registered gateway at startup.
func (s *Service) CheckConfig() error {
	for _, a := range s.adapters {
		if err := a.CheckConfig(); err != nil {
			return err
		}
	}
	return nil
}

type PayInput struct {
	OrderID string
	Gateway string
	UserID  *string
	Basket  basket.Basket
	Params  Params
}

type PayResult struct {
	Form         *FormDescriptor
	Confirmation *Confirmation
}

// Pay builds the snapshot, ensures the order row and runs the adapter's
// initiate step. Snapshot building happens before any network call; a
// malformed basket never reaches the gateway.
func (s *Service) Pay(ctx context.Context, in PayInput) (PayResult, error) {
	ad, err := s.Adapter(in.Gateway)
	if err != nil {
		return PayResult{}, err
	}

	snap, err := basket.Build(in.Basket)
	if err != nil {
		return PayResult{}, err
	}

	order, err := s.repo.Ensure(ctx, in.OrderID, in.UserID, snap.Currency, snap.TotalAmount.StringFixed(2))
	if err != nil {
		return PayResult{}, err
	}

	form, conf, err := ad.Initiate(ctx, order, snap, in.Params)
	if err != nil {
		return PayResult{Confirmation: conf}, err
	}
	return PayResult{Form: form, Confirmation: conf}, nil
}

// ConfirmPayment is the synchronous confirmation page callback: the
// client script returned, or the platform polls an in-progress intent.
func (s *Service) ConfirmPayment(ctx context.Context, in PayInput) (*Confirmation, error) {
	ad, err := s.Adapter(in.Gateway)
	if err != nil {
		return nil, err
	}

	snap, err := basket.Build(in.Basket)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.Ensure(ctx, in.OrderID, in.UserID, snap.Currency, snap.TotalAmount.StringFixed(2))
	if err != nil {
		return nil, err
	}

	return ad.Confirm(ctx, order, snap, in.Params)
}

// Reconcile applies an asynchronous out-of-band notification. It returns
// the affected order ID, or "" when the notification carries no usable
// reference. It never fails on unrecognized or stale input: gateways
// retry delivery, and a hard failure would cause a retry storm.
func (s *Service) Reconcile(ctx context.Context, gateway string, n Notification) (string, error) {
	ad, err := s.Adapter(gateway)
	if err != nil {
		return "", err
	}

	upd, perr := ad.ParseNotification(n)
	if perr != nil {
		s.logger.WarnContext(ctx, "unrecognized notification dropped",
			"gateway", gateway, "err", perr)
		return "", nil
	}
	if upd == nil {
		s.logger.InfoContext(ctx, "notification without order reference ignored", "gateway", gateway)
		return "", nil
	}

	// Payone posts form-encoded bodies; the journal column is json, so
	// the parsed parameters are journaled instead of the raw payload.
	payload, _ := json.Marshal(n.Params)

	eventRowID, fresh, err := s.journal.Record(ctx, gateway, upd.EventID, upd.EventType, payload)
	if err != nil {
		return "", err
	}
	if !fresh {
		// duplicate delivery: same final state, nothing re-applied
		s.logger.InfoContext(ctx, "notification deduplicated",
			"gateway", gateway, "event_id", upd.EventID, "order_id", upd.OrderID)
		return upd.OrderID, nil
	}

	if err := s.apply(ctx, gateway, upd); err != nil {
		if errors.Is(err, ErrStaleNotification) {
			s.logger.InfoContext(ctx, "stale notification dropped",
				"gateway", gateway, "event_id", upd.EventID, "order_id", upd.OrderID)
			_ = s.journal.MarkProcessed(ctx, eventRowID)
			return upd.OrderID, nil
		}
		if errors.Is(err, orders.ErrOrderNotFound) {
			s.logger.WarnContext(ctx, "notification for unknown order dropped",
				"gateway", gateway, "event_id", upd.EventID, "order_id", upd.OrderID)
			_ = s.journal.MarkFailed(ctx, eventRowID, err)
			return "", nil
		}
		_ = s.journal.MarkFailed(ctx, eventRowID, err)
		return "", err
	}

	if err := s.journal.MarkProcessed(ctx, eventRowID); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "notification applied",
		"gateway", gateway, "event_id", upd.EventID, "order_id", upd.OrderID, "state", upd.State.String())
	return upd.OrderID, nil
}

func (s *Service) apply(ctx context.Context, gateway string, upd *StatusUpdate) error {
	order, err := s.repo.Get(ctx, upd.OrderID)
	if err != nil {
		return err
	}

	// A notice for a different transaction after the order settled is a
	// leftover from an earlier attempt, not an update.
	if order.PaymentState.Terminal() && upd.TransactionRef != "" {
		stored, err := s.repo.GetAttribute(ctx, upd.OrderID, AttrTransactionID)
		if err != nil {
			return err
		}
		if stored != "" && stored != upd.TransactionRef {
			return ErrStaleNotification
		}
	}

	if err := s.repo.SetPaymentState(ctx, upd.OrderID, upd.State); err != nil {
		if errors.Is(err, orders.ErrStateRegression) {
			return ErrStaleNotification
		}
		return err
	}

	if upd.TransactionRef != "" && upd.State != orders.StateRefused && upd.State != orders.StateCanceled {
		stored, err := s.repo.GetAttribute(ctx, upd.OrderID, AttrTransactionID)
		if err != nil {
			return err
		}
		if stored == "" {
			if err := s.repo.SetAttribute(ctx, upd.OrderID, AttrTransactionID, upd.TransactionRef); err != nil {
				return err
			}
		}
	}

	if upd.State.Terminal() {
		if err := s.sessions.Destroy(ctx, upd.OrderID, gateway); err != nil {
			s.logger.WarnContext(ctx, "failed to destroy checkout session",
				"gateway", gateway, "order_id", upd.OrderID, "err", err)
		}
	}
	return nil
}
