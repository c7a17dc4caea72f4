package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo is the gorm-backed Sink implementation.
type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

// forUpdate adds a row lock where the dialect supports one. sqlite
// serializes writers on its own and rejects FOR UPDATE.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// Ensure creates the order row on first contact with the payment layer.
// An existing row keeps its state; only totals are refreshed while the
// order is still pending.
func (r *Repo) Ensure(ctx context.Context, orderID string, userID *string, currency, totalAmount string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e := forUpdate(tx.WithContext(ctx)).
			First(&o, "id = ?", orderID).Error
		if e == nil {
			if o.PaymentState == StatePending {
				now := time.Now()
				if err := tx.WithContext(ctx).Model(&Order{}).
					Where("id = ?", o.ID).
					Updates(map[string]any{
						"currency":     currency,
						"total_amount": totalAmount,
						"updated_at":   now,
					}).Error; err != nil {
					return err
				}
				o.Currency = currency
				o.TotalAmount = totalAmount
			}
			return nil
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}

		now := time.Now()
		o = Order{
			ID:           orderID,
			UserID:       userID,
			Currency:     currency,
			TotalAmount:  totalAmount,
			PaymentState: StatePending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.WithContext(ctx).Create(&o).Error
	})
	return o, err
}

func (r *Repo) SetPaymentState(ctx context.Context, orderID string, state PaymentState) error {
	if !state.Valid() {
		return ErrInvalidState
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := forUpdate(tx.WithContext(ctx)).
			First(&o, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		// idempotent
		if o.PaymentState == state {
			return nil
		}
		if !CanAdvance(o.PaymentState, state) {
			return ErrStateRegression
		}

		now := time.Now()
		updates := map[string]any{
			"payment_state": state,
			"updated_at":    now,
		}
		if state == StateReceived {
			paidAt := now
			updates["paid_at"] = &paidAt
		}
		return tx.WithContext(ctx).Model(&Order{}).
			Where("id = ?", o.ID).
			Updates(updates).Error
	})
}

func (r *Repo) SetAttribute(ctx context.Context, orderID, key, value string) error {
	now := time.Now()
	attr := OrderAttribute{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		AttrKey:   key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "attr_key"}},
			DoUpdates: clause.Assignments(map[string]any{"value": value, "updated_at": now}),
		}).
		Create(&attr).Error
}

func (r *Repo) GetAttribute(ctx context.Context, orderID, key string) (string, error) {
	var attr OrderAttribute
	err := r.db.WithContext(ctx).
		First(&attr, "order_id = ? AND attr_key = ?", orderID, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return attr.Value, nil
}
