package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

const defaultTTL = 2 * time.Hour

// forUpdate adds a row lock where the dialect supports one. sqlite
// serializes writers on its own and rejects FOR UPDATE.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func NewStore(db *gorm.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{db: db, ttl: ttl}
}

// Open returns the live session for order+gateway, creating it in
// form_pending when none exists. Expired rows are replaced.
func (s *Store) Open(ctx context.Context, orderID, gateway string) (Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e := forUpdate(tx.WithContext(ctx)).
			First(&sess, "order_id = ? AND gateway = ?", orderID, gateway).Error
		if e == nil {
			if !sess.State.Terminal() && time.Since(sess.CreatedAt) > s.ttl {
				if err := tx.WithContext(ctx).Delete(&Session{}, "id = ?", sess.ID).Error; err != nil {
					return err
				}
				return s.createIn(ctx, tx, &sess, orderID, gateway)
			}
			return nil
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}
		return s.createIn(ctx, tx, &sess, orderID, gateway)
	})
	return sess, err
}

func (s *Store) createIn(ctx context.Context, tx *gorm.DB, out *Session, orderID, gateway string) error {
	now := time.Now()
	*out = Session{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Gateway:   gateway,
		State:     StateFormPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(out).Error; err != nil {
		// concurrent create on unique(order_id,gateway): reread the winner
		if isDup(err) {
			return tx.WithContext(ctx).
				First(out, "order_id = ? AND gateway = ?", orderID, gateway).Error
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, orderID, gateway string) (Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).First(&sess, "order_id = ? AND gateway = ?", orderID, gateway).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

// CollectToken records the client-supplied payment token and moves the
// session to token_collected. Resubmits overwrite the token.
func (s *Store) CollectToken(ctx context.Context, sessionID, token string) error {
	return s.move(ctx, sessionID, StateTokenCollected, map[string]any{"client_token": token})
}

func (s *Store) SetIntentRef(ctx context.Context, sessionID, intentRef string) error {
	return s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"intent_ref": intentRef, "updated_at": time.Now()}).Error
}

// Close finishes the handshake as confirmed or refused.
func (s *Store) Close(ctx context.Context, sessionID string, state SessionState) error {
	if !state.Terminal() {
		return &InvalidTransitionError{To: state}
	}
	return s.move(ctx, sessionID, state, nil)
}

// Destroy removes the session once the order reached a terminal payment
// state via reconciliation.
func (s *Store) Destroy(ctx context.Context, orderID, gateway string) error {
	return s.db.WithContext(ctx).
		Delete(&Session{}, "order_id = ? AND gateway = ?", orderID, gateway).Error
}

// PurgeExpired drops non-terminal sessions older than the TTL.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.ttl)
	res := s.db.WithContext(ctx).
		Where("state IN ? AND created_at < ?", []SessionState{StateFormPending, StateTokenCollected}, cutoff).
		Delete(&Session{})
	return res.RowsAffected, res.Error
}

func (s *Store) move(ctx context.Context, sessionID string, to SessionState, extra map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess Session
		if err := forUpdate(tx.WithContext(ctx)).
			First(&sess, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.State == to && len(extra) == 0 {
			return nil
		}
		if !canMove(sess.State, to) {
			return &InvalidTransitionError{From: sess.State, To: to}
		}

		updates := map[string]any{"state": to, "updated_at": time.Now()}
		for k, v := range extra {
			updates[k] = v
		}
		return tx.WithContext(ctx).Model(&Session{}).
			Where("id = ?", sess.ID).
			Updates(updates).Error
	})
}

func isDup(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite (tests) reports unique violations as a plain error string
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
