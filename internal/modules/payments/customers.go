package payments

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

// Customers is the per-user CustomerRef cache. Writes are compare-and-set
// keyed by (gateway, user): when two checkouts race, the first insert
// wins and the loser adopts the stored reference. Both gateway-side
// profiles may exist; that redundancy is acceptable.
type Customers struct{ db *gorm.DB }

func NewCustomers(db *gorm.DB) *Customers { return &Customers{db: db} }

func (c *Customers) Get(ctx context.Context, gateway, userID string) (string, error) {
	var row Customer
	err := c.db.WithContext(ctx).
		First(&row, "gateway = ? AND user_id = ?", gateway, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.CustomerRef, nil
}

// PutIfAbsent stores ref unless a concurrent writer got there first, and
// returns whichever reference ended up cached.
func (c *Customers) PutIfAbsent(ctx context.Context, gateway, userID, ref string) (string, error) {
	row := Customer{
		ID:          uuid.NewString(),
		Gateway:     gateway,
		UserID:      userID,
		CustomerRef: ref,
		CreatedAt:   time.Now(),
	}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil && !isDup(err) {
		return "", err
	}
	return c.Get(ctx, gateway, userID)
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
