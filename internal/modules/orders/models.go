package orders

import "time"

type Order struct {
	ID     string  `gorm:"type:char(36);primaryKey"`
	UserID *string `gorm:"type:char(36);index:ix_orders_user_id"`

	Currency    string `gorm:"type:char(3);not null"`
	TotalAmount string `gorm:"type:varchar(32);not null"` // decimal string, snapshot total at payment time

	PaymentState PaymentState `gorm:"type:varchar(32);not null"`

	// Time columns take the dialect's native type: mysql maps them to
	// datetime(3), and sqlite only scans bare datetime declarations.
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
	PaidAt    *time.Time
}

func (Order) TableName() string { return "orders" }

// OrderAttribute is the per-order service attribute bag (intent refs,
// transaction ids). Keys are flat strings like STRIPEINTENTREF.
type OrderAttribute struct {
	ID      string `gorm:"type:char(36);primaryKey"`
	OrderID string `gorm:"type:char(36);not null;uniqueIndex:ux_order_attributes_order_key,priority:1"`
	AttrKey string `gorm:"type:varchar(64);not null;uniqueIndex:ux_order_attributes_order_key,priority:2"`
	Value   string `gorm:"type:varchar(255);not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (OrderAttribute) TableName() string { return "order_attributes" }
