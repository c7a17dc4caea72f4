package payments

import (
	"time"

	"gorm.io/datatypes"
)

// Order attribute keys written through the status sink. The key names
// match what the shop's other integrations expect to find on the order.
const (
	AttrTransactionID   = "TRANSACTIONID"
	AttrStripeIntentRef = "STRIPEINTENTREF"
	AttrPayoneTxID      = "PAYONETXID"
)

// Customer caches a gateway-issued payment profile per platform user.
// Created at most once per user per gateway; gateway-side expiry is not
// the adapter's concern.
type Customer struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	Gateway     string `gorm:"type:varchar(64);not null;uniqueIndex:ux_payment_customers_gateway_user,priority:1"`
	UserID      string `gorm:"type:char(36);not null;uniqueIndex:ux_payment_customers_gateway_user,priority:2"`
	CustomerRef string `gorm:"type:varchar(128);not null"`

	CreatedAt time.Time `gorm:"not null"`
}

func (Customer) TableName() string { return "payment_customers" }

// ProviderEvent journals every accepted notification for dedupe:
// unique(gateway,event_id) makes redelivery a no-op.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Gateway     string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_gateway_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_gateway_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json"`

	ReceivedAt   time.Time `gorm:"not null"`
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }
