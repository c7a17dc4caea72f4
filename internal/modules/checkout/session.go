package checkout

import "time"

type SessionState string

const (
	StateFormPending    SessionState = "form_pending"
	StateTokenCollected SessionState = "token_collected"
	StateConfirmed      SessionState = "confirmed"
	StateRefused        SessionState = "refused"
)

func (s SessionState) Terminal() bool {
	return s == StateConfirmed || s == StateRefused
}

func (s SessionState) String() string { return string(s) }

// Session tracks one order/gateway payment handshake: render form, collect
// the client token, confirm with the gateway. One row per order+gateway.
type Session struct {
	ID      string `gorm:"type:char(36);primaryKey"`
	OrderID string `gorm:"type:char(36);not null;uniqueIndex:ux_checkout_sessions_order_gateway,priority:1"`
	Gateway string `gorm:"type:varchar(64);not null;uniqueIndex:ux_checkout_sessions_order_gateway,priority:2"`

	State       SessionState `gorm:"type:varchar(32);not null"`
	ClientToken *string      `gorm:"type:varchar(255)"`
	IntentRef   *string      `gorm:"type:varchar(128)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "checkout_sessions" }

// canMove encodes the handshake: form_pending -> token_collected ->
// confirmed|refused. Re-collecting a token (client resubmit) is allowed;
// terminal states admit nothing.
func canMove(from, to SessionState) bool {
	switch from {
	case StateFormPending:
		return to == StateTokenCollected
	case StateTokenCollected:
		return to == StateTokenCollected || to == StateConfirmed || to == StateRefused
	}
	return false
}
