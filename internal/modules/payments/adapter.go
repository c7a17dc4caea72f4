package payments

import (
	"context"
	"time"

	"github.com/xerc/ai-payments/internal/modules/basket"
	"github.com/xerc/ai-payments/internal/modules/orders"
)

// Params carries the inbound request fields handed to an adapter
// (form fields, gateway callback parameters).
type Params map[string]string

const ParamPaymentToken = "paymenttoken"

type FormField struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Default  string `json:"default,omitempty"`
	Required bool   `json:"required"`
	Public   bool   `json:"public"`
}

// FormDescriptor directs the caller to collect payment details
// out-of-band. Script holds client-side config values (publishable key,
// element selectors); the script content itself is a front-end concern.
type FormDescriptor struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields []FormField       `json:"fields"`
	Script map[string]string `json:"script,omitempty"`
}

type Confirmation struct {
	Success        bool                `json:"success"`
	State          orders.PaymentState `json:"state"`
	TransactionRef string              `json:"transaction_ref,omitempty"`
	IntentRef      string              `json:"intent_ref,omitempty"`
}

// Notification is a raw asynchronous server-to-server status update.
type Notification struct {
	Params Params
	Body   []byte
}

// StatusUpdate is what an adapter distills from a notification it
// recognizes.
type StatusUpdate struct {
	OrderID        string
	EventID        string
	EventType      string
	State          orders.PaymentState
	TransactionRef string
	OccurredAt     time.Time
}

// Adapter is the per-gateway payment integration contract.
type Adapter interface {
	Name() string

	// CheckConfig validates the gateway's backend configuration at
	// startup (required keys set by the shop owner).
	CheckConfig() error

	// Initiate returns a FormDescriptor when params lack a payment
	// token, otherwise proceeds straight to Confirm. Exactly one of the
	// two results is non-nil on success.
	Initiate(ctx context.Context, order orders.Order, snap basket.Snapshot, params Params) (*FormDescriptor, *Confirmation, error)

	// Confirm sends the assembled request to the gateway synchronously.
	// A gateway decline is an expected outcome: it returns a refused
	// Confirmation, not an error.
	Confirm(ctx context.Context, order orders.Order, snap basket.Snapshot, params Params) (*Confirmation, error)

	// ParseNotification extracts a status update from a raw
	// notification. (nil, nil) means the notification carries no usable
	// order reference and must be ignored (gateways retry on failure).
	ParseNotification(n Notification) (*StatusUpdate, error)

	// Ack is the literal acknowledgement the gateway expects for a
	// notification; reproducing it exactly stops the retry loop.
	Ack() (contentType, body string)
}
