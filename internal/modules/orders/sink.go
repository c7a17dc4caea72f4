package orders

import "context"

// Sink is the persistence boundary payment adapters write through. They
// never touch order storage directly.
type Sink interface {
	// SetPaymentState applies a forward-only transition. Same-state calls
	// are no-ops; backward transitions return ErrStateRegression.
	SetPaymentState(ctx context.Context, orderID string, state PaymentState) error

	// SetAttribute upserts a key in the order's service attribute bag.
	SetAttribute(ctx context.Context, orderID, key, value string) error

	// GetAttribute returns "" without error when the key is absent.
	GetAttribute(ctx context.Context, orderID, key string) (string, error)
}
