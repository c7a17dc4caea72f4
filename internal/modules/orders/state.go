package orders

type PaymentState string

const (
	StatePending    PaymentState = "pending"
	StateAuthorized PaymentState = "authorized"
	StateReceived   PaymentState = "received"
	StateRefused    PaymentState = "refused"
	StateCanceled   PaymentState = "canceled"
)

func (s PaymentState) String() string { return string(s) }

func (s PaymentState) Valid() bool {
	switch s {
	case StatePending, StateAuthorized, StateReceived, StateRefused, StateCanceled:
		return true
	}
	return false
}

// Terminal states never revert automatically.
func (s PaymentState) Terminal() bool {
	return s == StateReceived || s == StateRefused || s == StateCanceled
}

// progress orders the non-terminal ladder: pending < authorized < received.
var progress = map[PaymentState]int{
	StatePending:    0,
	StateAuthorized: 1,
	StateReceived:   2,
}

// CanAdvance reports whether from -> to is a forward transition. A
// terminal state admits nothing; authorized may still upgrade to received
// or drop to refused/canceled via reconciliation.
func CanAdvance(from, to PaymentState) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == StateRefused || to == StateCanceled {
		return true
	}
	return progress[to] > progress[from]
}
