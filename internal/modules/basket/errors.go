package basket

import "fmt"

// InvalidBasketError aborts a payment attempt before any gateway call.
type InvalidBasketError struct {
	ProductCode string
	Reason      string
}

func (e *InvalidBasketError) Error() string {
	if e.ProductCode != "" {
		return fmt.Sprintf("invalid basket: %s: %s", e.ProductCode, e.Reason)
	}
	return "invalid basket: " + e.Reason
}
