package checkout

import (
	"errors"
	"fmt"
)

var ErrSessionNotFound = errors.New("checkout session not found")

type InvalidTransitionError struct {
	From SessionState
	To   SessionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition: %s -> %s", e.From, e.To)
}
