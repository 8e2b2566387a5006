package ordering

import (
	"fmt"

	"github.com/jogardn/bakery-orders/pkg/models"
)

// Advance reports whether moving an order from current to next changes it.
// Re-setting the current status is a no-op; anything other than the single
// forward step is an error.
func Advance(current, next models.OrderStatus) (bool, error) {
	if !next.Valid() {
		return false, fmt.Errorf("unknown order status %q", next)
	}
	if current == next {
		return false, nil
	}
	if !models.CanTransition(current, next) {
		return false, fmt.Errorf("cannot move order from %s to %s", current, next)
	}
	return true, nil
}
