package order

import (
	"errors"
	"fmt"
)

// Transition guard failures. The messages are part of the API contract and are
// returned verbatim in the "error" field of a 400 response.
var (
	ErrCannotBePaid      = errors.New("Order cannot be paid.")
	ErrCannotBeCancelled = errors.New("Order cannot be cancelled.")
	ErrCannotBeShipped   = errors.New("Order cannot be shipped.")
	ErrCannotBeDelivered = errors.New("Order cannot be delivered.")
	ErrCannotBeCompleted = errors.New("Order cannot be completed.")

	ErrInvalidMethod   = errors.New("Invalid or missing payment method.")
	ErrNoPayment       = errors.New("No payment record.")
	ErrPaymentNotReady = errors.New("Payment not successful.")

	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrForbidden       = errors.New("forbidden")

	errInvalidStatusValue = errors.New("Invalid status")
	errInvalidMethodValue = errors.New("Invalid method")
)

// InsufficientStockError aborts the whole checkout; no stock decremented for
// earlier lines survives the rollback.
type InsufficientStockError struct {
	Product   string
	Remaining uint
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for %s. Remaining: %d", e.Product, e.Remaining)
}

// DuplicatePaymentError is only reachable through the direct payment-creation
// path; the pay transition reuses the existing row instead.
type DuplicatePaymentError struct {
	OrderID uint
}

func (e *DuplicatePaymentError) Error() string {
	return "Payment already exists for this order."
}
