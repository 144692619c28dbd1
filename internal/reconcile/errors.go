package reconcile

import (
	"errors"
	"fmt"
)

// Kind names the precondition a reconciliation failed on
type Kind string

const (
	KindOrderNotExists           Kind = "order_not_exists"
	KindMultipleInvoices         Kind = "multiple_invoices"
	KindDuplicateOrder           Kind = "duplicate_order"
	KindInvoiceMayNotBeCancelled Kind = "invoice_may_not_be_cancelled"
	KindAccountMoveNotExists     Kind = "account_move_not_exists"
	KindAccountMoveLineNotExists Kind = "account_move_line_not_exists"
)

var (
	ErrOrderNotExists           = errors.New("order does not exist")
	ErrMultipleInvoices         = errors.New("order has multiple invoices")
	ErrDuplicateOrder           = errors.New("duplicate order")
	ErrInvoiceMayNotBeCancelled = errors.New("invoice may not be cancelled")
	ErrAccountMoveNotExists     = errors.New("account move does not exist")
	ErrAccountMoveLineNotExists = errors.New("account move line does not exist")
)

var sentinels = map[Kind]error{
	KindOrderNotExists:           ErrOrderNotExists,
	KindMultipleInvoices:         ErrMultipleInvoices,
	KindDuplicateOrder:           ErrDuplicateOrder,
	KindInvoiceMayNotBeCancelled: ErrInvoiceMayNotBeCancelled,
	KindAccountMoveNotExists:     ErrAccountMoveNotExists,
	KindAccountMoveLineNotExists: ErrAccountMoveLineNotExists,
}

// Error is a reconciliation failure of one remote order
type Error struct {
	Kind    Kind
	OrderID int64 // remote sale.order id
	Detail  string
}

func newError(kind Kind, orderID int64, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, OrderID: orderID, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sale.order %d: %s", e.OrderID, sentinels[e.Kind])
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}
