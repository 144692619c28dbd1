package odoo

import (
	"errors"
	"strings"

	"github.com/kolo/xmlrpc"
)

// lockedOrderMessage is the English text Odoo raises when a sale order line is
// written while its order is locked. Matching depends on the server locale;
// swap for a fault code here if Odoo ever exposes one.
const lockedOrderMessage = "It is forbidden to modify the following fields in a locked order"

var errFalseResult = errors.New("operation returned false")

// RPCError wraps every failed round trip to Odoo, transport errors and faults alike
type RPCError struct {
	Model  string
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return e.Model + "." + e.Method + ": " + e.Err.Error()
}

func (e *RPCError) Unwrap() error { return e.Err }

// IsRemote reports whether err originated on the Odoo side of the boundary
func IsRemote(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return true
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return true
	}
	var faultPtr *xmlrpc.FaultError
	return errors.As(err, &faultPtr)
}

// Fault builds a plain XML-RPC fault; used by fakes
func Fault(message string) error {
	return xmlrpc.FaultError{Code: 1, String: message}
}

// FaultString extracts the XML-RPC fault text, or the plain error text
func FaultString(err error) string {
	if err == nil {
		return ""
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return fault.String
	}
	var faultPtr *xmlrpc.FaultError
	if errors.As(err, &faultPtr) && faultPtr != nil {
		return faultPtr.String
	}
	return err.Error()
}

// IsLockedOrderFault reports whether err is Odoo refusing a write on a locked order
func IsLockedOrderFault(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(FaultString(err), lockedOrderMessage)
}

// LockedOrderFault builds the fault Odoo returns for a locked order write; used by fakes
func LockedOrderFault(fields ...string) error {
	return xmlrpc.FaultError{
		Code:   1,
		String: lockedOrderMessage + ": " + strings.Join(fields, ", "),
	}
}
