package ledger

import "errors"

// Error is a rejected operation. Code is stable on the wire.
type Error struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Msg
}

var (
	ErrUnauthorized   = &Error{Code: 6000, Name: "Unauthorized", Msg: "Unauthorized access"}
	ErrNotReady       = &Error{Code: 6001, Name: "NotReady", Msg: "Machine not ready"}
	ErrNotStarted     = &Error{Code: 6002, Name: "NotStarted", Msg: "Sale not commenced"}
	ErrNotEnoughFunds = &Error{Code: 6003, Name: "NotEnoughFunds", Msg: "Not enough funds"}
	ErrShortSupply    = &Error{Code: 6004, Name: "ShortSupply", Msg: "Not enough supply to fulfill purchase"}
	ErrNoTickets      = &Error{Code: 6005, Name: "NoTickets", Msg: "Allocation tickets have sold out"}
	ErrArithmetic     = &Error{Code: 6006, Name: "Arithmetic", Msg: "Arithmetic overflow or underflow"}
)

var allErrors = []*Error{
	ErrUnauthorized,
	ErrNotReady,
	ErrNotStarted,
	ErrNotEnoughFunds,
	ErrShortSupply,
	ErrNoTickets,
	ErrArithmetic,
}

// ErrorByCode returns the sentinel for code, nil if unknown.
func ErrorByCode(code int) *Error {
	for _, e := range allErrors {
		if e.Code == code {
			return e
		}
	}
	return nil
}

// CodeOf returns the ledger code carried by err, 0 when err is not a ledger rejection.
func CodeOf(err error) int {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return 0
}
