package loyalty

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindTransient
	KindConfiguration
	KindInvariant
)

// Reason is the structured failure reason attached to validation errors so
// callers can branch without parsing messages.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNotFound            Reason = "not_found"
	ReasonExpired             Reason = "expired"
	ReasonExhausted           Reason = "exhausted"
	ReasonWrongPricelist      Reason = "wrong_pricelist"
	ReasonWrongCustomer       Reason = "wrong_customer"
	ReasonNotStarted          Reason = "not_started"
	ReasonProgramExpired      Reason = "program_expired"
	ReasonAlreadyActivated    Reason = "already_activated"
	ReasonMinAmount           Reason = "min_amount"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonBusy                Reason = "busy"
	ReasonEmptyOrder          Reason = "empty_order"
	ReasonDoubleDiscount      Reason = "double_discount"
	ReasonOrderFinalized      Reason = "order_finalized"
)

type Error struct {
	Kind     ErrorKind
	Reason   Reason
	Message  string
	Products []string
	Err      error
}

func (e *Error) Error() string {
	if len(e.Products) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Products, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationErr(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func transientErr(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewTransientError wraps a network or timeout failure. The redemption
// controller reacts to transient errors by falling back to offline
// validation instead of rejecting the code.
func NewTransientError(err error, format string, args ...interface{}) error {
	return transientErr(err, format, args...)
}

func configErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func invariantErr(reason Reason, products []string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariant, Reason: reason, Message: fmt.Sprintf(format, args...), Products: products}
}

func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

func IsConfiguration(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConfiguration
}

func IsInvariant(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvariant
}

// ReasonOf returns the structured reason carried by err, or ReasonNone.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}
