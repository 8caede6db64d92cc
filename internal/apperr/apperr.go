package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so the Lambda entry point can pick a response.
type Kind string

const (
	KindConfig       Kind = "CONFIG"
	KindConnectivity Kind = "CONNECTIVITY"
	KindData         Kind = "DATA"
	KindTransient    Kind = "TRANSIENT"
	KindDelivery     Kind = "DELIVERY"
	KindInternal     Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Config(msg string, cause error) *Error       { return New(KindConfig, msg, cause) }
func Connectivity(msg string, cause error) *Error { return New(KindConnectivity, msg, cause) }
func Data(msg string, cause error) *Error         { return New(KindData, msg, cause) }
func Transient(msg string, cause error) *Error    { return New(KindTransient, msg, cause) }
func Delivery(msg string, cause error) *Error     { return New(KindDelivery, msg, cause) }

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// HTTPStatus maps an error to the status code reported by HTTP-style responses.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindData:
		return http.StatusBadRequest
	case KindConnectivity, KindTransient:
		return http.StatusServiceUnavailable
	case KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
