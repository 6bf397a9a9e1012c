package payment

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrGatewayUnreachable means the gateway could not be reached or answered
	// with a transport level failure.
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	// ErrPayloadRejected means the gateway refused the payment payload.
	ErrPayloadRejected = errors.New("payment payload rejected")
	// ErrDuplicateOrder means the gateway already knows the order number.
	ErrDuplicateOrder = errors.New("order already registered at payment gateway")
	// ErrGatewayMaintenance means the gateway is down for maintenance.
	ErrGatewayMaintenance = errors.New("payment gateway in maintenance")
	// ErrUnrecognizedResponse means the gateway answered with an unknown result.
	ErrUnrecognizedResponse = errors.New("unrecognized payment gateway response")
	// ErrMissingReturnTarget means the return callback carries no UI target.
	ErrMissingReturnTarget = errors.New("return target missing")
)

// PayloadRejectedError carries the validation messages returned by the gateway.
type PayloadRejectedError struct {
	Errors []string
}

func (e *PayloadRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPayloadRejected, strings.Join(e.Errors, " "))
}

func (e *PayloadRejectedError) Is(target error) bool {
	return target == ErrPayloadRejected
}

// UnrecognizedResponseError carries the unknown result code.
type UnrecognizedResponseError struct {
	Code int
}

func (e *UnrecognizedResponseError) Error() string {
	return fmt.Sprintf("%s: result %d", ErrUnrecognizedResponse, e.Code)
}

func (e *UnrecognizedResponseError) Is(target error) bool {
	return target == ErrUnrecognizedResponse
}

// Kind classifies payment errors for the transport layer.
type Kind int

const (
	// KindInternal is any error not produced by the gateway integration.
	KindInternal Kind = iota
	// KindUnavailable means the gateway is temporarily not usable.
	KindUnavailable
	// KindBadGateway means the gateway refused or misunderstood the request.
	KindBadGateway
	// KindInvalidRequest means the caller supplied incomplete input.
	KindInvalidRequest
)

// KindOf returns the Kind of err.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrGatewayUnreachable), errors.Is(err, ErrGatewayMaintenance):
		return KindUnavailable
	case errors.Is(err, ErrPayloadRejected),
		errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrUnrecognizedResponse):
		return KindBadGateway
	case errors.Is(err, ErrMissingReturnTarget):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}
