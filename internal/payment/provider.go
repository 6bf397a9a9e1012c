// Package payment defines the contract between the order lifecycle and
// external payment gateways.
package payment

import (
	"context"
	"net/url"

	"github.com/xenking/respa-payments/internal/domain/order"
)

// ConfigKey names a configuration value a provider needs and the kind of
// value expected ("string" or "list").
type ConfigKey struct {
	Name string
	Type string
}

// ReturnDecision tells the HTTP layer where to send the user after the
// synchronous return callback.
type ReturnDecision struct {
	RedirectURL string
}

// Ack is the response for an asynchronous notify callback.
type Ack struct {
	Status int
}

// Provider is a payment gateway integration.
//
// InitiatePayment registers the order with the gateway and returns the URL
// the customer must visit to pay. HandleReturn and HandleNotify reconcile the
// gateway's callbacks into order transitions; both are safe to call any
// number of times for the same payment.
type Provider interface {
	// RequiredConfig lists the configuration keys the provider cannot run without.
	RequiredConfig() []ConfigKey
	InitiatePayment(ctx context.Context, o *order.Order, returnTarget string) (string, error)
	HandleReturn(ctx context.Context, q url.Values) (ReturnDecision, error)
	HandleNotify(ctx context.Context, q url.Values) Ack
	// VerifySignature reports whether the callback parameters carry a valid
	// gateway signature.
	VerifySignature(q url.Values) bool
}

// Transitioner moves orders between statuses. It is implemented by
// order.Service.
type Transitioner interface {
	Transition(ctx context.Context, number string, target order.Status) (order.Outcome, error)
}

// Deduper remembers callbacks that were already processed.
type Deduper interface {
	// Claim returns true when key was not seen before and is now reserved.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so the callback can be processed again.
	Release(ctx context.Context, key string) error
}
