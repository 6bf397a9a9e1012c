// Package handler exposes the order API and the payment gateway callbacks
// over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/payment"
	"github.com/xenking/respa-payments/pkg/httpmiddleware"
)

// OrderService is the order use case layer consumed by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	CheckPrice(ctx context.Context, req order.CheckPriceRequest) (*order.Order, error)
	GetOrder(ctx context.Context, v order.Viewer, number string) (*order.Order, error)
	ListOrders(ctx context.Context, v order.Viewer) ([]*order.Order, error)
	Discard(ctx context.Context, number string) error
}

var _ OrderService = (*order.Service)(nil)

// Handler serves the order API and the payment callbacks.
type Handler struct {
	orders   OrderService
	provider payment.Provider
	auth     *Authenticator
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(orders OrderService, provider payment.Provider, auth *Authenticator) *Handler {
	return &Handler{
		orders:   orders,
		provider: provider,
		auth:     auth,
	}
}

// IsGatewayCallback reports whether r targets a payment gateway callback.
// Callbacks must always be answered, so they bypass client rate limits.
func IsGatewayCallback(r *http.Request) bool {
	return r.URL.Path == payment.ReturnPath || r.URL.Path == payment.NotifyPath
}

// Router returns a chi router with all routes registered. Request id,
// request-scoped logger and access logging run inside the router so the
// logged route is the matched chi pattern.
func (h *Handler) Router(lg *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
	)

	r.Route("/v1/orders", func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Post("/check_price", h.checkPrice)
		r.Get("/{order_number}", h.getOrder)
	})

	// Gateway callbacks are authenticated by the gateway signature.
	r.Get(payment.ReturnPath, h.paymentReturn)
	r.Get(payment.NotifyPath, h.paymentNotify)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
