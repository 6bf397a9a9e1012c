package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/auth"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validate.Struct(v); err != nil {
		respondError(w, r, err)
		return false
	}
	return true
}

// createOrder persists a waiting order and registers it with the payment
// gateway. An order whose payment could not be started is discarded so the
// reservation can be paid for again.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	if !p.HasScope(auth.ScopeOrdersWrite) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createOrderRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	o, err := h.orders.CreateOrder(ctx, req.toDomain())
	if err != nil {
		respondError(w, r, err)
		return
	}

	paymentURL, err := h.provider.InitiatePayment(ctx, o, req.ReturnURL)
	if err != nil {
		if dErr := h.orders.Discard(ctx, o.OrderNumber); dErr != nil {
			zctx.From(ctx).Error("Discard order after failed payment initiation",
				zap.String("order_number", o.OrderNumber),
				zap.Error(dErr),
			)
		}
		respondError(w, r, errors.Wrap(err, "initiate payment"))
		return
	}

	resp := toOrderResponse(o)
	resp.PaymentURL = paymentURL
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) checkPrice(w http.ResponseWriter, r *http.Request) {
	var req checkPriceRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := h.orders.CheckPrice(r.Context(), req.toDomain())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckPriceResponse(o, req))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	orders, err := h.orders.ListOrders(r.Context(), p.Viewer)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	o, err := h.orders.GetOrder(r.Context(), p.Viewer, chi.URLParam(r, "order_number"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
