package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/payment"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

// respondError maps domain and payment errors to HTTP responses. Anything
// unexpected is logged and reported as 500 without details.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErrs validator.ValidationErrors
		vErr  *order.ValidationError
	)
	switch {
	case errors.As(err, &vErrs):
		writeError(w, http.StatusBadRequest, validationMessage(vErrs))
		return
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
		return
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	switch payment.KindOf(err) {
	case payment.KindUnavailable:
		zctx.From(r.Context()).Warn("Payment gateway unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "payment gateway unavailable")
	case payment.KindBadGateway:
		zctx.From(r.Context()).Error("Payment gateway refused order", zap.Error(err))
		writeError(w, http.StatusBadGateway, "payment gateway refused the order")
	case payment.KindInvalidRequest:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
