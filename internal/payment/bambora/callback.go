package bambora

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/payment"
)

// Callback RETURN_CODE values.
const (
	returnCodeSuccess       = "0"
	returnCodeFailure       = "1"
	returnCodeIndeterminate = "4"
	returnCodeMaintenance   = "10"
)

const (
	channelReturn = "return"
	channelNotify = "notify"
)

// HandleReturn processes the user's browser coming back from the payment
// page and decides where to redirect them.
func (p *Provider) HandleReturn(ctx context.Context, q url.Values) (payment.ReturnDecision, error) {
	lg := zctx.From(ctx).With(
		zap.String("channel", channelReturn),
		zap.String("order_number", q.Get(ParamOrderNumber)),
	)

	target := q.Get(ParamReturnTarget)
	if target == "" {
		lg.Warn("Return target missing")
		p.count(ctx, channelReturn, "missing_target")
		return payment.ReturnDecision{}, payment.ErrMissingReturnTarget
	}
	failure := payment.ReturnDecision{RedirectURL: payment.UIRedirect(target, false)}

	if !p.VerifySignature(q) {
		lg.Warn("Invalid callback signature")
		p.count(ctx, channelReturn, "invalid_signature")
		return failure, nil
	}

	number := q.Get(ParamOrderNumber)
	switch code := q.Get(ParamReturnCode); code {
	case returnCodeSuccess:
		if p.transition(ctx, channelReturn, number, order.StatusConfirmed) {
			return payment.ReturnDecision{RedirectURL: payment.UIRedirect(target, true)}, nil
		}
		return failure, nil
	case returnCodeFailure:
		p.transition(ctx, channelReturn, number, order.StatusRejected)
		return failure, nil
	case returnCodeIndeterminate:
		lg.Warn("Payment status could not be updated by gateway")
		p.count(ctx, channelReturn, "indeterminate")
		return failure, nil
	case returnCodeMaintenance:
		lg.Warn("Payment gateway in maintenance during return")
		p.count(ctx, channelReturn, "maintenance")
		return failure, nil
	default:
		lg.Warn("Unknown return code", zap.String("return_code", code))
		p.count(ctx, channelReturn, "unknown_code")
		return failure, nil
	}
}

// HandleNotify processes the server-to-server notification. It always
// acknowledges so the gateway stops redelivering.
func (p *Provider) HandleNotify(ctx context.Context, q url.Values) payment.Ack {
	ack := payment.Ack{Status: http.StatusNoContent}
	lg := zctx.From(ctx).With(
		zap.String("channel", channelNotify),
		zap.String("order_number", q.Get(ParamOrderNumber)),
	)

	if !p.VerifySignature(q) {
		lg.Warn("Invalid callback signature")
		p.count(ctx, channelNotify, "invalid_signature")
		return ack
	}

	number := q.Get(ParamOrderNumber)
	var target order.Status
	switch code := q.Get(ParamReturnCode); code {
	case returnCodeSuccess:
		target = order.StatusConfirmed
	case returnCodeFailure:
		target = order.StatusRejected
	default:
		lg.Debug("Notify with unhandled return code", zap.String("return_code", code))
		p.count(ctx, channelNotify, "unknown_code")
		return ack
	}

	key := "notify:" + number + ":" + string(target)
	if p.dedup != nil {
		first, err := p.dedup.Claim(ctx, key)
		switch {
		case err != nil:
			lg.Warn("Notify dedup unavailable", zap.Error(err))
		case !first:
			lg.Debug("Duplicate notify skipped")
			p.count(ctx, channelNotify, "duplicate")
			return ack
		}
	}

	if !p.transition(ctx, channelNotify, number, target) && p.dedup != nil {
		if err := p.dedup.Release(ctx, key); err != nil {
			lg.Warn("Release notify dedup key", zap.Error(err))
		}
	}
	return ack
}

// transition applies target and reports whether the order ended up in it.
func (p *Provider) transition(ctx context.Context, channel, number string, target order.Status) bool {
	lg := zctx.From(ctx).With(
		zap.String("channel", channel),
		zap.String("order_number", number),
	)

	outcome, err := p.orders.Transition(ctx, number, target)
	switch {
	case errors.Is(err, order.ErrNotFound):
		lg.Info("Callback for unknown order")
		p.count(ctx, channel, "not_found")
		return false
	case err != nil:
		lg.Error("Apply callback transition", zap.Error(err))
		p.count(ctx, channel, "error")
		return false
	}

	p.count(ctx, channel, outcome.String())
	return outcome != order.Illegal
}

func (p *Provider) count(ctx context.Context, channel, outcome string) {
	p.callbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}
