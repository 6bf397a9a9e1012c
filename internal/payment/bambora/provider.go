// Package bambora integrates the Bambora Payform e-payment gateway.
package bambora

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/payment"
)

const (
	instrumentationName = "github.com/xenking/respa-payments/internal/payment/bambora"
	authPaymentPath     = "/auth_payment"
	maxResponseBytes    = 1 << 20
)

var _ payment.Provider = (*Provider)(nil)

// Provider is the Payform implementation of payment.Provider.
type Provider struct {
	cfg       Config
	orders    payment.Transitioner
	client    *http.Client
	dedup     payment.Deduper
	tracer    trace.Tracer
	callbacks metric.Int64Counter

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Provider.
type Option func(p *Provider)

// WithHTTPClient replaces the outbound HTTP client. The configured timeout
// is not applied to a custom client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithDeduper enables short-circuiting of repeated notify deliveries.
func WithDeduper(d payment.Deduper) Option {
	return func(p *Provider) {
		p.dedup = d
	}
}

// WithTracerProvider sets the tracer provider for outbound calls.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Provider) {
		p.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider for callback counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Provider) {
		p.meterProvider = mp
	}
}

// New validates cfg and returns a Provider that drives order transitions
// through orders.
func New(cfg Config, orders payment.Transitioner, opts ...Option) (*Provider, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:            cfg,
		orders:         orders,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(p)
	}

	p.tracer = p.tracerProvider.Tracer(instrumentationName)
	if p.client == nil {
		p.client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(p.tracerProvider),
				otelhttp.WithMeterProvider(p.meterProvider),
			),
		}
	}

	callbacks, err := p.meterProvider.Meter(instrumentationName).Int64Counter(
		"payment.callbacks",
		metric.WithDescription("Gateway callbacks by channel and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create callbacks counter")
	}
	p.callbacks = callbacks

	return p, nil
}

// RequiredConfig lists the configuration keys the provider cannot run without.
func (p *Provider) RequiredConfig() []payment.ConfigKey {
	return RequiredConfig()
}

// InitiatePayment registers o with Payform and returns the payment page URL.
// The request is sent once; failures are never retried here.
func (p *Provider) InitiatePayment(ctx context.Context, o *order.Order, returnTarget string) (_ string, rerr error) {
	ctx, span := p.tracer.Start(ctx, "bambora.InitiatePayment",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("order.number", o.OrderNumber)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if returnTarget == "" {
		return "", payment.ErrMissingReturnTarget
	}
	body, err := p.encodePayload(o, returnTarget)
	if err != nil {
		return "", errors.Wrap(err, "build payload")
	}

	endpoint := strings.TrimRight(p.cfg.APIURL, "/") + authPaymentPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", payment.ErrGatewayUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", payment.ErrGatewayUnreachable, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", payment.ErrGatewayUnreachable, err)
	}

	return p.handleAuthResponse(ctx, o.OrderNumber, data)
}

func (p *Provider) handleAuthResponse(ctx context.Context, number string, data []byte) (string, error) {
	lg := zctx.From(ctx).With(zap.String("order_number", number))

	r, err := decodeAuthResponse(data)
	if err != nil {
		lg.Error("Undecodable payment gateway response", zap.Error(err))
		return "", fmt.Errorf("%w: %w", payment.ErrUnrecognizedResponse, err)
	}

	switch r.Result {
	case resultOK:
		if r.Token == "" {
			lg.Error("Payment gateway returned no token")
			return "", fmt.Errorf("%w: empty token", payment.ErrUnrecognizedResponse)
		}
		return p.tokenURL(r.Token), nil
	case resultInvalid:
		lg.Error("Payment payload rejected", zap.Strings("errors", r.Errors))
		return "", &payment.PayloadRejectedError{Errors: r.Errors}
	case resultDuplicate:
		lg.Error("Payment gateway reports duplicate order number")
		return "", payment.ErrDuplicateOrder
	case resultMaintenance:
		lg.Warn("Payment gateway in maintenance")
		return "", payment.ErrGatewayMaintenance
	default:
		lg.Error("Unrecognized payment gateway result", zap.Int("result", r.Result))
		return "", &payment.UnrecognizedResponseError{Code: r.Result}
	}
}
