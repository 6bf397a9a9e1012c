package handler

import (
	"time"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/domain/product"
)

type lineRequest struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=10000"`
}

type createOrderRequest struct {
	Reservation string        `json:"reservation" validate:"required"`
	OrderLines  []lineRequest `json:"order_lines" validate:"dive"`
	ReturnURL   string        `json:"return_url" validate:"required,url"`
}

type checkPriceRequest struct {
	OrderLines []lineRequest `json:"order_lines" validate:"dive"`
	Begin      time.Time     `json:"begin" validate:"required"`
	End        time.Time     `json:"end" validate:"required"`
}

type productResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	PretaxPrice   string `json:"pretax_price"`
	TaxPercentage string `json:"tax_percentage"`
	PriceType     string `json:"price_type"`
}

type lineResponse struct {
	Product   productResponse `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice string          `json:"unit_price"`
	Price     string          `json:"price"`
}

type orderResponse struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Reservation string         `json:"reservation"`
	OrderLines  []lineResponse `json:"order_lines"`
	Price       string         `json:"price"`
	Currency    string         `json:"currency"`
	CreatedAt   time.Time      `json:"created_at"`
	PaymentURL  string         `json:"payment_url,omitempty"`
}

type checkPriceResponse struct {
	OrderLines []lineResponse `json:"order_lines"`
	Price      string         `json:"price"`
	Currency   string         `json:"currency"`
	Begin      time.Time      `json:"begin"`
	End        time.Time      `json:"end"`
}

func (req createOrderRequest) toDomain() order.CreateOrderRequest {
	return order.CreateOrderRequest{
		ReservationID: req.Reservation,
		Lines:         toLineRequests(req.OrderLines),
	}
}

func (req checkPriceRequest) toDomain() order.CheckPriceRequest {
	return order.CheckPriceRequest{
		Lines: toLineRequests(req.OrderLines),
		Begin: req.Begin,
		End:   req.End,
	}
}

func toLineRequests(in []lineRequest) []order.LineRequest {
	out := make([]order.LineRequest, len(in))
	for i, l := range in {
		out[i] = order.LineRequest{ProductID: l.Product, Quantity: l.Quantity}
	}
	return out
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Type:          string(p.Type),
		Name:          p.Name,
		PretaxPrice:   p.PretaxPrice.StringFixed(2),
		TaxPercentage: p.TaxPercentage.StringFixed(2),
		PriceType:     string(p.PriceType),
	}
}

// toLineResponses prices the lines of o. Prices are formatted with two
// decimals the same way for stored and transient orders.
func toLineResponses(o *order.Order) []lineResponse {
	out := make([]lineResponse, len(o.Lines))
	for i := range o.Lines {
		l := &o.Lines[i]
		out[i] = lineResponse{
			Product:   toProductResponse(&l.Product),
			Quantity:  l.Quantity,
			UnitPrice: o.UnitPrice(l).StringFixed(2),
			Price:     o.LinePrice(l).StringFixed(2),
		}
	}
	return out
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:          o.OrderNumber,
		Status:      string(o.Status),
		Reservation: o.ReservationID,
		OrderLines:  toLineResponses(o),
		Price:       o.Price().StringFixed(2),
		Currency:    product.Currency,
		CreatedAt:   o.CreatedAt,
	}
}

func toCheckPriceResponse(o *order.Order, req checkPriceRequest) checkPriceResponse {
	return checkPriceResponse{
		OrderLines: toLineResponses(o),
		Price:      o.Price().StringFixed(2),
		Currency:   product.Currency,
		Begin:      req.Begin,
		End:        req.End,
	}
}
