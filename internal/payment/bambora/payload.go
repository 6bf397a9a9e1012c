package bambora

import (
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/respa-payments/internal/domain/order"
	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/payment"
)

const (
	payloadVersion = "w3.1"
	methodType     = "e-payment"
	// productLineType marks a line as a regular product.
	productLineType = 1
)

// encodePayload writes the auth_payment request body for o.
func (p *Provider) encodePayload(o *order.Order, returnTarget string) ([]byte, error) {
	type line struct {
		sku, title    string
		price, pretax int64
		tax           int64
		count         int
	}
	lines := make([]line, len(o.Lines))
	for i := range o.Lines {
		l := &o.Lines[i]
		tax, err := l.Product.WholeTax()
		if err != nil {
			return nil, err
		}
		lines[i] = line{
			sku:    l.Product.SKU,
			title:  l.Product.Name,
			price:  product.SubUnits(o.UnitPrice(l)),
			pretax: product.SubUnits(o.UnitPretaxPrice(l)),
			tax:    tax,
			count:  l.Quantity,
		}
	}
	if o.Reservation == nil {
		return nil, errors.Errorf("order %s has no reservation", o.OrderNumber)
	}
	r := o.Reservation

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("version")
	e.Str(payloadVersion)
	e.FieldStart("api_key")
	e.Str(p.cfg.APIKey)

	e.FieldStart("payment_method")
	e.ObjStart()
	e.FieldStart("type")
	e.Str(methodType)
	e.FieldStart("return_url")
	e.Str(p.returnURL(returnTarget))
	e.FieldStart("notify_url")
	e.Str(p.notifyURL())
	e.FieldStart("selected")
	e.ArrStart()
	for _, m := range p.cfg.PaymentMethods {
		e.Str(m)
	}
	e.ArrEnd()
	e.ObjEnd()

	e.FieldStart("currency")
	e.Str(product.Currency)
	e.FieldStart("order_number")
	e.Str(o.OrderNumber)
	e.FieldStart("amount")
	e.Int64(product.SubUnits(o.Price()))

	e.FieldStart("products")
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.sku)
		e.FieldStart("title")
		e.Str(l.title)
		e.FieldStart("price")
		e.Int64(l.price)
		e.FieldStart("pretax_price")
		e.Int64(l.pretax)
		e.FieldStart("tax")
		e.Int64(l.tax)
		e.FieldStart("count")
		e.Int(l.count)
		e.FieldStart("type")
		e.Int(productLineType)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("email")
	e.Str(r.ReserverEmail)
	e.FieldStart("customer")
	e.ObjStart()
	// Reservations keep the reserver's name in one field.
	e.FieldStart("firstname")
	e.Str(r.ReserverName)
	e.FieldStart("lastname")
	e.Str(r.ReserverName)
	e.FieldStart("email")
	e.Str(r.ReserverEmail)
	e.FieldStart("address_street")
	e.Str(r.BillingStreet)
	e.FieldStart("address_zip")
	e.Str(r.BillingZip)
	e.FieldStart("address_city")
	e.Str(r.BillingCity)
	e.ObjEnd()

	e.FieldStart("authcode")
	e.Str(authCode(p.cfg.APISecret, p.cfg.APIKey+"|"+o.OrderNumber))
	e.ObjEnd()

	return e.Bytes(), nil
}

func (p *Provider) returnURL(target string) string {
	q := url.Values{ParamReturnTarget: {target}}
	return strings.TrimRight(p.cfg.PublicURL, "/") + payment.ReturnPath + "?" + q.Encode()
}

func (p *Provider) notifyURL() string {
	return strings.TrimRight(p.cfg.PublicURL, "/") + payment.NotifyPath
}

func (p *Provider) tokenURL(token string) string {
	return strings.TrimRight(p.cfg.APIURL, "/") + "/token/" + url.PathEscape(token)
}

// Gateway result codes of auth_payment.
const (
	resultOK          = 0
	resultInvalid     = 1
	resultDuplicate   = 2
	resultMaintenance = 10
)

type authResponse struct {
	Result int
	Token  string
	Errors []string
}

func decodeAuthResponse(data []byte) (authResponse, error) {
	var (
		r         authResponse
		hasResult bool
	)
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "result":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "result")
			}
			r.Result = v
			hasResult = true
		case "token":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "token")
			}
			r.Token = v
		case "errors":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "errors")
				}
				r.Errors = append(r.Errors, v)
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	if !hasResult {
		return r, errors.New("result field missing")
	}
	return r, nil
}
