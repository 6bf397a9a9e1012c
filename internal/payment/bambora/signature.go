package bambora

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Callback query parameters.
const (
	ParamReturnCode  = "RETURN_CODE"
	ParamOrderNumber = "ORDER_NUMBER"
	ParamSettled     = "SETTLED"
	ParamContactID   = "CONTACT_ID"
	ParamIncidentID  = "INCIDENT_ID"
	ParamAuthCode    = "AUTHCODE"
	// ParamReturnTarget carries the UI redirect target through the gateway.
	ParamReturnTarget = "RESPA_UI_RETURN_URL"
)

// signedParams are the callback parameters covered by AUTHCODE, in order.
var signedParams = []string{
	ParamReturnCode,
	ParamOrderNumber,
	ParamSettled,
	ParamContactID,
	ParamIncidentID,
}

// authCode returns the uppercase hex HMAC-SHA256 of data keyed by secret.
func authCode(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// callbackAuthData joins the present signed parameters with '|'.
func callbackAuthData(q url.Values) string {
	parts := make([]string, 0, len(signedParams))
	for _, name := range signedParams {
		if _, ok := q[name]; ok {
			parts = append(parts, q.Get(name))
		}
	}
	return strings.Join(parts, "|")
}

// VerifySignature reports whether q carries a valid AUTHCODE. The comparison
// is constant time and a missing AUTHCODE never verifies.
func (p *Provider) VerifySignature(q url.Values) bool {
	if _, ok := q[ParamAuthCode]; !ok {
		return false
	}
	want := authCode(p.cfg.APISecret, callbackAuthData(q))
	return hmac.Equal([]byte(q.Get(ParamAuthCode)), []byte(want))
}

// SignCallback returns q with a valid AUTHCODE for secret. It is meant for
// tests and tools that simulate the gateway.
func SignCallback(secret string, q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set(ParamAuthCode, authCode(secret, callbackAuthData(out)))
	return out
}
