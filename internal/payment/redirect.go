package payment

import (
	"net/url"
	"strings"
)

// StatusParam is the query parameter the UI reads the payment outcome from.
const StatusParam = "payment_status"

// UI payment outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// UIRedirect returns target with the payment outcome appended to its query.
func UIRedirect(target string, success bool) string {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	u, err := url.Parse(target)
	if err != nil {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		return target + sep + StatusParam + "=" + status
	}
	q := u.Query()
	q.Set(StatusParam, status)
	u.RawQuery = q.Encode()
	return u.String()
}
