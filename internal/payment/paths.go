package payment

// Callback endpoints exposed to gateways, relative to the public service URL.
const (
	ReturnPath = "/v1/payments/return"
	NotifyPath = "/v1/payments/notify"
)
