package bambora

import (
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/respa-payments/internal/payment"
)

// DefaultAPIURL is the production Payform API root.
const DefaultAPIURL = "https://payform.bambora.com/pbwapi"

// Names of the configuration keys, as seen in the environment.
const (
	KeyAPIKey         = "RESPA_PAYMENTS_BAMBORA_API_KEY"
	KeyAPISecret      = "RESPA_PAYMENTS_BAMBORA_API_SECRET"
	KeyPaymentMethods = "RESPA_PAYMENTS_BAMBORA_PAYMENT_METHODS"
)

// Config holds the Payform merchant credentials and endpoints.
type Config struct {
	APIKey         string        `env:"API_KEY" usage:"Payform merchant API key"`
	APISecret      string        `env:"API_SECRET" usage:"Payform merchant secret used for authcodes"`
	PaymentMethods []string      `env:"PAYMENT_METHODS" usage:"Enabled payment method identifiers"`
	APIURL         string        `env:"API_URL" default:"https://payform.bambora.com/pbwapi" usage:"Payform API root"`
	Timeout        time.Duration `env:"TIMEOUT" default:"10s" usage:"Timeout for payment creation requests"`
	PublicURL      string        `env:"PUBLIC_URL" usage:"Externally reachable base URL of this service for callbacks"`
}

// RequiredConfig lists the configuration keys the provider cannot run without.
func RequiredConfig() []payment.ConfigKey {
	return []payment.ConfigKey{
		{Name: KeyAPIKey, Type: "string"},
		{Name: KeyAPISecret, Type: "string"},
		{Name: KeyPaymentMethods, Type: "list"},
	}
}

// Validate reports the first missing required value.
func (c *Config) Validate() error {
	present := map[string]bool{
		KeyAPIKey:         c.APIKey != "",
		KeyAPISecret:      c.APISecret != "",
		KeyPaymentMethods: len(c.PaymentMethods) > 0,
	}
	for _, k := range RequiredConfig() {
		if !present[k.Name] {
			return errors.Errorf("payment provider misconfigured: %s is required", k.Name)
		}
	}
	if c.PublicURL == "" {
		return errors.New("payment provider misconfigured: public URL is required for callbacks")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}
