package external

import (
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// NewStripeClient returns a Stripe API client bound to the given secret key.
// Retries on network errors are left to the library default.
func NewStripeClient(key string) *client.API {
	sc := &client.API{}
	sc.Init(key, nil)
	return sc
}

// NewStripeClientWithBackends is used in tests and local development to point the client to stripe-mock
func NewStripeClientWithBackends(key string, url string) *client.API {
	config := &stripe.BackendConfig{
		URL: stripe.String(url),
	}
	sc := &client.API{}
	sc.Init(key, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, config),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, config),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, config),
	})
	return sc
}
