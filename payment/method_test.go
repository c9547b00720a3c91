package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/myupstage/visitationbook-backend/external"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const cardJSON = `{"id":"%s","object":"payment_method","type":"card","customer":"%s",` +
	`"card":{"brand":"%s","last4":"%s","exp_month":%d,"exp_year":%d}}`

type fakeStripe struct {
	mu       sync.Mutex
	detached []string
}

func (f *fakeStripe) router() http.Handler {
	cards := map[string]string{
		"pm_1":     fmt.Sprintf(cardJSON, "pm_1", "cus_1", "visa", "4242", 4, 2030),
		"pm_2":     fmt.Sprintf(cardJSON, "pm_2", "cus_1", "mastercard", "4444", 12, 2031),
		"pm_other": fmt.Sprintf(cardJSON, "pm_other", "cus_2", "amex", "0005", 1, 2029),
	}
	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
	missing := func(w http.ResponseWriter) {
		write(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such PaymentMethod"}}`)
	}

	r := chi.NewRouter()
	r.Get("/v1/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, fmt.Sprintf(`{"id":"%s","object":"customer","invoice_settings":{"default_payment_method":"pm_2"}}`, chi.URLParam(r, "id")))
	})
	r.Get("/v1/payment_methods", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("customer") != "cus_1" {
			write(w, http.StatusOK, `{"object":"list","data":[],"has_more":false,"url":"/v1/payment_methods"}`)
			return
		}
		write(w, http.StatusOK, fmt.Sprintf(`{"object":"list","data":[%s,%s],"has_more":false,"url":"/v1/payment_methods"}`, cards["pm_1"], cards["pm_2"]))
	})
	r.Get("/v1/payment_methods/{id}", func(w http.ResponseWriter, r *http.Request) {
		card, ok := cards[chi.URLParam(r, "id")]
		if !ok {
			missing(w)
			return
		}
		write(w, http.StatusOK, card)
	})
	r.Post("/v1/payment_methods/{id}/detach", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		card, ok := cards[id]
		if !ok {
			missing(w)
			return
		}
		f.mu.Lock()
		f.detached = append(f.detached, id)
		f.mu.Unlock()
		write(w, http.StatusOK, card)
	})
	return r
}

func newMethodManager(t *testing.T) (*Manager, *fakeStripe) {
	fake := &fakeStripe{}
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)
	return &Manager{ManagerOptions{
		StripeClient: external.NewStripeClientWithBackends("sk_test_123", srv.URL),
		Logger:       zap.NewNop(),
	}}, fake
}

func TestListMethods(t *testing.T) {
	m, _ := newMethodManager(t)

	methods, err := m.ListMethods(context.Background(), "cus_1")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, Method{ID: "pm_1", Brand: "visa", Last4: "4242", ExpMonth: 4, ExpYear: 2030}, methods[0])
	assert.Equal(t, Method{ID: "pm_2", Brand: "mastercard", Last4: "4444", ExpMonth: 12, ExpYear: 2031, Default: true}, methods[1])

	empty, err := m.ListMethods(context.Background(), "cus_3")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = m.ListMethods(context.Background(), "")
	assert.Error(t, err)
}

func TestDetachMethod(t *testing.T) {
	m, fake := newMethodManager(t)
	ctx := context.Background()

	require.NoError(t, m.DetachMethod(ctx, "cus_1", "pm_1"))
	assert.ErrorIs(t, m.DetachMethod(ctx, "cus_1", "pm_other"), ErrMethodNotFound)
	assert.ErrorIs(t, m.DetachMethod(ctx, "cus_1", "pm_gone"), ErrMethodNotFound)

	assert.Equal(t, []string{"pm_1"}, fake.detached)
}
