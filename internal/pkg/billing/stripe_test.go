package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func newTestStripeProcessor(t *testing.T, handler http.HandlerFunc) *StripeProcessor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeProcessorWithBackends("sk_test_123", &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
}

func writeStripeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestStripeGetSubscription(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		writeStripeJSON(w, http.StatusOK, map[string]interface{}{
			"id":                   "sub_1",
			"object":               "subscription",
			"customer":             "cus_1",
			"status":               "past_due",
			"cancel_at_period_end": true,
			"current_period_end":   1774000000,
			"metadata":             map[string]string{"userId": "user-1"},
			"items": map[string]interface{}{
				"object": "list",
				"data": []map[string]interface{}{
					{"id": "si_1", "object": "subscription_item", "price": map[string]interface{}{"id": "price_pro_monthly", "object": "price"}},
				},
			},
		})
	})

	sub, err := p.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, Subscription{
		ID:                "sub_1",
		CustomerID:        "cus_1",
		Status:            "past_due",
		PriceID:           "price_pro_monthly",
		CurrentPeriodEnd:  1774000000,
		CancelAtPeriodEnd: true,
		Metadata:          map[string]string{"userId": "user-1"},
	}, *sub)
}

func TestStripeGetSubscriptionNotFound(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		writeStripeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "invalid_request_error",
				"code":    "resource_missing",
				"message": "No such subscription: 'sub_missing'",
			},
		})
	})

	_, err := p.GetSubscription(context.Background(), "sub_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStripeListSubscriptions(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "cus_1", q.Get("customer"))
		assert.Equal(t, "all", q.Get("status"))
		assert.Equal(t, "10", q.Get("limit"))
		writeStripeJSON(w, http.StatusOK, map[string]interface{}{
			"object":   "list",
			"url":      "/v1/subscriptions",
			"has_more": true,
			"data": []map[string]interface{}{
				{"id": "sub_a", "object": "subscription", "status": "canceled", "customer": "cus_1"},
				{"id": "sub_b", "object": "subscription", "status": "active", "customer": "cus_1"},
			},
		})
	})

	subs, err := p.ListSubscriptions(context.Background(), "cus_1", syncPageSize)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub_a", subs[0].ID)
	assert.Equal(t, "active", subs[1].Status)
}

func TestStripeUpdateSubscriptionMetadata(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[userId]"))
		writeStripeJSON(w, http.StatusOK, map[string]interface{}{"id": "sub_1", "object": "subscription"})
	})

	require.NoError(t, p.UpdateSubscriptionMetadata(context.Background(), "sub_1", map[string]string{MetadataUserIDKey: "user-1"}))
}

func TestStripeCreateCustomerSendsIdempotencyKey(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "customer-key", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[userId]"))
		assert.Equal(t, "ada@example.com", r.PostForm.Get("email"))
		writeStripeJSON(w, http.StatusOK, map[string]interface{}{"id": "cus_new", "object": "customer"})
	})

	id, err := p.CreateCustomer(context.Background(), CustomerRequest{UserID: "user-1", Email: "ada@example.com", IdempotencyKey: "customer-key"})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
}

func TestStripeGetInvoiceSubscriptionID(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invoices/in_1", r.URL.Path)
		writeStripeJSON(w, http.StatusOK, map[string]interface{}{"id": "in_1", "object": "invoice", "subscription": "sub_9"})
	})

	id, err := p.GetInvoiceSubscriptionID(context.Background(), "in_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_9", id)
}

func TestStripeCheckoutSession(t *testing.T) {
	p := newTestStripeProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "user-1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "price_pro_monthly", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "user-1", r.PostForm.Get("subscription_data[metadata][userId]"))
		writeStripeJSON(w, http.StatusOK, map[string]interface{}{
			"id": "cs_1", "object": "checkout.session", "url": "https://checkout.stripe.test/cs_1",
		})
	})

	session, err := p.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		UserID: "user-1", CustomerID: "cus_1", PriceID: "price_pro_monthly",
		SuccessURL: "https://albums.example.test/ok", CancelURL: "https://albums.example.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, &CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, session)
}
