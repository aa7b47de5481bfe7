package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSubscriptionEvent(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "sub_1",
		"customer": {"id": "cus_1", "object": "customer"},
		"status": "active",
		"cancel_at_period_end": true,
		"items": {"data": [{"price": {"id": "price_pro_monthly"}, "current_period_end": 1774000000}]},
		"metadata": {"userId": " user-1 "}
	}`)

	ev, err := DecodeEvent("evt_1", EventSubscriptionUpdated, raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Subscription)
	assert.Nil(t, ev.Checkout)
	assert.Nil(t, ev.Invoice)

	sub := ev.Subscription
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "price_pro_monthly", sub.PriceID)
	assert.Equal(t, int64(1774000000), sub.CurrentPeriodEnd, "period end falls back to the first item")
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "user-1", sub.UserID())
}

func TestDecodeSubscriptionPrefersTopLevelPeriodEnd(t *testing.T) {
	raw := json.RawMessage(`{"id":"sub_1","customer":"cus_1","status":"active","current_period_end":1700000000,
		"items":{"data":[{"price":{"id":"price_x"},"current_period_end":1800000000}]}}`)

	ev, err := DecodeEvent("evt_1", EventSubscriptionCreated, raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ev.Subscription.CurrentPeriodEnd)
	assert.Equal(t, "cus_1", ev.Subscription.CustomerID)
	assert.Empty(t, ev.Subscription.UserID())
}

func TestDecodeCheckoutSession(t *testing.T) {
	t.Run("metadata wins", func(t *testing.T) {
		raw := json.RawMessage(`{"id":"cs_1","customer":"cus_1","subscription":{"id":"sub_1"},
			"client_reference_id":"other","metadata":{"userId":"user-1"}}`)
		ev, err := DecodeEvent("evt_1", EventCheckoutCompleted, raw)
		require.NoError(t, err)
		assert.Equal(t, CheckoutCompletion{SessionID: "cs_1", CustomerID: "cus_1", SubscriptionID: "sub_1", UserID: "user-1"}, *ev.Checkout)
	})

	t.Run("client reference fallback", func(t *testing.T) {
		raw := json.RawMessage(`{"id":"cs_1","customer":null,"subscription":null,"client_reference_id":"user-2"}`)
		ev, err := DecodeEvent("evt_1", EventCheckoutCompleted, raw)
		require.NoError(t, err)
		assert.Equal(t, "user-2", ev.Checkout.UserID)
		assert.Empty(t, ev.Checkout.SubscriptionID)
	})
}

func TestDecodeInvoice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "top level", raw: `{"id":"in_1","subscription":"sub_1"}`, want: "sub_1"},
		{name: "expanded", raw: `{"id":"in_1","subscription":{"id":"sub_2","object":"subscription"}}`, want: "sub_2"},
		{name: "parent details", raw: `{"id":"in_1","parent":{"subscription_details":{"subscription":"sub_3"}}}`, want: "sub_3"},
		{name: "one-off", raw: `{"id":"in_1","subscription":null}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent("evt_1", EventPaymentSucceeded, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Invoice.SubscriptionID)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		kind EventKind
		raw  string
	}{
		{name: "empty", kind: EventSubscriptionUpdated, raw: ``},
		{name: "null", kind: EventSubscriptionUpdated, raw: `null`},
		{name: "wrong id type", kind: EventSubscriptionUpdated, raw: `{"id":42,"status":"active"}`},
		{name: "missing status", kind: EventSubscriptionUpdated, raw: `{"id":"sub_1"}`},
		{name: "missing session id", kind: EventCheckoutCompleted, raw: `{"customer":"cus_1"}`},
		{name: "missing invoice id", kind: EventPaymentFailed, raw: `{"subscription":"sub_1"}`},
		{name: "bad customer", kind: EventSubscriptionCreated, raw: `{"id":"sub_1","status":"active","customer":7}`},
		{name: "unhandled kind", kind: EventKind("customer.created"), raw: `{"id":"cus_1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent("evt_1", tt.kind, json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
