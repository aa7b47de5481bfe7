package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProcessor implements Processor on top of the Stripe API.
type StripeProcessor struct {
	api *client.API
}

// NewStripeProcessor creates a processor using secretKey for all calls.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	return &StripeProcessor{api: client.New(secretKey, nil)}
}

// NewStripeProcessorWithBackends is used by tests to point the client at a
// local server.
func NewStripeProcessorWithBackends(secretKey string, backends *stripe.Backends) *StripeProcessor {
	return &StripeProcessor{api: client.New(secretKey, backends)}
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		processorErrorsTotal.WithLabelValues("subscription_get").Inc()
		return nil, wrapStripeError("get subscription "+subscriptionID, err)
	}
	sub := fromStripeSubscription(s)
	return &sub, nil
}

func (p *StripeProcessor) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true

	var subs []Subscription
	it := p.api.Subscriptions.List(params)
	for it.Next() {
		subs = append(subs, fromStripeSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		processorErrorsTotal.WithLabelValues("subscription_list").Inc()
		return nil, wrapStripeError("list subscriptions for customer "+customerID, err)
	}
	return subs, nil
}

func (p *StripeProcessor) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		processorErrorsTotal.WithLabelValues("subscription_update").Inc()
		return wrapStripeError("update subscription metadata "+subscriptionID, err)
	}
	return nil
}

func (p *StripeProcessor) GetInvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := p.api.Invoices.Get(invoiceID, params)
	if err != nil {
		processorErrorsTotal.WithLabelValues("invoice_get").Inc()
		return "", wrapStripeError("get invoice "+invoiceID, err)
	}
	if inv.Subscription == nil {
		return "", nil
	}
	return inv.Subscription.ID, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email := strings.TrimSpace(req.Email); email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(MetadataUserIDKey, req.UserID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		processorErrorsTotal.WithLabelValues("customer_create").Inc()
		return "", wrapStripeError("create customer for user "+req.UserID, err)
	}
	return c.ID, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserIDKey: req.UserID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserIDKey, req.UserID)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		processorErrorsTotal.WithLabelValues("checkout_session_create").Inc()
		return nil, wrapStripeError("create checkout session for user "+req.UserID, err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		processorErrorsTotal.WithLabelValues("portal_session_create").Inc()
		return "", wrapStripeError("create portal session for customer "+customerID, err)
	}
	return s.URL, nil
}

func fromStripeSubscription(s *stripe.Subscription) Subscription {
	if s == nil {
		return Subscription{}
	}
	sub := Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				sub.PriceID = item.Price.ID
				break
			}
		}
	}
	return sub
}

func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
